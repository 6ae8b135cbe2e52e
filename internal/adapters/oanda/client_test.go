package oanda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakeOanda struct {
	t        *testing.T
	orders   []orderRequest
	modified []tradeOrdersRequest
	closed   []string
}

func (f *fakeOanda) handler() http.Handler {
	mux := http.NewServeMux()
	base := "/v3/accounts/001-001/"

	mux.HandleFunc(base+"pricing", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(f.t, "XAU_USD", r.URL.Query().Get("instruments"))
		writeJSON(w, `{"prices":[{"instrument":"XAU_USD","tradeable":true,
			"bids":[{"price":"3650.10"}],"asks":[{"price":"3650.40"}],
			"quoteHomeConversionFactors":{"positiveUnits":"1.0","negativeUnits":"1.0"}}]}`)
	})
	mux.HandleFunc(base+"summary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", "Wed, 11 Dec 2024 10:00:00 GMT")
		writeJSON(w, `{"account":{"balance":"100000.0000","currency":"USD"}}`)
	})
	mux.HandleFunc(base+"instruments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"instruments":[{"name":"XAU_USD","displayPrecision":3,"tradeUnitsPrecision":0,
			"minimumTradeSize":"1","maximumOrderUnits":"100000"}]}`)
	})
	mux.HandleFunc(base+"orders", func(w http.ResponseWriter, r *http.Request) {
		var env orderEnvelope
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&env))
		f.orders = append(f.orders, env.Order)
		w.WriteHeader(http.StatusCreated)
		if env.Order.Type == "LIMIT" {
			writeJSON(w, `{"orderCreateTransaction":{"id":"77","time":"2024-12-11T10:00:00Z"}}`)
			return
		}
		writeJSON(w, `{"orderCreateTransaction":{"id":"80"},
			"orderFillTransaction":{"id":"81","price":"3650.40","time":"2024-12-11T10:00:01Z","tradeOpened":{"tradeID":"81"}}}`)
	})
	mux.HandleFunc(base+"openTrades", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"trades":[
			{"id":"81","instrument":"XAU_USD","price":"3650.400","currentUnits":"-12",
			 "clientExtensions":{"tag":"99/3648","comment":"20241211"},
			 "stopLossOrder":{"id":"82","price":"3658.000"},"takeProfitOrder":{"id":"83","price":"3648.000"}},
			{"id":"90","instrument":"EUR_USD","price":"1.1","currentUnits":"1000",
			 "clientExtensions":{"tag":"manual","comment":"other"}}]}`)
	})
	mux.HandleFunc(base+"pendingOrders", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"orders":[
			{"id":"77","type":"LIMIT","instrument":"XAU_USD","units":"5","price":"3640.000","state":"PENDING",
			 "clientExtensions":{"tag":"100/3642","comment":"20241211"},
			 "stopLossOnFill":{"price":"3632.000"},"takeProfitOnFill":{"price":"3642.000"}},
			{"id":"82","type":"STOP_LOSS","instrument":"XAU_USD","price":"3658.000","state":"PENDING"}]}`)
	})
	mux.HandleFunc(base+"trades/81", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"trade":{"id":"81","instrument":"XAU_USD","price":"3650.400","currentUnits":"-12",
			"clientExtensions":{"tag":"99/3648","comment":"20241211"},
			"stopLossOrder":{"price":"3658.000"},"takeProfitOrder":{"price":"3648.000"}}}`)
	})
	mux.HandleFunc(base+"trades/81/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, http.MethodPut, r.Method)
		var body tradeOrdersRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.modified = append(f.modified, body)
		writeJSON(w, `{}`)
	})
	mux.HandleFunc(base+"trades/81/close", func(w http.ResponseWriter, r *http.Request) {
		f.closed = append(f.closed, "trade-81")
		writeJSON(w, `{}`)
	})
	mux.HandleFunc(base+"orders/77/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.closed = append(f.closed, "order-77")
		writeJSON(w, `{}`)
	})
	mux.HandleFunc(base+"trades/404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, `{"errorMessage":"The trade ID specified does not exist","errorCode":"NO_SUCH_TRADE"}`)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T) (*Client, *fakeOanda) {
	t.Helper()
	fake := &fakeOanda{t: t}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	c, err := New(Config{Name: "oanda", AccountID: "001-001", Token: "token", BaseURL: srv.URL, Logger: &mockLogger{}})
	require.NoError(t, err)
	return c, fake
}

func TestInstrumentName(t *testing.T) {
	assert.Equal(t, "EUR_USD", InstrumentName("eurusd"))
	assert.Equal(t, "XAU_USD", InstrumentName("XAU_USD"))
	assert.Equal(t, "NAS100_USD", InstrumentName("NAS100_USD"))
}

func TestClient_MarketData(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ask, err := c.GetQuote(ctx, "XAUUSD", domain.Buy)
	require.NoError(t, err)
	assert.Equal(t, 3650.40, ask)
	bid, err := c.GetQuote(ctx, "XAUUSD", domain.Sell)
	require.NoError(t, err)
	assert.Equal(t, 3650.10, bid)

	balance, err := c.GetAccountBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, balance)

	now, err := c.GetServerTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 11, 10, 0, 0, 0, time.UTC), now)

	info, err := c.GetInstrumentInfo(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Digits)
	assert.InDelta(t, 0.001, info.Point, 1e-12)
	assert.InDelta(t, 0.001, info.TickValue, 1e-12)
	assert.Equal(t, 1.0, info.VolumeStep)
	assert.Equal(t, 1.0, info.VolumeMin)
}

func TestClient_SubmitOrder(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	res, err := c.SubmitOrder(ctx, domain.OrderRequest{
		Symbol: "XAU_USD", Side: domain.Sell, Kind: domain.KindMarket, Price: 3650.1,
		Volume: 12, StopLoss: 3658, TakeProfit: 3648, Tag: "99/3648", Marker: "20241211",
	})
	require.NoError(t, err)
	assert.Equal(t, "trade-81", res.Ticket)
	assert.Equal(t, 3650.40, res.FillPrice)

	expiry := time.Date(2024, 12, 11, 10, 31, 0, 0, time.UTC)
	res, err = c.SubmitOrder(ctx, domain.OrderRequest{
		Symbol: "XAU_USD", Side: domain.Buy, Kind: domain.KindLimit, Price: 3640,
		Volume: 5, StopLoss: 3632, TakeProfit: 3642, Tag: "100/3642", Marker: "20241211", Expiration: expiry,
	})
	require.NoError(t, err)
	assert.Equal(t, "order-77", res.Ticket)

	require.Len(t, fake.orders, 2)
	market := fake.orders[0]
	assert.Equal(t, "MARKET", market.Type)
	assert.Equal(t, "-12", market.Units)
	assert.Equal(t, "IOC", market.TimeInForce)
	assert.Equal(t, "3658.000", market.StopLossOnFill.Price)
	assert.Equal(t, "99/3648", market.TradeClientExtensions.Tag)
	assert.Equal(t, "20241211", market.TradeClientExtensions.Comment)

	limit := fake.orders[1]
	assert.Equal(t, "LIMIT", limit.Type)
	assert.Equal(t, "5", limit.Units)
	assert.Equal(t, "3640.000", limit.Price)
	assert.Equal(t, "GTD", limit.TimeInForce)
	assert.Equal(t, "2024-12-11T10:31:00Z", limit.GtdTime)
}

func TestClient_Positions(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	positions, err := c.ListOpenPositions(ctx, "20241211")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	open := positions[0]
	assert.Equal(t, "trade-81", open.Ticket)
	assert.Equal(t, domain.Short, open.Direction)
	assert.Equal(t, 12.0, open.Volume)
	assert.Equal(t, 3658.0, open.StopLoss)
	assert.Equal(t, "99/3648", open.Tag)
	assert.False(t, open.Pending)

	pending := positions[1]
	assert.Equal(t, "order-77", pending.Ticket)
	assert.True(t, pending.Pending)
	assert.Equal(t, domain.Long, pending.Direction)
	assert.Equal(t, 3642.0, pending.TakeProfit)

	pos, err := c.GetPosition(ctx, "trade-81")
	require.NoError(t, err)
	assert.Equal(t, 3650.4, pos.EntryPrice)

	_, err = c.GetPosition(ctx, "trade-404")
	assert.ErrorIs(t, err, ports.ErrPositionNotFound)

	require.NoError(t, c.ModifyStop(ctx, "trade-81", 3650.4, 3648))
	require.Len(t, fake.modified, 1)
	assert.Equal(t, "3650.400", fake.modified[0].StopLoss.Price)
	assert.Equal(t, "3648.000", fake.modified[0].TakeProfit.Price)

	require.NoError(t, c.ClosePosition(ctx, "trade-81"))
	require.NoError(t, c.ClosePosition(ctx, "order-77"))
	assert.Equal(t, []string{"trade-81", "order-77"}, fake.closed)

	assert.ErrorIs(t, c.ModifyStop(ctx, "order-77", 1, 2), ports.ErrInvalidRequest)
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{Name: "oanda", Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
