package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

const (
	DefaultBaseURL = "https://api-fxpractice.oanda.com"
	LiveBaseURL    = "https://api-fxtrade.oanda.com"
	defaultTimeout = 10 * time.Second
	tradeTicketPfx = "trade-"
	orderTicketPfx = "order-"
)

// Config holds configuration for the OANDA v20 venue.
type Config struct {
	Name      string // account name used in logs
	AccountID string
	Token     string
	Live      bool   // use the fxTrade endpoint instead of fxPractice
	BaseURL   string // overrides both endpoints
	Logger    ports.Logger
	Client    *http.Client
}

// Client implements ports.Venue on the OANDA v20 REST API.
// Volumes are expressed in units; tick value is per unit in account currency.
type Client struct {
	name      string
	accountID string
	token     string
	baseURL   string
	http      *http.Client
	logger    ports.Logger

	mu          sync.Mutex
	instruments map[string]instrument
}

// New creates an OANDA venue client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for OANDA client")
	}
	if cfg.AccountID == "" || cfg.Token == "" {
		return nil, fmt.Errorf("%w: oanda account %q needs account id and token", ports.ErrConfigurationError, cfg.Name)
	}
	baseURL := cfg.BaseURL
	switch {
	case baseURL != "":
	case cfg.Live:
		baseURL = LiveBaseURL
	default:
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		name:        cfg.Name,
		accountID:   cfg.AccountID,
		token:       cfg.Token,
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        httpClient,
		logger:      cfg.Logger,
		instruments: make(map[string]instrument),
	}, nil
}

// Name identifies the venue session.
func (c *Client) Name() string { return c.name }

// InstrumentName converts "EURUSD" style codes to OANDA's "EUR_USD".
// Names already containing an underscore are returned unchanged.
func InstrumentName(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, "_") || len(s) != 6 {
		return s
	}
	return s[:3] + "_" + s[3:]
}

// GetQuote returns the best ask for Buy and the best bid for Sell.
func (c *Client) GetQuote(ctx context.Context, symbol string, side domain.OrderSide) (float64, error) {
	op := "GetQuote"
	price, err := c.pricing(ctx, symbol)
	if err != nil {
		return 0, err
	}
	buckets := price.Bids
	if side == domain.Buy {
		buckets = price.Asks
	}
	if !price.Tradeable || len(buckets) == 0 {
		return 0, fmt.Errorf("%s failed: %w: %s not tradeable", op, ports.ErrMarketClosed, symbol)
	}
	v, err := strconv.ParseFloat(buckets[0].Price, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s failed: %w: bad price %q", op, ports.ErrMarketClosed, buckets[0].Price)
	}
	return v, nil
}

func (c *Client) pricing(ctx context.Context, symbol string) (*clientPrice, error) {
	op := "pricing"
	q := url.Values{}
	q.Set("instruments", InstrumentName(symbol))
	var resp pricingResponse
	if _, err := c.do(ctx, op, http.MethodGet, c.accountPath("/pricing")+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Prices) == 0 {
		return nil, fmt.Errorf("%s failed: %w: no price for %s", op, ports.ErrMarketClosed, symbol)
	}
	return &resp.Prices[0], nil
}

// GetAccountBalance returns the account balance in home currency.
func (c *Client) GetAccountBalance(ctx context.Context) (float64, error) {
	op := "GetAccountBalance"
	var resp accountSummaryResponse
	if _, err := c.do(ctx, op, http.MethodGet, c.accountPath("/summary"), nil, &resp); err != nil {
		return 0, err
	}
	balance, err := strconv.ParseFloat(resp.Account.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w: could not parse balance %q", op, ports.ErrUnknown, resp.Account.Balance)
	}
	return balance, nil
}

// GetServerTime reads the Date header of an account request.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	header, err := c.do(ctx, op, http.MethodGet, c.accountPath("/summary"), nil, nil)
	if err != nil {
		return time.Time{}, err
	}
	t, err := http.ParseTime(header.Get("Date"))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s failed: %w: no Date header", op, ports.ErrUnknown)
	}
	return t.UTC(), nil
}

// GetInstrumentInfo combines the instrument definition with the quote-to-home conversion.
func (c *Client) GetInstrumentInfo(ctx context.Context, symbol string) (*domain.InstrumentInfo, error) {
	inst, err := c.instrument(ctx, symbol)
	if err != nil {
		return nil, err
	}
	conversion := 1.0
	if price, err := c.pricing(ctx, symbol); err == nil && price.QuoteHomeConversionFactors != nil {
		if f, err := strconv.ParseFloat(price.QuoteHomeConversionFactors.PositiveUnits, 64); err == nil && f > 0 {
			conversion = f
		}
	}
	return translateInstrument(inst, conversion), nil
}

func (c *Client) instrument(ctx context.Context, symbol string) (instrument, error) {
	op := "GetInstrumentInfo"
	name := InstrumentName(symbol)

	c.mu.Lock()
	inst, ok := c.instruments[name]
	c.mu.Unlock()
	if ok {
		return inst, nil
	}

	q := url.Values{}
	q.Set("instruments", name)
	var resp instrumentsResponse
	if _, err := c.do(ctx, op, http.MethodGet, c.accountPath("/instruments")+"?"+q.Encode(), nil, &resp); err != nil {
		return instrument{}, err
	}
	if len(resp.Instruments) == 0 {
		return instrument{}, fmt.Errorf("%s failed: %w: unknown instrument %s", op, ports.ErrNotFound, name)
	}
	inst = resp.Instruments[0]

	c.mu.Lock()
	c.instruments[name] = inst
	c.mu.Unlock()
	return inst, nil
}

func translateInstrument(inst instrument, conversion float64) *domain.InstrumentInfo {
	point := math.Pow10(-inst.DisplayPrecision)
	minUnits, _ := strconv.ParseFloat(inst.MinimumTradeSize, 64)
	maxUnits, _ := strconv.ParseFloat(inst.MaximumOrderUnits, 64)
	return &domain.InstrumentInfo{
		Symbol:     inst.Name,
		Digits:     inst.DisplayPrecision,
		Point:      point,
		TickSize:   point,
		TickValue:  point * conversion,
		VolumeMin:  minUnits,
		VolumeMax:  maxUnits,
		VolumeStep: math.Pow10(-inst.TradeUnitsPrecision),
	}
}

// SubmitOrder places a market (IOC) or limit (GTD) order with attached stop and target.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	op := "SubmitOrder"
	inst, err := c.instrument(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	units := decimal.NewFromFloat(req.Volume).Round(int32(inst.TradeUnitsPrecision))
	if req.Side == domain.Sell {
		units = units.Neg()
	}
	ext := &clientExtensions{Tag: req.Tag, Comment: req.Marker}
	order := orderRequest{
		Type:                  "MARKET",
		Instrument:            inst.Name,
		Units:                 units.String(),
		TimeInForce:           "IOC",
		PositionFill:          "DEFAULT",
		StopLossOnFill:        &priceDetails{Price: formatPrice(req.StopLoss, inst.DisplayPrecision), TimeInForce: "GTC"},
		TakeProfitOnFill:      &priceDetails{Price: formatPrice(req.TakeProfit, inst.DisplayPrecision), TimeInForce: "GTC"},
		ClientExtensions:      ext,
		TradeClientExtensions: ext,
	}
	if req.IsPending() {
		order.Type = "LIMIT"
		order.Price = formatPrice(req.Price, inst.DisplayPrecision)
		order.TimeInForce = "GTC"
		if !req.Expiration.IsZero() {
			order.TimeInForce = "GTD"
			order.GtdTime = req.Expiration.UTC().Format(time.RFC3339)
		}
	}

	var resp orderCreateResponse
	if _, err := c.do(ctx, op, http.MethodPost, c.accountPath("/orders"), orderEnvelope{Order: order}, &resp); err != nil {
		return nil, err
	}
	if resp.OrderCancelTransaction != nil {
		return nil, fmt.Errorf("%s failed: %w: order canceled: %s", op, ports.ErrPlacement, resp.OrderCancelTransaction.Reason)
	}

	result := &domain.OrderResult{Status: "PENDING"}
	switch {
	case resp.OrderFillTransaction != nil && resp.OrderFillTransaction.TradeOpened != nil:
		result.Ticket = tradeTicketPfx + resp.OrderFillTransaction.TradeOpened.TradeID
		result.Status = "FILLED"
		result.FillPrice, _ = strconv.ParseFloat(resp.OrderFillTransaction.Price, 64)
		result.SubmitTime = parseTime(resp.OrderFillTransaction.Time)
	case resp.OrderCreateTransaction != nil && req.IsPending():
		result.Ticket = orderTicketPfx + resp.OrderCreateTransaction.ID
		result.SubmitTime = parseTime(resp.OrderCreateTransaction.Time)
	default:
		return nil, fmt.Errorf("%s failed: %w: no trade opened", op, ports.ErrPlacement)
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"account": c.name,
		"symbol":  inst.Name,
		"ticket":  result.Ticket,
		"status":  result.Status,
	})
	return result, nil
}

// ModifyStop replaces the stop of an open trade, keeping its target.
func (c *Client) ModifyStop(ctx context.Context, ticket string, newStop, target float64) error {
	op := "ModifyStop"
	id, ok := strings.CutPrefix(ticket, tradeTicketPfx)
	if !ok {
		return fmt.Errorf("%s failed: %w: %s is not an open trade", op, ports.ErrInvalidRequest, ticket)
	}
	t, err := c.trade(ctx, id)
	if err != nil {
		return err
	}
	inst, err := c.instrument(ctx, t.Instrument)
	if err != nil {
		return err
	}

	body := tradeOrdersRequest{
		StopLoss: &priceDetails{Price: formatPrice(newStop, inst.DisplayPrecision), TimeInForce: "GTC"},
	}
	if target > 0 {
		body.TakeProfit = &priceDetails{Price: formatPrice(target, inst.DisplayPrecision), TimeInForce: "GTC"}
	}
	_, err = c.do(ctx, op, http.MethodPut, c.accountPath("/trades/"+id+"/orders"), body, nil)
	return err
}

// ClosePosition closes an open trade or cancels a pending order.
func (c *Client) ClosePosition(ctx context.Context, ticket string) error {
	op := "ClosePosition"
	if id, ok := strings.CutPrefix(ticket, tradeTicketPfx); ok {
		_, err := c.do(ctx, op, http.MethodPut, c.accountPath("/trades/"+id+"/close"), map[string]string{"units": "ALL"}, nil)
		return err
	}
	if id, ok := strings.CutPrefix(ticket, orderTicketPfx); ok {
		_, err := c.do(ctx, op, http.MethodPut, c.accountPath("/orders/"+id+"/cancel"), nil, nil)
		return err
	}
	return fmt.Errorf("%s failed: %w: unknown ticket %q", op, ports.ErrInvalidRequest, ticket)
}

// ListOpenPositions returns open trades and pending limit orders stamped with marker.
func (c *Client) ListOpenPositions(ctx context.Context, marker string) ([]domain.Position, error) {
	op := "ListOpenPositions"
	var trades tradesResponse
	if _, err := c.do(ctx, op, http.MethodGet, c.accountPath("/openTrades"), nil, &trades); err != nil {
		return nil, err
	}
	var orders ordersResponse
	if _, err := c.do(ctx, op, http.MethodGet, c.accountPath("/pendingOrders"), nil, &orders); err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(trades.Trades)+len(orders.Orders))
	for _, t := range trades.Trades {
		if t.ClientExtensions == nil || t.ClientExtensions.Comment != marker {
			continue
		}
		positions = append(positions, translateTrade(t))
	}
	for _, o := range orders.Orders {
		if o.Type != "LIMIT" || o.ClientExtensions == nil || o.ClientExtensions.Comment != marker {
			continue
		}
		positions = append(positions, translateOrder(o))
	}
	return positions, nil
}

// GetPosition returns one trade or pending order; ErrPositionNotFound when it is gone.
func (c *Client) GetPosition(ctx context.Context, ticket string) (*domain.Position, error) {
	op := "GetPosition"
	if id, ok := strings.CutPrefix(ticket, tradeTicketPfx); ok {
		t, err := c.trade(ctx, id)
		if err != nil {
			return nil, err
		}
		pos := translateTrade(*t)
		return &pos, nil
	}
	if id, ok := strings.CutPrefix(ticket, orderTicketPfx); ok {
		var resp orderResponse
		if _, err := c.do(ctx, op, http.MethodGet, c.accountPath("/orders/"+id), nil, &resp); err != nil {
			return nil, notFoundAsPosition(err)
		}
		if resp.Order.State != "PENDING" {
			return nil, fmt.Errorf("%s failed: %w: order %s is %s", op, ports.ErrPositionNotFound, id, resp.Order.State)
		}
		pos := translateOrder(resp.Order)
		return &pos, nil
	}
	return nil, fmt.Errorf("%s failed: %w: unknown ticket %q", op, ports.ErrInvalidRequest, ticket)
}

func (c *Client) trade(ctx context.Context, id string) (*trade, error) {
	var resp tradeResponse
	if _, err := c.do(ctx, "GetTrade", http.MethodGet, c.accountPath("/trades/"+id), nil, &resp); err != nil {
		return nil, notFoundAsPosition(err)
	}
	return &resp.Trade, nil
}

func notFoundAsPosition(err error) error {
	if errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("%w: %w", ports.ErrPositionNotFound, err)
	}
	return err
}

func (c *Client) accountPath(suffix string) string {
	return "/v3/accounts/" + c.accountID + suffix
}

// do sends one request and decodes a JSON reply into out when out is non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, err)
		}
		reader = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Accept-Datetime-Format", "RFC3339")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.handleError(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		mapped := mapStatus(resp.StatusCode)
		c.logger.Error(ctx, mapped, op+" failed: API returned an error status", map[string]interface{}{
			"account":     c.name,
			"statusCode":  resp.StatusCode,
			"errorCode":   apiErr.ErrorCode,
			"rawResponse": string(raw),
		})
		return nil, fmt.Errorf("%s failed: %w: status %d: %s", op, mapped, resp.StatusCode, apiErr.ErrorMessage)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("%s failed: %w: decode response: %w", op, ports.ErrUnknown, err)
		}
	}
	return resp.Header, nil
}

func (c *Client) handleError(ctx context.Context, op string, err error) error {
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", op, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", op, ports.ErrContextCanceled, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", op, ports.ErrTransport, ports.ErrConnectionFailed, err)
	}
	c.logger.Error(ctx, err, op+" failed", map[string]interface{}{"account": c.name})
	return finalErr
}

func mapStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ports.ErrAuthenticationFailed
	case code == http.StatusNotFound:
		return ports.ErrNotFound
	case code == http.StatusTooManyRequests:
		return ports.ErrRateLimited
	case code == http.StatusBadRequest:
		return ports.ErrInvalidRequest
	case code >= 500:
		return ports.ErrTransport
	default:
		return ports.ErrUnknown
	}
}

func translateTrade(t trade) domain.Position {
	units, _ := strconv.ParseFloat(t.CurrentUnits, 64)
	pos := domain.Position{
		Ticket:    tradeTicketPfx + t.ID,
		Symbol:    t.Instrument,
		Direction: domain.Long,
		Volume:    math.Abs(units),
		OpenTime:  parseTime(t.OpenTime),
	}
	if units < 0 {
		pos.Direction = domain.Short
	}
	pos.EntryPrice, _ = strconv.ParseFloat(t.Price, 64)
	if t.StopLossOrder != nil {
		pos.StopLoss, _ = strconv.ParseFloat(t.StopLossOrder.Price, 64)
	}
	if t.TakeProfitOrder != nil {
		pos.TakeProfit, _ = strconv.ParseFloat(t.TakeProfitOrder.Price, 64)
	}
	if t.ClientExtensions != nil {
		pos.Tag = t.ClientExtensions.Tag
	}
	return pos
}

func translateOrder(o pendingOrder) domain.Position {
	units, _ := strconv.ParseFloat(o.Units, 64)
	pos := domain.Position{
		Ticket:    orderTicketPfx + o.ID,
		Symbol:    o.Instrument,
		Direction: domain.Long,
		Volume:    math.Abs(units),
		OpenTime:  parseTime(o.CreateTime),
		Pending:   true,
	}
	if units < 0 {
		pos.Direction = domain.Short
	}
	pos.EntryPrice, _ = strconv.ParseFloat(o.Price, 64)
	if o.StopLossOnFill != nil {
		pos.StopLoss, _ = strconv.ParseFloat(o.StopLossOnFill.Price, 64)
	}
	if o.TakeProfitOnFill != nil {
		pos.TakeProfit, _ = strconv.ParseFloat(o.TakeProfitOnFill.Price, 64)
	}
	if o.ClientExtensions != nil {
		pos.Tag = o.ClientExtensions.Tag
	}
	return pos
}

func formatPrice(v float64, digits int) string {
	return decimal.NewFromFloat(v).Round(int32(digits)).StringFixed(int32(digits))
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
