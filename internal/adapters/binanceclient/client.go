package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	exchangeInfoTTL = 15 * time.Minute

	defaultPendingLifetime = 31 * time.Minute
)

// Client implements ports.Venue on Binance USDⓈ-M futures.
//
// Every take-profit leg is an entry order plus reduce-only stop and target orders.
// The legs share a client order id prefix "{marker}:{tag}:{target}" which is how
// positions are recovered after a restart.
//
// Resting entries are sent GTC and expired by the client itself: the deadline of each
// submitted entry is kept in memory, and entries found after a restart expire
// PendingLifetime after their creation. Expired legs are canceled while listing.
type Client struct {
	name          string
	asset         string
	futuresClient *futures.Client
	logger        ports.Logger

	pendingLifetime time.Duration
	now             func() time.Time

	mu          sync.Mutex
	symbols     map[string]*futures.Symbol
	symbolsTime time.Time
	deadlines   map[string]time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	Name       string // account name used in logs
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Asset      string // margin asset whose wallet balance is reported, default USDT
	Logger     ports.Logger
	BaseURL    string // overrides the production/testnet URL
	// PendingLifetime expires resting entries with no recorded deadline, default 31m.
	PendingLifetime time.Duration
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: binance account %q needs api key and secret", ports.ErrConfigurationError, cfg.Name)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{
		"account": cfg.Name,
		"baseURL": client.BaseURL,
	})

	asset := cfg.Asset
	if asset == "" {
		asset = "USDT"
	}
	lifetime := cfg.PendingLifetime
	if lifetime <= 0 {
		lifetime = defaultPendingLifetime
	}
	return &Client{
		name:            cfg.Name,
		asset:           asset,
		futuresClient:   client,
		logger:          cfg.Logger,
		pendingLifetime: lifetime,
		now:             time.Now,
		deadlines:       make(map[string]time.Time),
	}, nil
}

// Name identifies the venue session.
func (c *Client) Name() string { return c.name }

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"account": c.name, "operation": operation}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mapAPICode(apiErr.Code), err)
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrTransport, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func mapAPICode(code int64) error {
	switch code {
	case -1003: // Too many requests
		return ports.ErrRateLimited
	case -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrTimeout
	case -1022, -2014, -2015: // Bad signature, malformed or unauthorized API key
		return ports.ErrAuthenticationFailed
	case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
		return ports.ErrInvalidRequest
	case -2010, -2022: // New order rejected, ReduceOnly rejected
		return ports.ErrPlacement
	case -2011, -2013: // Cancel rejected, order does not exist
		return ports.ErrOrderNotFound
	case -2019, -3005, -4047: // Margin or balance insufficient
		return ports.ErrInsufficientFunds
	case -4003, -4014: // Quantity or price out of range
		return ports.ErrInvalidRequest
	case -4044:
		return ports.ErrPositionNotFound
	default:
		return ports.ErrUnknown
	}
}

// SyncTime aligns the client's request timestamps with the server clock.
func (c *Client) SyncTime(ctx context.Context) error {
	op := "SyncTime"
	offset, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"account": c.name, "offsetMs": offset})
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs).UTC(), nil
}

// GetQuote returns the best ask for Buy and the best bid for Sell.
func (c *Client) GetQuote(ctx context.Context, symbol string, side domain.OrderSide) (float64, error) {
	op := "GetQuote"
	tickers, err := c.futuresClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return 0, fmt.Errorf("%s failed: %w: no book ticker for %s", op, ports.ErrMarketClosed, symbol)
	}
	raw := tickers[0].BidPrice
	if side == domain.Buy {
		raw = tickers[0].AskPrice
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%s failed: %w: bad price %q for %s", op, ports.ErrMarketClosed, raw, symbol)
	}
	return price, nil
}

// GetAccountBalance retrieves the wallet balance of the configured margin asset.
func (c *Client) GetAccountBalance(ctx context.Context) (float64, error) {
	op := "GetAccountBalance"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset == c.asset {
			balance, err := strconv.ParseFloat(bal.WalletBalance, 64)
			if err != nil {
				return 0, fmt.Errorf("%s failed: %w: could not parse balance %q: %w", op, ports.ErrUnknown, bal.WalletBalance, err)
			}
			return balance, nil
		}
	}
	return 0, fmt.Errorf("%s failed: %w: asset %s not in account", op, ports.ErrNotFound, c.asset)
}

// GetInstrumentInfo derives tick economics from the exchange filters.
// For linear contracts one unit moving one tick is worth one tick of quote asset.
func (c *Client) GetInstrumentInfo(ctx context.Context, symbol string) (*domain.InstrumentInfo, error) {
	op := "GetInstrumentInfo"
	s, err := c.symbol(ctx, symbol)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateSymbol(s)
}

func (c *Client) symbol(ctx context.Context, symbol string) (*futures.Symbol, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.symbols == nil || time.Since(c.symbolsTime) > exchangeInfoTTL {
		info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, err
		}
		c.symbols = make(map[string]*futures.Symbol, len(info.Symbols))
		for i := range info.Symbols {
			c.symbols[info.Symbols[i].Symbol] = &info.Symbols[i]
		}
		c.symbolsTime = time.Now()
	}
	s, ok := c.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: unknown symbol %s", ports.ErrNotFound, symbol)
	}
	return s, nil
}

// SubmitOrder places the entry order of one leg followed by its protective orders.
// A failed protective order cancels the entry so no unprotected leg is left behind.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	op := "SubmitOrder"
	info, err := c.GetInstrumentInfo(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	ticket := legTicket(req.Marker, req.Tag, req.TakeProfit)
	if len(ticket)+2 > maxClientOrderID {
		return nil, fmt.Errorf("%s failed: %w: %w: client order id %q too long", op, ports.ErrPlacement, ports.ErrInvalidRequest, ticket)
	}

	qty := formatDecimal(req.Volume, volumeDigits(info.VolumeStep))
	entry := c.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Quantity(qty).
		NewClientOrderID(ticket + roleEntry)
	if req.IsPending() {
		entry = entry.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatDecimal(req.Price, info.Digits))
	} else {
		entry = entry.Type(futures.OrderTypeMarket)
	}
	placed, err := entry.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	exit := futures.SideType(req.Side.Opposite())
	if err := c.placeProtective(ctx, req.Symbol, exit, qty, futures.OrderTypeStopMarket, req.StopLoss, info.Digits, ticket+roleStop); err != nil {
		c.abandonLeg(ctx, req.Symbol, ticket)
		return nil, err
	}
	if err := c.placeProtective(ctx, req.Symbol, exit, qty, futures.OrderTypeTakeProfitMarket, req.TakeProfit, info.Digits, ticket+roleTarget); err != nil {
		c.abandonLeg(ctx, req.Symbol, ticket)
		return nil, err
	}

	if req.IsPending() && !req.Expiration.IsZero() {
		c.mu.Lock()
		c.deadlines[ticket] = req.Expiration
		c.mu.Unlock()
	}

	fill, _ := strconv.ParseFloat(placed.AvgPrice, 64)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"account": c.name,
		"symbol":  req.Symbol,
		"ticket":  ticket,
		"orderID": placed.OrderID,
		"status":  string(placed.Status),
	})
	return &domain.OrderResult{
		Ticket:     ticket,
		Status:     string(placed.Status),
		FillPrice:  fill,
		SubmitTime: time.UnixMilli(placed.UpdateTime).UTC(),
	}, nil
}

func (c *Client) placeProtective(ctx context.Context, symbol string, side futures.SideType, qty string, kind futures.OrderType, price float64, digits int, clientID string) error {
	_, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(kind).
		Quantity(qty).
		StopPrice(formatDecimal(price, digits)).
		ReduceOnly(true).
		NewClientOrderID(clientID).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, "placeProtective")
	}
	return nil
}

// abandonLeg cancels every open order of a leg and closes any filled quantity.
func (c *Client) abandonLeg(ctx context.Context, symbol, ticket string) {
	if err := c.closeLeg(ctx, symbol, ticket); err != nil {
		c.logger.Error(ctx, err, "abandonLeg: Failed to unwind leg", map[string]interface{}{
			"account": c.name,
			"ticket":  ticket,
		})
	}
}

// ModifyStop replaces the stop order of a leg.
func (c *Client) ModifyStop(ctx context.Context, ticket string, newStop, target float64) error {
	op := "ModifyStop"
	leg, err := c.findLeg(ctx, ticket)
	if err != nil {
		return err
	}
	if leg.stop == nil {
		return fmt.Errorf("%s failed: %w: leg %s has no stop order", op, ports.ErrOrderNotFound, ticket)
	}
	info, err := c.GetInstrumentInfo(ctx, leg.symbol)
	if err != nil {
		return err
	}

	if _, err := c.futuresClient.NewCancelOrderService().
		Symbol(leg.symbol).
		OrigClientOrderID(leg.stop.ClientOrderID).
		Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	if err := c.placeProtective(ctx, leg.symbol, leg.stop.Side, leg.stop.OrigQuantity, futures.OrderTypeStopMarket, newStop, info.Digits, ticket+roleStop); err != nil {
		return err
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"account": c.name,
		"ticket":  ticket,
		"newStop": newStop,
		"target":  target,
	})
	return nil
}

// ClosePosition cancels a leg's orders and flattens its filled quantity.
func (c *Client) ClosePosition(ctx context.Context, ticket string) error {
	leg, err := c.findLeg(ctx, ticket)
	if err != nil {
		return err
	}
	return c.closeLeg(ctx, leg.symbol, ticket)
}

func (c *Client) closeLeg(ctx context.Context, symbol, ticket string) error {
	op := "ClosePosition"
	orders, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	legs := groupLegs(orders, "")
	leg, ok := legs[ticket]
	if !ok {
		return fmt.Errorf("%s failed: %w: %s", op, ports.ErrPositionNotFound, ticket)
	}

	for _, o := range []*futures.Order{leg.entry, leg.stop, leg.target} {
		if o == nil {
			continue
		}
		if _, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrigClientOrderID(o.ClientOrderID).Do(ctx); err != nil {
			return c.handleError(ctx, err, op)
		}
	}
	if leg.entry != nil || leg.volume() == "" {
		return nil
	}

	_, err = c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(leg.exitSide()).
		Type(futures.OrderTypeMarket).
		Quantity(leg.volume()).
		ReduceOnly(true).
		NewClientOrderID(ticket + roleClose).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"account": c.name, "ticket": ticket})
	return nil
}

// ListOpenPositions rebuilds the bot's legs from open orders carrying marker.
func (c *Client) ListOpenPositions(ctx context.Context, marker string) ([]domain.Position, error) {
	op := "ListOpenPositions"
	orders, err := c.futuresClient.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	legs := groupLegs(orders, marker)

	entries := make(map[string]float64)
	positions := make([]domain.Position, 0, len(legs))
	for ticket, leg := range legs {
		if c.expireLeg(ctx, ticket, leg) {
			continue
		}
		pos := leg.position(ticket)
		if !pos.Pending {
			price, ok := entries[leg.symbol]
			if !ok {
				price, err = c.entryPrice(ctx, leg.symbol)
				if err != nil {
					return nil, err
				}
				entries[leg.symbol] = price
			}
			pos.EntryPrice = price
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// expireLeg cancels a resting leg past its deadline and reports whether it did.
// A leg whose cancel fails stays listed and is retried on the next listing.
func (c *Client) expireLeg(ctx context.Context, ticket string, l *leg) bool {
	c.mu.Lock()
	recorded := c.deadlines[ticket]
	c.mu.Unlock()

	deadline := l.deadline(recorded, c.pendingLifetime)
	if !l.expired(c.now(), deadline) {
		return false
	}
	fields := map[string]interface{}{
		"account":  c.name,
		"ticket":   ticket,
		"deadline": deadline.UTC().Format(time.RFC3339),
	}
	if err := c.closeLeg(ctx, l.symbol, ticket); err != nil && !errors.Is(err, ports.ErrPositionNotFound) {
		c.logger.Warn(ctx, "expireLeg: Failed to cancel expired entry", fields)
		return false
	}
	c.mu.Lock()
	delete(c.deadlines, ticket)
	c.mu.Unlock()
	c.logger.Info(ctx, "expireLeg: Pending entry expired", fields)
	return true
}

// GetPosition returns one leg; ErrPositionNotFound when no order of it remains.
func (c *Client) GetPosition(ctx context.Context, ticket string) (*domain.Position, error) {
	marker, _, _ := strings.Cut(ticket, ":")
	positions, err := c.ListOpenPositions(ctx, marker)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Ticket == ticket {
			return &positions[i], nil
		}
	}
	return nil, fmt.Errorf("GetPosition failed: %w: %s", ports.ErrPositionNotFound, ticket)
}

func (c *Client) entryPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetPositionRisk"
	risks, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	for _, r := range risks {
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		price, _ := strconv.ParseFloat(r.EntryPrice, 64)
		return price, nil
	}
	return 0, nil
}

func (c *Client) findLeg(ctx context.Context, ticket string) (*leg, error) {
	orders, err := c.futuresClient.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, "findLeg")
	}
	l, ok := groupLegs(orders, "")[ticket]
	if !ok {
		return nil, fmt.Errorf("findLeg failed: %w: %s", ports.ErrPositionNotFound, ticket)
	}
	return l, nil
}
