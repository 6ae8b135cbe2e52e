package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

type quote struct {
	bid, ask float64
}

type order struct {
	position domain.Position
	marker   string
	expires  time.Time
}

// Venue is an in-memory ports.Venue for paper trading and dry runs.
// Limit orders fill and stops or targets trigger when SetQuote moves the market through them.
type Venue struct {
	name string
	now  func() time.Time

	mu          sync.Mutex
	balance     float64
	quotes      map[string]quote
	instruments map[string]domain.InstrumentInfo
	orders      map[string]*order
	history     []domain.Position
}

// New creates a paper venue with a starting balance.
func New(name string, balance float64) *Venue {
	return &Venue{
		name:        name,
		now:         time.Now,
		balance:     balance,
		quotes:      make(map[string]quote),
		instruments: make(map[string]domain.InstrumentInfo),
		orders:      make(map[string]*order),
	}
}

// DefaultInstrument returns two-digit metal-style economics for symbol.
func DefaultInstrument(symbol string) domain.InstrumentInfo {
	return domain.InstrumentInfo{
		Symbol:     symbol,
		Digits:     2,
		Point:      0.01,
		TickSize:   0.01,
		TickValue:  1,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
	}
}

// AddInstrument registers the economics of a symbol.
func (v *Venue) AddInstrument(info domain.InstrumentInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.instruments[info.Symbol] = info
}

// SetQuote updates the market and settles orders crossed by the new prices.
func (v *Venue) SetQuote(symbol string, bid, ask float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quotes[symbol] = quote{bid: bid, ask: ask}
	v.settle(symbol)
}

// History returns positions closed by stops, targets or ClosePosition.
func (v *Venue) History() []domain.Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.Position(nil), v.history...)
}

// Name identifies the venue session.
func (v *Venue) Name() string { return v.name }

// GetQuote returns the ask for Buy and the bid for Sell.
func (v *Venue) GetQuote(ctx context.Context, symbol string, side domain.OrderSide) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	q, ok := v.quotes[symbol]
	if !ok {
		return 0, fmt.Errorf("GetQuote failed: %w: no quote for %s", ports.ErrMarketClosed, symbol)
	}
	if side == domain.Buy {
		return q.ask, nil
	}
	return q.bid, nil
}

// GetAccountBalance returns the simulated balance.
func (v *Venue) GetAccountBalance(ctx context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

// GetInstrumentInfo returns registered economics or DefaultInstrument.
func (v *Venue) GetInstrumentInfo(ctx context.Context, symbol string) (*domain.InstrumentInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	info, ok := v.instruments[symbol]
	if !ok {
		info = DefaultInstrument(symbol)
	}
	return &info, nil
}

// GetServerTime returns the local clock.
func (v *Venue) GetServerTime(ctx context.Context) (time.Time, error) {
	return v.now().UTC(), nil
}

// SubmitOrder fills market orders at the current quote and rests limit orders.
func (v *Venue) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if req.Volume <= 0 {
		return nil, fmt.Errorf("SubmitOrder failed: %w: %w: volume %v", ports.ErrPlacement, ports.ErrInvalidRequest, req.Volume)
	}
	dir := domain.Long
	if req.Side == domain.Sell {
		dir = domain.Short
	}
	o := &order{
		marker:  req.Marker,
		expires: req.Expiration,
		position: domain.Position{
			Ticket:     uuid.NewString(),
			Symbol:     req.Symbol,
			Direction:  dir,
			EntryPrice: req.Price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
			Volume:     req.Volume,
			Tag:        req.Tag,
			OpenTime:   v.now().UTC(),
			Pending:    req.IsPending(),
		},
	}

	status := "PENDING"
	if !req.IsPending() {
		q, ok := v.quotes[req.Symbol]
		if !ok {
			return nil, fmt.Errorf("SubmitOrder failed: %w: %w: no quote for %s", ports.ErrPlacement, ports.ErrMarketClosed, req.Symbol)
		}
		o.position.EntryPrice = q.ask
		if dir == domain.Short {
			o.position.EntryPrice = q.bid
		}
		status = "FILLED"
	}
	v.orders[o.position.Ticket] = o

	return &domain.OrderResult{
		Ticket:     o.position.Ticket,
		Status:     status,
		FillPrice:  o.position.EntryPrice,
		SubmitTime: o.position.OpenTime,
	}, nil
}

// ModifyStop moves the stop of an open position.
func (v *Venue) ModifyStop(ctx context.Context, ticket string, newStop, target float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[ticket]
	if !ok {
		return fmt.Errorf("ModifyStop failed: %w: %s", ports.ErrPositionNotFound, ticket)
	}
	o.position.StopLoss = newStop
	if target > 0 {
		o.position.TakeProfit = target
	}
	return nil
}

// ClosePosition removes a position or pending order.
func (v *Venue) ClosePosition(ctx context.Context, ticket string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[ticket]
	if !ok {
		return fmt.Errorf("ClosePosition failed: %w: %s", ports.ErrPositionNotFound, ticket)
	}
	v.close(o, v.exitPrice(o))
	return nil
}

// ListOpenPositions returns positions and pending orders carrying marker, oldest first.
func (v *Venue) ListOpenPositions(ctx context.Context, marker string) ([]domain.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expire()

	out := make([]domain.Position, 0, len(v.orders))
	for _, o := range v.orders {
		if o.marker == marker {
			out = append(out, o.position)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenTime.Equal(out[j].OpenTime) {
			return out[i].Ticket < out[j].Ticket
		}
		return out[i].OpenTime.Before(out[j].OpenTime)
	})
	return out, nil
}

// GetPosition returns one position; ErrPositionNotFound when it is closed.
func (v *Venue) GetPosition(ctx context.Context, ticket string) (*domain.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[ticket]
	if !ok {
		return nil, fmt.Errorf("GetPosition failed: %w: %s", ports.ErrPositionNotFound, ticket)
	}
	pos := o.position
	return &pos, nil
}

// settle fills crossed limit orders then closes positions whose stop or target was hit.
// Callers hold v.mu.
func (v *Venue) settle(symbol string) {
	q := v.quotes[symbol]
	for _, o := range v.orders {
		pos := &o.position
		if pos.Symbol != symbol {
			continue
		}
		if pos.Pending {
			if (pos.Direction == domain.Long && q.ask <= pos.EntryPrice) ||
				(pos.Direction == domain.Short && q.bid >= pos.EntryPrice) {
				pos.Pending = false
			}
			continue
		}

		exit := v.exitPrice(o)
		stopped := pos.StopLoss > 0 && ((pos.Direction == domain.Long && exit <= pos.StopLoss) ||
			(pos.Direction == domain.Short && exit >= pos.StopLoss))
		targeted := pos.TakeProfit > 0 && pos.TargetReached(exit, pos.TakeProfit)
		if stopped || targeted {
			v.close(o, exit)
		}
	}
}

func (v *Venue) expire() {
	now := v.now()
	for _, o := range v.orders {
		if o.position.Pending && !o.expires.IsZero() && now.After(o.expires) {
			delete(v.orders, o.position.Ticket)
		}
	}
}

func (v *Venue) exitPrice(o *order) float64 {
	q := v.quotes[o.position.Symbol]
	if o.position.Direction == domain.Short {
		return q.ask
	}
	return q.bid
}

// close books the profit of a filled position at price and forgets the order.
func (v *Venue) close(o *order, price float64) {
	delete(v.orders, o.position.Ticket)
	if o.position.Pending {
		return
	}
	info, ok := v.instruments[o.position.Symbol]
	if !ok {
		info = DefaultInstrument(o.position.Symbol)
	}
	if info.TickSize > 0 && price > 0 {
		move := (price - o.position.EntryPrice) * o.position.Direction.Sign()
		v.balance += move / info.TickSize * info.TickValue * o.position.Volume
	}
	v.history = append(v.history, o.position)
}
