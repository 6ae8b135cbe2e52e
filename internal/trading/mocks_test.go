package trading

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

type mockLogger struct {
	mu       sync.Mutex
	infoMsgs []string
	warnMsgs []string
	errors   []error
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}

type modifyCall struct {
	ticket  string
	newStop float64
	target  float64
}

type mockVenue struct {
	mu sync.Mutex

	name          string
	bid, ask      float64
	quoteErr      error
	quoteSides    []domain.OrderSide
	balance       float64
	balanceErr    error
	info          domain.InstrumentInfo
	serverTime    time.Time
	serverTimeErr error

	rejectTargets map[float64]error
	submitted     []domain.OrderRequest

	positions []domain.Position
	gone      map[string]bool
	modifyErr error
	modified  []modifyCall
	closeErr  error
	closed    []string
}

func newMockVenue(name string) *mockVenue {
	return &mockVenue{
		name:    name,
		balance: 100000,
		info:    goldInfo(),
	}
}

func goldInfo() domain.InstrumentInfo {
	return domain.InstrumentInfo{
		Symbol:     "XAUUSD+",
		Digits:     2,
		Point:      0.01,
		TickSize:   0.01,
		TickValue:  1,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
	}
}

func (m *mockVenue) Name() string { return m.name }

func (m *mockVenue) GetQuote(ctx context.Context, symbol string, side domain.OrderSide) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteSides = append(m.quoteSides, side)
	if m.quoteErr != nil {
		return 0, m.quoteErr
	}
	if side == domain.Buy {
		return m.ask, nil
	}
	return m.bid, nil
}

func (m *mockVenue) GetAccountBalance(ctx context.Context) (float64, error) {
	return m.balance, m.balanceErr
}

func (m *mockVenue) GetInstrumentInfo(ctx context.Context, symbol string) (*domain.InstrumentInfo, error) {
	info := m.info
	info.Symbol = symbol
	return &info, nil
}

func (m *mockVenue) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.rejectTargets[req.TakeProfit]; ok {
		return nil, err
	}
	m.submitted = append(m.submitted, req)
	return &domain.OrderResult{Ticket: req.Tag + "#" + strconv.Itoa(len(m.submitted)), Status: "FILLED"}, nil
}

func (m *mockVenue) ModifyStop(ctx context.Context, ticket string, newStop, target float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modifyErr != nil {
		return m.modifyErr
	}
	m.modified = append(m.modified, modifyCall{ticket: ticket, newStop: newStop, target: target})
	for i := range m.positions {
		if m.positions[i].Ticket == ticket {
			m.positions[i].StopLoss = newStop
		}
	}
	return nil
}

func (m *mockVenue) ClosePosition(ctx context.Context, ticket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeErr != nil {
		return m.closeErr
	}
	m.closed = append(m.closed, ticket)
	kept := m.positions[:0]
	for _, p := range m.positions {
		if p.Ticket != ticket {
			kept = append(kept, p)
		}
	}
	m.positions = kept
	return nil
}

func (m *mockVenue) ListOpenPositions(ctx context.Context, marker string) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Position(nil), m.positions...), nil
}

func (m *mockVenue) GetPosition(ctx context.Context, ticket string) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gone[ticket] {
		return nil, ports.ErrPositionNotFound
	}
	for _, p := range m.positions {
		if p.Ticket == ticket {
			p := p
			return &p, nil
		}
	}
	return nil, ports.ErrPositionNotFound
}

func (m *mockVenue) GetServerTime(ctx context.Context) (time.Time, error) {
	return m.serverTime, m.serverTimeErr
}

type mockJournal struct {
	recorded []*domain.PlacedOrder
	err      error
}

func (m *mockJournal) MarkProcessed(ctx context.Context, channelID string, messageID int64, outcome string) error {
	return nil
}

func (m *mockJournal) RecordPlacement(ctx context.Context, order *domain.PlacedOrder) error {
	m.recorded = append(m.recorded, order)
	return m.err
}

func (m *mockJournal) FindBySignal(ctx context.Context, signalID int64) ([]*domain.PlacedOrder, error) {
	return nil, errors.New("not implemented")
}

func (m *mockJournal) Prune(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func position(ticket string, dir domain.Direction, entry, stop, target float64, tag string) domain.Position {
	return domain.Position{
		Ticket:     ticket,
		Symbol:     "XAUUSD+",
		Direction:  dir,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Volume:     0.1,
		Tag:        tag,
	}
}
