package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// MaxTakeProfits is the largest number of targets a signal may carry.
const MaxTakeProfits = 4

// ErrInvalidSignal is returned when a would-be signal violates its invariants.
var ErrInvalidSignal = errors.New("invalid signal")

// TakeProfit is either a numeric target or the OPEN sentinel (manual exit).
type TakeProfit struct {
	Price float64
	Open  bool
}

// Target returns a numeric take-profit.
func Target(price float64) TakeProfit { return TakeProfit{Price: price} }

// OpenTarget returns the OPEN sentinel.
func OpenTarget() TakeProfit { return TakeProfit{Open: true} }

func (t TakeProfit) String() string {
	if t.Open {
		return "open"
	}
	return strconv.FormatFloat(t.Price, 'f', -1, 64)
}

// Signal is a normalized trade instruction produced by the parsing stage.
// It is read-only once returned by NewSignal.
type Signal struct {
	Direction   Direction
	Entries     []float64 // 1 or 2 prices, ascending; Entries[0] is the primary entry
	StopLoss    float64   // always a positive magnitude
	TakeProfits []TakeProfit
	Symbol      string // canonical instrument code, e.g. XAUUSD
	Author      string // normalized source identity
	SignalID    int64  // originating message id, cross-account correlation key

	// ExpirationMinutes is the pending-order time to live; 0 selects the configured default.
	ExpirationMinutes int

	// Source names the strategy that produced the signal.
	Source string
}

// NewSignal validates s and returns a detached copy with entries sorted ascending.
func NewSignal(s Signal) (*Signal, error) {
	out := s
	out.Entries = append([]float64(nil), s.Entries...)
	out.TakeProfits = append([]TakeProfit(nil), s.TakeProfits...)
	sort.Float64s(out.Entries)

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate checks the signal invariants.
func (s *Signal) Validate() error {
	switch {
	case s.Direction != Long && s.Direction != Short:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidSignal, s.Direction)
	case s.Symbol == "":
		return fmt.Errorf("%w: missing symbol", ErrInvalidSignal)
	case len(s.Entries) == 0 || len(s.Entries) > 2:
		return fmt.Errorf("%w: expected 1 or 2 entries, got %d", ErrInvalidSignal, len(s.Entries))
	case s.StopLoss <= 0:
		return fmt.Errorf("%w: stop loss must be positive, got %v", ErrInvalidSignal, s.StopLoss)
	case len(s.TakeProfits) == 0 || len(s.TakeProfits) > MaxTakeProfits:
		return fmt.Errorf("%w: expected 1 to %d take profits, got %d", ErrInvalidSignal, MaxTakeProfits, len(s.TakeProfits))
	case s.ExpirationMinutes < 0:
		return fmt.Errorf("%w: negative expiration", ErrInvalidSignal)
	}
	for i, e := range s.Entries {
		if e <= 0 {
			return fmt.Errorf("%w: entry %d must be positive", ErrInvalidSignal, i)
		}
		if i > 0 && e < s.Entries[i-1] {
			return fmt.Errorf("%w: entries must be ascending", ErrInvalidSignal)
		}
	}
	for i, tp := range s.TakeProfits {
		if !tp.Open && tp.Price <= 0 {
			return fmt.Errorf("%w: take profit %d must be positive", ErrInvalidSignal, i)
		}
	}
	return nil
}

// PrimaryEntry is the price used for classification and sizing.
func (s *Signal) PrimaryEntry() float64 {
	return s.Entries[0]
}

// StopDistance is the absolute distance between the primary entry and the stop.
func (s *Signal) StopDistance() float64 {
	d := s.PrimaryEntry() - s.StopLoss
	if d < 0 {
		return -d
	}
	return d
}

// NumericTakeProfits returns the targets that are not OPEN, in signal order.
func (s *Signal) NumericTakeProfits() []float64 {
	out := make([]float64, 0, len(s.TakeProfits))
	for _, tp := range s.TakeProfits {
		if !tp.Open {
			out = append(out, tp.Price)
		}
	}
	return out
}

// FirstNumericTakeProfit returns the first non-OPEN target.
func (s *Signal) FirstNumericTakeProfit() (float64, bool) {
	for _, tp := range s.TakeProfits {
		if !tp.Open {
			return tp.Price, true
		}
	}
	return 0, false
}
