package parser

import "signalCopyBot/internal/domain"

// RangeGatedConfig configures the price-range-gated strategy.
type RangeGatedConfig struct {
	Symbol        string
	Band          PriceBand
	TargetOffsets []float64
}

// DefaultRangeGatedConfig returns targets 2/5/8/20 for the given instrument band.
func DefaultRangeGatedConfig(symbol string, band PriceBand) RangeGatedConfig {
	return RangeGatedConfig{
		Symbol:        symbol,
		Band:          band,
		TargetOffsets: []float64{2, 5, 8, 20},
	}
}

// RangeGatedStrategy recognises its instrument from the entry price alone: it only
// accepts messages whose first number lies inside the configured band.
type RangeGatedStrategy struct {
	cfg RangeGatedConfig
}

// NewRangeGatedStrategy creates the price-range-gated strategy.
func NewRangeGatedStrategy(cfg RangeGatedConfig) *RangeGatedStrategy {
	return &RangeGatedStrategy{cfg: cfg}
}

func (s *RangeGatedStrategy) Name() string { return StrategyRangeGated }

func (s *RangeGatedStrategy) Attempt(text, author string, messageID int64) (*domain.Signal, bool) {
	dir, ok := DetectDirection(text)
	if !ok {
		return nil, false
	}
	entry, ok := FirstNumber(text)
	if !ok || !s.cfg.Band.Contains(entry) {
		return nil, false
	}
	stop, ok := stopAfterMarker(text)
	if !ok {
		return nil, false
	}

	sig, err := domain.NewSignal(domain.Signal{
		Direction:   dir,
		Entries:     []float64{entry},
		StopLoss:    stop,
		TakeProfits: offsetTargets(entry, dir.Sign(), s.cfg.TargetOffsets),
		Symbol:      s.cfg.Symbol,
		Author:      author,
		SignalID:    messageID,
		Source:      s.Name(),
	})
	if err != nil {
		return nil, false
	}
	return sig, true
}
