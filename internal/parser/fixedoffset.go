package parser

import "signalCopyBot/internal/domain"

// FixedOffsetConfig configures the default strategy.
type FixedOffsetConfig struct {
	Symbol        string
	StopOffset    float64
	TargetOffsets []float64
	TrailingOpen  bool
}

// DefaultFixedOffsetConfig returns the stock offsets: stop 8, targets 2/4/6 and a trailing OPEN.
func DefaultFixedOffsetConfig(symbol string) FixedOffsetConfig {
	return FixedOffsetConfig{
		Symbol:        symbol,
		StopOffset:    8,
		TargetOffsets: []float64{2, 4, 6},
		TrailingOpen:  true,
	}
}

// FixedOffsetStrategy takes the first number of the first line as entry and derives
// stop and targets from fixed offsets on a fixed instrument.
type FixedOffsetStrategy struct {
	cfg FixedOffsetConfig
}

// NewFixedOffsetStrategy creates the default strategy.
func NewFixedOffsetStrategy(cfg FixedOffsetConfig) *FixedOffsetStrategy {
	return &FixedOffsetStrategy{cfg: cfg}
}

func (s *FixedOffsetStrategy) Name() string { return StrategyFixedOffset }

func (s *FixedOffsetStrategy) Attempt(text, author string, messageID int64) (*domain.Signal, bool) {
	dir, ok := DetectDirection(text)
	if !ok {
		return nil, false
	}
	entry, ok := FirstNumber(firstLine(text))
	if !ok {
		return nil, false
	}

	sign := dir.Sign()
	tps := offsetTargets(entry, sign, s.cfg.TargetOffsets)
	if s.cfg.TrailingOpen && len(tps) < domain.MaxTakeProfits {
		tps = append(tps, domain.OpenTarget())
	}

	sig, err := domain.NewSignal(domain.Signal{
		Direction:   dir,
		Entries:     []float64{entry},
		StopLoss:    offsetPrice(entry, s.cfg.StopOffset, -sign),
		TakeProfits: tps,
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
