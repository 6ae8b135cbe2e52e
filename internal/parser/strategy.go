package parser

import "signalCopyBot/internal/domain"

// Strategy names used by routing tables.
const (
	StrategyFixedOffset   = "fixed_offset"
	StrategyRangeGated    = "range_gated"
	StrategyExplicitRange = "explicit_range"
)

// Strategy is a deterministic per-author extraction rule set.
// Attempt returns false when the message is not in the strategy's format;
// declining is an expected outcome that lets the router try the next strategy.
type Strategy interface {
	Name() string
	Attempt(text, author string, messageID int64) (*domain.Signal, bool)
}

// PriceBand is an inclusive price interval used to recognise an instrument by its price level.
type PriceBand struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether price lies inside the band.
func (b PriceBand) Contains(price float64) bool {
	return price >= b.Min && price <= b.Max
}

func offsetTargets(entry, sign float64, offsets []float64) []domain.TakeProfit {
	tps := make([]domain.TakeProfit, 0, len(offsets)+1)
	for _, off := range offsets {
		tps = append(tps, domain.Target(offsetPrice(entry, off, sign)))
	}
	return tps
}
