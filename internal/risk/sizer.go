package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// SizerConfig holds configuration for position sizing.
type SizerConfig struct {
	RiskPercent       float64            // percent of balance risked per signal, e.g. 0.1 for 0.1%
	AuthorMultipliers map[string]float64 // normalized author substring -> volume multiplier

	// VolumeUnitMultiplier converts computed lots into the venue's volume unit.
	// 1 for venues quoting standard lots.
	VolumeUnitMultiplier float64

	CoarseMinimumSymbols []string // symbols whose minimum volume is CoarseMinimum
	CoarseMinimum        float64
}

// DefaultSizerConfig returns a 0.1% risk budget with the coarse-minimum index list.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		RiskPercent:          0.1,
		VolumeUnitMultiplier: 1,
		CoarseMinimumSymbols: []string{"DJ30", "NAS100", "SP500"},
		CoarseMinimum:        0.1,
	}
}

// Sizer computes order volumes under a risk budget.
type Sizer struct {
	config SizerConfig
	coarse map[string]bool
}

// NewSizer creates a position sizer.
func NewSizer(config SizerConfig) *Sizer {
	if config.VolumeUnitMultiplier <= 0 {
		config.VolumeUnitMultiplier = 1
	}
	coarse := make(map[string]bool, len(config.CoarseMinimumSymbols))
	for _, s := range config.CoarseMinimumSymbols {
		coarse[strings.ToUpper(s)] = true
	}
	return &Sizer{config: config, coarse: coarse}
}

// SizeRequest carries everything needed to size one take-profit order.
type SizeRequest struct {
	Account        domain.Account
	Balance        float64
	StopDistance   float64 // absolute price distance between entry and stop
	NumericTargets int     // orders sharing the risk budget
	Author         string
	Symbol         string // canonical symbol
	Instrument     domain.InstrumentInfo
}

// Size returns the volume of each order. It fails rather than return a zero or
// unbounded volume when the inputs cannot produce a safe size.
func (s *Sizer) Size(req SizeRequest) (float64, error) {
	info := req.Instrument
	var lot float64

	if req.Account.UsesFixedLot() {
		lot = req.Account.FixedLot
	} else {
		switch {
		case req.Balance <= 0:
			return 0, fmt.Errorf("%w: balance unavailable (%v)", ports.ErrSizing, req.Balance)
		case info.TickSize <= 0 || info.TickValue <= 0 || info.Point <= 0:
			return 0, fmt.Errorf("%w: tick economics unavailable for %s", ports.ErrSizing, info.Symbol)
		case req.StopDistance <= 0:
			return 0, fmt.Errorf("%w: zero stop distance", ports.ErrSizing)
		case req.NumericTargets <= 0:
			return 0, fmt.Errorf("%w: no numeric take profit to size", ports.ErrSizing)
		}

		riskPercent := s.config.RiskPercent
		if req.Account.RiskPercent > 0 {
			riskPercent = req.Account.RiskPercent
		}
		riskPerOrder := req.Balance * riskPercent / 100 / float64(req.NumericTargets)
		stopPoints := req.StopDistance / info.Point
		valuePerPoint := info.TickValue * info.Point / info.TickSize
		lot = riskPerOrder / (stopPoints * valuePerPoint)
		lot *= s.authorMultiplier(req.Author) * s.config.VolumeUnitMultiplier
	}

	return s.normalize(lot, req.Symbol, info)
}

func (s *Sizer) authorMultiplier(author string) float64 {
	for pattern, m := range s.config.AuthorMultipliers {
		if m > 0 && pattern != "" && strings.Contains(author, pattern) {
			return m
		}
	}
	return 1
}

// normalize rounds down to the volume step and clamps to the instrument limits.
func (s *Sizer) normalize(lot float64, symbol string, info domain.InstrumentInfo) (float64, error) {
	step := decimal.NewFromFloat(info.VolumeStep)
	if !step.IsPositive() {
		step = decimal.New(1, -2)
	}
	volume := decimal.NewFromFloat(lot).Div(step).Floor().Mul(step)

	minVolume := decimal.NewFromFloat(info.VolumeMin)
	if s.coarse[strings.ToUpper(symbol)] || s.coarse[strings.ToUpper(info.Symbol)] {
		minVolume = decimal.Max(minVolume, decimal.NewFromFloat(s.config.CoarseMinimum))
	}
	if minVolume.IsPositive() && volume.LessThan(minVolume) {
		volume = minVolume
	}
	if info.VolumeMax > 0 {
		maxVolume := decimal.NewFromFloat(info.VolumeMax)
		if volume.GreaterThan(maxVolume) {
			volume = maxVolume.Div(step).Floor().Mul(step)
		}
	}
	if !volume.IsPositive() {
		return 0, fmt.Errorf("%w: volume rounds to zero for %s", ports.ErrSizing, symbol)
	}
	f, _ := volume.Float64()
	return f, nil
}
