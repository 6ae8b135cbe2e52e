package parser

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"signalCopyBot/internal/domain"
)

var (
	fromRange     = regexp.MustCompile(`(?i)\bFROM\s+(` + numberPattern + `)\s*[-–]\s*(` + numberPattern + `)`)
	taggedTarget  = regexp.MustCompile(`(?i)TP(?:\d(?:\s*[-–:]\s*|\s+)|\s*[-–:]?\s*)(` + numberPattern + `)`)
	indexedTarget = regexp.MustCompile(`(?i)TP\d`)
	pipLadder     = regexp.MustCompile(`(?i)TP\s*[-–:]?\s*(?:\d+\s+)+\d+\s*(?:PIPS?|POINTS?)\b[\s\S]*\bOPEN\b`)
	stopTagged    = regexp.MustCompile(`(?i)SL\s*(?:[-–:=]\s*)*(` + numberPattern + `)`)
)

// ExplicitRangeConfig configures the explicit-range strategy.
type ExplicitRangeConfig struct {
	// Symbols are canonical instrument codes recognised verbatim.
	Symbols []string
	// Synonyms fold alternative names to a canonical code, e.g. GOLD -> XAUUSD.
	Synonyms map[string]string
	// LadderMultipliers scale the stop distance when a pip-ladder target list is found.
	LadderMultipliers []float64
	// Tolerance is the float comparison slack used to exclude entry and stop from fallback targets.
	Tolerance float64
}

// DefaultTradedSymbols lists the instruments recognised by name.
var DefaultTradedSymbols = []string{
	"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "USDCAD", "AUDUSD", "NZDUSD",
	"EURGBP", "EURJPY", "EURCHF", "EURAUD", "EURNZD", "EURCAD",
	"GBPJPY", "GBPCHF", "GBPAUD", "GBPNZD", "GBPCAD",
	"AUDJPY", "NZDJPY", "CADJPY", "CHFJPY",
	"AUDNZD", "AUDCHF", "AUDCAD", "NZDCHF", "NZDCAD", "CADCHF",
	"XAUUSD", "XAGUSD", "USOIL", "US30", "US100", "US500",
}

// DefaultExplicitRangeConfig returns the stock vocabulary and ladder multipliers.
func DefaultExplicitRangeConfig() ExplicitRangeConfig {
	return ExplicitRangeConfig{
		Symbols:           DefaultTradedSymbols,
		Synonyms:          map[string]string{"GOLD": "XAUUSD", "SILVER": "XAGUSD"},
		LadderMultipliers: []float64{0.5, 1, 1.5, 3},
		Tolerance:         1e-6,
	}
}

type vocabularyEntry struct {
	canonical string
	pattern   *regexp.Regexp
}

// ExplicitRangeStrategy parses messages that name their instrument and tag every level:
// "BUY GBPCAD FROM 1.8745 - 1.8755 SL 1.8700 TP 1.8800 TP2 1.8820".
// Direction, instrument, entries, stop and targets are all mandatory.
type ExplicitRangeStrategy struct {
	cfg        ExplicitRangeConfig
	vocabulary []vocabularyEntry
}

// NewExplicitRangeStrategy creates the strategy and compiles its instrument vocabulary.
func NewExplicitRangeStrategy(cfg ExplicitRangeConfig) *ExplicitRangeStrategy {
	s := &ExplicitRangeStrategy{cfg: cfg}
	add := func(token, canonical string) {
		s.vocabulary = append(s.vocabulary, vocabularyEntry{
			canonical: strings.ToUpper(canonical),
			pattern:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(token) + `\b`),
		})
	}
	for _, sym := range cfg.Symbols {
		add(sym, sym)
	}
	for alias, canonical := range cfg.Synonyms {
		add(alias, canonical)
	}
	// longer tokens first so "US100" wins over a shorter overlapping name
	sort.SliceStable(s.vocabulary, func(i, j int) bool {
		return len(s.vocabulary[i].pattern.String()) > len(s.vocabulary[j].pattern.String())
	})
	return s
}

func (s *ExplicitRangeStrategy) Name() string { return StrategyExplicitRange }

func (s *ExplicitRangeStrategy) Attempt(text, author string, messageID int64) (*domain.Signal, bool) {
	if !HasStopMarker(text) || !HasTakeProfitMarker(text) {
		return nil, false
	}
	dir, ok := DetectDirection(text)
	if !ok {
		return nil, false
	}
	symbol, symbolPattern, ok := s.findSymbol(text)
	if !ok {
		return nil, false
	}
	entries, ok := s.entries(symbolPattern.ReplaceAllString(firstLine(text), " "))
	if !ok {
		return nil, false
	}
	m := stopTagged.FindStringSubmatch(joinDigitGroups(text))
	if m == nil {
		return nil, false
	}
	stop, ok := Reconstruct(m[1], entries[0])
	if !ok {
		return nil, false
	}
	tps := s.targets(text, symbolPattern, dir, entries, stop)
	if len(tps) == 0 {
		return nil, false
	}

	sig, err := domain.NewSignal(domain.Signal{
		Direction:   dir,
		Entries:     entries,
		StopLoss:    stop,
		TakeProfits: tps,
		Symbol:      symbol,
		Author:      author,
		SignalID:    messageID,
		Source:      s.Name(),
	})
	if err != nil {
		return nil, false
	}
	return sig, true
}

// findSymbol returns the vocabulary entry mentioned earliest in text.
func (s *ExplicitRangeStrategy) findSymbol(text string) (string, *regexp.Regexp, bool) {
	best := -1
	var found vocabularyEntry
	for _, v := range s.vocabulary {
		loc := v.pattern.FindStringIndex(text)
		if loc != nil && (best < 0 || loc[0] < best) {
			best, found = loc[0], v
		}
	}
	if best < 0 {
		return "", nil, false
	}
	return found.canonical, found.pattern, true
}

// entries reads a "FROM x - y" range or the first number of the first line.
func (s *ExplicitRangeStrategy) entries(line string) ([]float64, bool) {
	line = joinDigitGroups(line)
	if m := fromRange.FindStringSubmatch(line); m != nil {
		lo, ok := ParseNumber(m[1])
		if !ok {
			return nil, false
		}
		hi, ok := Reconstruct(m[2], lo)
		if !ok {
			return nil, false
		}
		if hi < lo {
			lo, hi = hi, lo
		}
		return []float64{lo, hi}, true
	}
	entry, ok := FirstNumber(line)
	if !ok {
		return nil, false
	}
	return []float64{entry}, true
}

func (s *ExplicitRangeStrategy) targets(text string, symbolPattern *regexp.Regexp, dir domain.Direction, entries []float64, stop float64) []domain.TakeProfit {
	entry := entries[0]
	var prices []float64

	switch {
	case pipLadder.MatchString(text) && !indexedTarget.MatchString(text):
		prices = LadderTargets(entry, stop, dir, s.cfg.LadderMultipliers)
	default:
		for _, m := range taggedTarget.FindAllStringSubmatch(joinDigitGroups(text), -1) {
			if v, ok := Reconstruct(m[1], entry); ok {
				prices = append(prices, v)
			}
		}
		prices = s.sortUnique(prices)
		if len(prices) == 0 {
			for _, v := range ExtractNumbers(symbolPattern.ReplaceAllString(text, " ")) {
				if !s.near(v, entries) && !s.near(v, []float64{stop}) {
					prices = append(prices, v)
				}
			}
		}
	}

	if len(prices) == 0 {
		return nil
	}
	tps := make([]domain.TakeProfit, 0, domain.MaxTakeProfits)
	for _, p := range prices {
		tps = append(tps, domain.Target(p))
	}
	if len(tps) < domain.MaxTakeProfits {
		tps = append(tps, domain.OpenTarget())
	}
	if len(tps) > domain.MaxTakeProfits {
		tps = tps[:domain.MaxTakeProfits]
	}
	return tps
}

func (s *ExplicitRangeStrategy) near(v float64, refs []float64) bool {
	for _, r := range refs {
		if math.Abs(v-r) <= s.cfg.Tolerance {
			return true
		}
	}
	return false
}

// sortUnique sorts tagged targets ascending and drops duplicates.
func (s *ExplicitRangeStrategy) sortUnique(prices []float64) []float64 {
	sort.Float64s(prices)
	out := prices[:0]
	for _, p := range prices {
		if len(out) > 0 && math.Abs(out[len(out)-1]-p) <= s.cfg.Tolerance {
			continue
		}
		out = append(out, p)
	}
	return out
}

// LadderTargets synthesizes targets at multiples of the stop distance from entry,
// signed by direction.
func LadderTargets(entry, stop float64, dir domain.Direction, multipliers []float64) []float64 {
	e := decimal.NewFromFloat(entry)
	dist := e.Sub(decimal.NewFromFloat(stop)).Abs()
	sign := decimal.NewFromFloat(dir.Sign())
	out := make([]float64, 0, len(multipliers))
	for _, m := range multipliers {
		tp, _ := e.Add(dist.Mul(decimal.NewFromFloat(m)).Mul(sign)).Float64()
		out = append(out, tp)
	}
	return out
}
