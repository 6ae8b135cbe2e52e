package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// StrategyOracle is the Source recorded on signals produced by the fallback oracle.
const StrategyOracle = "oracle"

// oracle reply field names, with accepted aliases
var oracleFields = map[string][]string{
	"author":    {"author"},
	"symbol":    {"symbol", "instrument"},
	"direction": {"direction", "sens", "side"},
	"entries":   {"entries", "entry"},
	"sl":        {"sl", "stop_loss", "stoploss"},
	"tps":       {"tps", "take_profits", "takeprofits"},
}

// stop values meaning "use the market" instead of a price
var marketWords = map[string]bool{"market": true, "open": true, "marché": true, "marche": true}

// StripCodeFences removes a surrounding ```json ... ``` block from an oracle reply.
func StripCodeFences(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language hint on the opening fence
		if !strings.ContainsAny(s[:i], "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// DecodeOracleReply parses a raw oracle reply into a signal attributed to author.
// Every failure wraps ports.ErrValidation.
func DecodeOracleReply(reply, author string, messageID int64) (*domain.Signal, error) {
	var record map[string]interface{}
	if err := json.Unmarshal([]byte(StripCodeFences(reply)), &record); err != nil {
		return nil, fmt.Errorf("%w: oracle reply is not a JSON object: %v", ports.ErrValidation, err)
	}
	return NormalizeOracleRecord(record, author, messageID)
}

// NormalizeOracleRecord applies the post-processing contract to a decoded oracle record:
// all six fields are required, numeric strings are coerced, "open" targets are kept,
// stop and targets are made positive, the symbol is upper-cased and truncated fragments
// are completed against the first entry. The reply's author must be present but the
// signal is attributed to the message's own author.
func NormalizeOracleRecord(record map[string]interface{}, author string, messageID int64) (*domain.Signal, error) {
	values := make(map[string]interface{}, len(oracleFields))
	for field, aliases := range oracleFields {
		v, ok := lookupField(record, aliases)
		if !ok {
			return nil, fmt.Errorf("%w: oracle reply missing %q", ports.ErrValidation, field)
		}
		values[field] = v
	}

	symbol, _ := values["symbol"].(string)
	symbol = strings.ToUpper(strings.Join(strings.Fields(symbol), ""))

	dirWord, _ := values["direction"].(string)
	dir, ok := DetectDirection(dirWord)
	if !ok {
		return nil, fmt.Errorf("%w: oracle direction %q not recognised", ports.ErrValidation, dirWord)
	}

	var entries []float64
	for _, raw := range asList(values["entries"]) {
		if v, ok := coerceNumber(raw); ok {
			entries = append(entries, math.Abs(v))
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: oracle reply has no numeric entry", ports.ErrValidation)
	}
	reference := entries[0]
	for i := 1; i < len(entries); i++ {
		entries[i] = ReconstructValue(entries[i], reference)
	}

	// a market stop survives post-processing as 0 and is rejected by signal validation
	var stop float64
	if v, ok := coerceNumber(values["sl"]); ok {
		stop = ReconstructValue(v, reference)
	} else if w, isWord := values["sl"].(string); !isWord || !marketWords[strings.ToLower(strings.TrimSpace(w))] {
		return nil, fmt.Errorf("%w: oracle stop %v is neither a price nor a market marker", ports.ErrValidation, values["sl"])
	}

	var tps []domain.TakeProfit
	for _, raw := range asList(values["tps"]) {
		if w, isWord := raw.(string); isWord && strings.EqualFold(strings.TrimSpace(w), "open") {
			tps = append(tps, domain.OpenTarget())
			continue
		}
		if v, ok := coerceNumber(raw); ok {
			tps = append(tps, domain.Target(ReconstructValue(v, reference)))
		}
	}
	if len(tps) > domain.MaxTakeProfits {
		tps = tps[:domain.MaxTakeProfits]
	}

	sig, err := domain.NewSignal(domain.Signal{
		Direction:   dir,
		Entries:     entries,
		StopLoss:    stop,
		TakeProfits: tps,
		Symbol:      symbol,
		Author:      NormalizeAuthor(author),
		SignalID:    messageID,
		Source:      StrategyOracle,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrValidation, err)
	}
	return sig, nil
}

func lookupField(record map[string]interface{}, aliases []string) (interface{}, bool) {
	for key, v := range record {
		for _, alias := range aliases {
			if strings.EqualFold(key, alias) && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

func asList(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return list
	}
	return []interface{}{v}
}

// coerceNumber accepts JSON numbers and numeric-looking strings, including "-3270,5".
func coerceNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case string:
		return ParseNumber(n)
	default:
		return 0, false
	}
}
