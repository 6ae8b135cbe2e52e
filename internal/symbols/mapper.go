package symbols

import (
	"strings"
	"unicode"
)

// BrokerTable is the symbol naming of one broker.
type BrokerTable struct {
	// Suffix is appended to canonical codes that have no explicit mapping, e.g. "+" or ".sc".
	Suffix string `yaml:"suffix"`
	// Symbols maps canonical codes and their synonyms to venue symbols.
	Symbols map[string]string `yaml:"symbols"`
}

// Mapper translates canonical instrument codes into venue-specific symbols.
// It is immutable after construction and safe for concurrent use.
type Mapper struct {
	brokers map[string]broker
}

type broker struct {
	suffix  string
	symbols map[string]string
}

// NewMapper builds a mapper from per-broker tables. Lookup keys are folded so that
// case, spacing and punctuation variants ("cl oil", "CL/OIL") resolve to the same entry.
func NewMapper(tables map[string]BrokerTable) *Mapper {
	m := &Mapper{brokers: make(map[string]broker, len(tables))}
	for name, t := range tables {
		b := broker{suffix: t.Suffix, symbols: make(map[string]string, len(t.Symbols))}
		for from, to := range t.Symbols {
			b.symbols[foldKey(from)] = to
		}
		m.brokers[foldKey(name)] = b
	}
	return m
}

// Translate returns the venue symbol for canonical on the given broker. Unmapped symbols
// fall back to the canonical code plus the broker suffix; unknown brokers get the
// canonical code unchanged.
func (m *Mapper) Translate(canonical, brokerName string) string {
	key := foldKey(canonical)
	b, ok := m.brokers[foldKey(brokerName)]
	if !ok {
		return key
	}
	if venueSymbol, ok := b.symbols[key]; ok {
		return venueSymbol
	}
	return key + b.suffix
}

func foldKey(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToUpper(r))
		}
	}
	return sb.String()
}

// DefaultTables returns the broker tables for the Vantage demo and cent accounts.
func DefaultTables() map[string]BrokerTable {
	return map[string]BrokerTable{
		"VantageDemo": {
			Suffix: "+",
			Symbols: map[string]string{
				"XAUUSD": "XAUUSD+", "GOLD": "XAUUSD+",
				"NAS100": "NAS100", "US100": "NAS100",
				"US30": "DJ30", "DJ30": "DJ30",
				"USOIL": "CL-OIL", "CLOIL": "CL-OIL", "CL OIL": "CL-OIL", "CL/OIL": "CL-OIL",
				"BTC": "BTCUSD", "BITCOIN": "BTCUSD", "BTCUSD": "BTCUSD",
				"US500": "SP500", "SP500": "SP500",
			},
		},
		"VantageCent": {
			Suffix: ".sc",
			Symbols: map[string]string{
				"XAUUSD": "XAUUSD.sc", "GOLD": "XAUUSD.sc",
				"US30": "DJ30.sc", "DJ30": "DJ30.sc",
				"US100": "NAS100.sc", "NAS100": "NAS100.sc",
			},
		},
	}
}
