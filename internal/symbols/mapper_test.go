package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapper_Translate(t *testing.T) {
	m := NewMapper(DefaultTables())

	tests := []struct {
		name      string
		canonical string
		broker    string
		want      string
	}{
		{"explicit mapping", "XAUUSD", "VantageDemo", "XAUUSD+"},
		{"synonym", "gold", "VantageDemo", "XAUUSD+"},
		{"index rename", "US30", "VantageDemo", "DJ30"},
		{"spacing variant", "cl oil", "VantageDemo", "CL-OIL"},
		{"punctuation variant", "Cl/Oil", "VantageDemo", "CL-OIL"},
		{"suffix fallback", "eurusd", "VantageDemo", "EURUSD+"},
		{"cent suffix fallback", "GBPCAD", "VantageCent", "GBPCAD.sc"},
		{"broker name is case insensitive", "XAUUSD", "vantagecent", "XAUUSD.sc"},
		{"unknown broker keeps canonical", "XAUUSD", "Binance", "XAUUSD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Translate(tt.canonical, tt.broker))
		})
	}
}

func TestMapper_CustomTable(t *testing.T) {
	m := NewMapper(map[string]BrokerTable{
		"binance": {Symbols: map[string]string{"XAUUSD": "XAUUSDT", "BTCUSD": "BTCUSDT"}},
	})
	assert.Equal(t, "XAUUSDT", m.Translate("XAUUSD", "Binance"))
	assert.Equal(t, "ETHUSDT", m.Translate("ethusdt", "binance"))
}
