package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractNumbers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []float64
	}{
		{"grouped and comma decimal", "3 600.50 sl 3590,2", []float64{3600.50, 3590.2}},
		{"plain levels", "BUY 3650 SL 3642 TP 3652", []float64{3650, 3642, 3652}},
		{"indexed targets are not merged", "TP1 3650 TP2 3655", []float64{1, 3650, 2, 3655}},
		{"multi group", "balance 1 234 567", []float64{1234567}},
		{"no numbers", "buy now", []float64{}},
		{"malformed tokens skipped", "sl ..,, 12,", []float64{12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractNumbers(tt.text))
		})
	}
}

func TestParseNumber(t *testing.T) {
	v, ok := ParseNumber("-3270,5")
	assert.True(t, ok)
	assert.Equal(t, -3270.5, v)

	for _, bad := range []string{"", "abc", "NaN", "inf", "1.2.3"} {
		_, ok := ParseNumber(bad)
		assert.False(t, ok, bad)
	}
}

func TestReconstruct(t *testing.T) {
	tests := []struct {
		fragment  string
		reference float64
		want      float64
	}{
		{"70", 3279, 3270},
		{"88", 3279, 3288},
		{"76", 3279, 3276},
		{"04", 3299, 3304},
		{"3270", 3279, 3270},
		{"3270.5", 3279, 3270.5},
		{"55", 1.8745, 55},
		{"-70", 3279, 3270},
	}
	for _, tt := range tests {
		t.Run(tt.fragment, func(t *testing.T) {
			got, ok := Reconstruct(tt.fragment, tt.reference)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := Reconstruct("x", 3279)
	assert.False(t, ok)
}

func TestReconstructValue(t *testing.T) {
	assert.Equal(t, 3270.0, ReconstructValue(70, 3279))
	assert.Equal(t, 3270.5, ReconstructValue(-3270.5, 3279))
	assert.Equal(t, 1.87, ReconstructValue(1.87, 1.8745))
}

func TestParseRange(t *testing.T) {
	lo, hi, ok := ParseRange("3279-76")
	assert.True(t, ok)
	assert.Equal(t, []float64{3276, 3279}, []float64{lo, hi})

	lo, hi, ok = ParseRange("FROM 1.8755 – 1.8745")
	assert.True(t, ok)
	assert.Equal(t, []float64{1.8745, 1.8755}, []float64{lo, hi})

	_, _, ok = ParseRange("3279")
	assert.False(t, ok)
}

func TestDetectDirection(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"BUY gold now", "LONG", true},
		{"going long here", "LONG", true},
		{"Sell 3650", "SHORT", true},
		{"short EURUSD then buy back", "SHORT", true},
		{"no keyword", "", false},
	}
	for _, tt := range tests {
		dir, ok := DetectDirection(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, string(dir), tt.text)
	}
}

func TestNormalizeAuthor(t *testing.T) {
	assert.Equal(t, "icmtrading", NormalizeAuthor("ICM-Trading ✅"))
	assert.Equal(t, "fortune2024", NormalizeAuthor(" Fortune_2024 "))
}
