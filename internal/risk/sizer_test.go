package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

var gold = domain.InstrumentInfo{
	Symbol:     "XAUUSD+",
	Digits:     2,
	Point:      0.01,
	TickSize:   0.01,
	TickValue:  1,
	VolumeMin:  0.01,
	VolumeMax:  1,
	VolumeStep: 0.01,
}

func TestSizer_Size(t *testing.T) {
	sizer := NewSizer(SizerConfig{
		RiskPercent:          1,
		AuthorMultipliers:    map[string]float64{"icm": 2},
		VolumeUnitMultiplier: 1,
		CoarseMinimumSymbols: []string{"NAS100"},
		CoarseMinimum:        0.1,
	})

	tests := []struct {
		name    string
		req     SizeRequest
		want    float64
		wantErr bool
	}{
		{
			name: "risk split across targets and rounded down",
			req:  SizeRequest{Balance: 100000, StopDistance: 8, NumericTargets: 2, Symbol: "XAUUSD", Instrument: gold},
			want: 0.62,
		},
		{
			name: "author multiplier",
			req:  SizeRequest{Balance: 100000, StopDistance: 8, NumericTargets: 4, Author: "icmvip", Symbol: "XAUUSD", Instrument: gold},
			want: 0.62,
		},
		{
			name: "clamped to maximum",
			req:  SizeRequest{Balance: 1000000, StopDistance: 8, NumericTargets: 1, Symbol: "XAUUSD", Instrument: gold},
			want: 1,
		},
		{
			name: "raised to minimum",
			req:  SizeRequest{Balance: 1000, StopDistance: 8, NumericTargets: 3, Symbol: "XAUUSD", Instrument: gold},
			want: 0.01,
		},
		{
			name: "coarse minimum symbol",
			req:  SizeRequest{Balance: 1000, StopDistance: 8, NumericTargets: 3, Symbol: "NAS100", Instrument: gold},
			want: 0.1,
		},
		{
			name: "account risk override",
			req: SizeRequest{
				Account: domain.Account{RiskPercent: 0.5},
				Balance: 100000, StopDistance: 8, NumericTargets: 2, Symbol: "XAUUSD", Instrument: gold,
			},
			want: 0.31,
		},
		{
			name: "fixed lot account skips risk inputs",
			req:  SizeRequest{Account: domain.Account{FixedLot: 0.137}, Symbol: "XAUUSD", Instrument: gold},
			want: 0.13,
		},
		{name: "zero balance", req: SizeRequest{StopDistance: 8, NumericTargets: 1, Instrument: gold}, wantErr: true},
		{name: "zero stop distance", req: SizeRequest{Balance: 1000, NumericTargets: 1, Instrument: gold}, wantErr: true},
		{name: "no numeric targets", req: SizeRequest{Balance: 1000, StopDistance: 8, Instrument: gold}, wantErr: true},
		{
			name:    "missing tick size",
			req:     SizeRequest{Balance: 1000, StopDistance: 8, NumericTargets: 1, Instrument: domain.InstrumentInfo{Point: 0.01, TickValue: 1}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sizer.Size(tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ports.ErrSizing)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSizer_VolumeUnitMultiplier(t *testing.T) {
	sizer := NewSizer(SizerConfig{RiskPercent: 1, VolumeUnitMultiplier: 100})
	info := gold
	info.VolumeMax = 0

	got, err := sizer.Size(SizeRequest{Balance: 100000, StopDistance: 8, NumericTargets: 2, Symbol: "XAUUSD", Instrument: info})
	require.NoError(t, err)
	assert.InDelta(t, 62.5, got, 1e-9)
}
