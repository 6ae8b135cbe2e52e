package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

func newTestEngine(t *testing.T, cfg BreakEvenConfig, venues map[string]*mockVenue, master string) (*BreakEvenEngine, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	var runners []AccountRunner
	for name, v := range venues {
		runners = append(runners, NewDirectRunner(domain.Account{Name: name, IsMaster: name == master}, v))
	}
	engine, err := NewBreakEvenEngine(cfg, runners, logger)
	require.NoError(t, err)
	return engine, logger
}

func TestBreakEven_SingleAccountMovesOnce(t *testing.T) {
	venue := newMockVenue("main")
	venue.bid = 3652.5
	venue.positions = []domain.Position{position("m1", domain.Long, 3650, 3642, 3654, "99/3652")}
	engine, _ := newTestEngine(t, DefaultBreakEvenConfig(), map[string]*mockVenue{"main": venue}, "main")

	assert.Equal(t, 1, engine.Cycle(context.Background()))
	require.Len(t, venue.modified, 1)
	assert.Equal(t, modifyCall{ticket: "m1", newStop: 3650, target: 3654}, venue.modified[0])

	assert.Equal(t, 0, engine.Cycle(context.Background()))
	assert.Len(t, venue.modified, 1)
}

func TestBreakEven_Evaluation(t *testing.T) {
	tests := []struct {
		name     string
		cfg      func(c *BreakEvenConfig)
		pos      domain.Position
		bid, ask float64
		wantStop float64
		wantNone bool
	}{
		{
			name:     "target not reached",
			pos:      position("m1", domain.Long, 3650, 3642, 3654, "99/3652"),
			bid:      3651.9,
			wantNone: true,
		},
		{
			name:     "foreign tag skipped",
			pos:      position("m1", domain.Long, 3650, 3642, 3654, "manual"),
			bid:      3660,
			wantNone: true,
		},
		{
			name:     "pending order skipped",
			pos:      func() domain.Position { p := position("m1", domain.Long, 3650, 3642, 3654, "99/3652"); p.Pending = true; return p }(),
			bid:      3660,
			wantNone: true,
		},
		{
			name:     "fixed threshold treats stop as already protected",
			pos:      position("m1", domain.Long, 3650, 3649.51, 3654, "99/3652"),
			bid:      3653,
			wantNone: true,
		},
		{
			name:     "percent threshold is tighter",
			cfg:      func(c *BreakEvenConfig) { c.Policy = ThresholdPercent; c.Threshold = 0.01316 },
			pos:      position("m1", domain.Long, 3650, 3649.51, 3654, "99/3652"),
			bid:      3653,
			wantStop: 3650,
		},
		{
			name:     "short with offset uses ask",
			cfg:      func(c *BreakEvenConfig) { c.Offset = 0.3 },
			pos:      position("m1", domain.Short, 3650, 3658, 3646, "5/3648"),
			ask:      3647.9,
			bid:      3700,
			wantStop: 3649.7,
		},
		{
			name:     "stop already beyond break-even",
			pos:      position("m1", domain.Long, 3650, 3651, 3654, "99/3652"),
			bid:      3653,
			wantNone: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBreakEvenConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			venue := newMockVenue("main")
			venue.bid, venue.ask = tt.bid, tt.ask
			venue.positions = []domain.Position{tt.pos}
			engine, _ := newTestEngine(t, cfg, map[string]*mockVenue{"main": venue}, "main")

			engine.Cycle(context.Background())
			if tt.wantNone {
				assert.Empty(t, venue.modified)
				return
			}
			require.Len(t, venue.modified, 1)
			assert.Equal(t, tt.wantStop, venue.modified[0].newStop)
		})
	}
}

func TestBreakEven_PropagatesToReplicas(t *testing.T) {
	master := newMockVenue("master")
	master.bid = 3652.5
	master.positions = []domain.Position{position("m1", domain.Long, 3650, 3642, 3654, "99/3652")}

	replica := newMockVenue("replica")
	replica.bid = 3600 // replica quotes are never consulted
	replica.positions = []domain.Position{
		position("r1", domain.Long, 3650.3, 3641.9, 3654, "99/3652"),
		position("r2", domain.Long, 3650.3, 3641.9, 3656, "99/3652"),
		position("r3", domain.Long, 3650, 3649.99, 3652, "99/3652"),
		position("r4", domain.Long, 3650, 3642, 3652, "100/3652"),
	}
	replica.gone = map[string]bool{"r2": true}

	failing := newMockVenue("failing")
	failing.positions = []domain.Position{position("f1", domain.Long, 3650, 3642, 3654, "99/3652")}
	failing.modifyErr = errors.New("trade disabled")

	engine, logger := newTestEngine(t, DefaultBreakEvenConfig(), map[string]*mockVenue{
		"master": master, "replica": replica, "failing": failing,
	}, "master")

	assert.Equal(t, 2, engine.Cycle(context.Background()))
	require.Len(t, master.modified, 1)
	require.Len(t, replica.modified, 1)
	assert.Equal(t, modifyCall{ticket: "r1", newStop: 3650, target: 3654}, replica.modified[0])
	assert.Empty(t, failing.modified)

	require.Len(t, logger.errors, 1)
	assert.ErrorIs(t, logger.errors[0], ports.ErrPropagation)
}

func TestBreakEven_RetriesOutstandingReplicaStops(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(replica *mockVenue)
		settle  func(replica *mockVenue)
	}{
		{
			name:    "replica entry fills after the master moved",
			prepare: func(replica *mockVenue) { replica.positions[0].Pending = true },
			settle:  func(replica *mockVenue) { replica.positions[0].Pending = false },
		},
		{
			name:    "replica modification failed once",
			prepare: func(replica *mockVenue) { replica.modifyErr = errors.New("market closed") },
			settle:  func(replica *mockVenue) { replica.modifyErr = nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			master := newMockVenue("master")
			master.bid = 3652.5
			master.positions = []domain.Position{position("m1", domain.Long, 3650, 3642, 3654, "99/3652")}
			replica := newMockVenue("replica")
			replica.positions = []domain.Position{position("r1", domain.Long, 3650.3, 3641.9, 3654, "99/3652")}
			tt.prepare(replica)

			engine, _ := newTestEngine(t, DefaultBreakEvenConfig(), map[string]*mockVenue{"master": master, "replica": replica}, "master")

			assert.Equal(t, 1, engine.Cycle(context.Background()))
			assert.Empty(t, replica.modified)
			assert.Equal(t, map[int64]float64{99: 3650}, engine.outstanding["replica"])

			tt.settle(replica)
			assert.Equal(t, 1, engine.Cycle(context.Background()))
			require.Len(t, master.modified, 1)
			require.Len(t, replica.modified, 1)
			assert.Equal(t, modifyCall{ticket: "r1", newStop: 3650, target: 3654}, replica.modified[0])
			assert.Empty(t, engine.outstanding["replica"])

			assert.Equal(t, 0, engine.Cycle(context.Background()))
			assert.Len(t, replica.modified, 1)
		})
	}
}

func TestBreakEven_DropsOutstandingStopWhenReplicaLegGone(t *testing.T) {
	master := newMockVenue("master")
	master.bid = 3652.5
	master.positions = []domain.Position{position("m1", domain.Long, 3650, 3642, 3654, "99/3652")}
	replica := newMockVenue("replica")
	pending := position("r1", domain.Long, 3650.3, 3641.9, 3654, "99/3652")
	pending.Pending = true
	replica.positions = []domain.Position{pending}

	engine, _ := newTestEngine(t, DefaultBreakEvenConfig(), map[string]*mockVenue{"master": master, "replica": replica}, "master")
	assert.Equal(t, 1, engine.Cycle(context.Background()))
	assert.Len(t, engine.outstanding["replica"], 1)

	replica.positions = nil
	assert.Equal(t, 0, engine.Cycle(context.Background()))
	assert.Empty(t, engine.outstanding["replica"])
	assert.Empty(t, replica.modified)
}

func TestBreakEven_NoPropagationWithoutMasterMove(t *testing.T) {
	master := newMockVenue("master")
	master.bid = 3651
	master.positions = []domain.Position{position("m1", domain.Long, 3650, 3642, 3654, "99/3652")}
	replica := newMockVenue("replica")
	replica.positions = []domain.Position{position("r1", domain.Long, 3650, 3642, 3654, "99/3652")}

	engine, _ := newTestEngine(t, DefaultBreakEvenConfig(), map[string]*mockVenue{"master": master, "replica": replica}, "master")
	assert.Equal(t, 0, engine.Cycle(context.Background()))
	assert.Empty(t, replica.modified)
}

func TestNewBreakEvenEngine_Validation(t *testing.T) {
	runner := NewDirectRunner(domain.Account{Name: "main"}, newMockVenue("main"))

	_, err := NewBreakEvenEngine(DefaultBreakEvenConfig(), nil, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	cfg := DefaultBreakEvenConfig()
	cfg.Policy = "trailing"
	_, err = NewBreakEvenEngine(cfg, []AccountRunner{runner}, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	cfg = DefaultBreakEvenConfig()
	cfg.Interval = 0
	_, err = NewBreakEvenEngine(cfg, []AccountRunner{runner}, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestBreakEven_RunStopsOnCancel(t *testing.T) {
	venue := newMockVenue("main")
	venue.bid = 3652.5
	venue.positions = []domain.Position{position("m1", domain.Long, 3650, 3642, 3654, "99/3652")}
	cfg := DefaultBreakEvenConfig()
	cfg.Interval = 5 * time.Millisecond
	engine, _ := newTestEngine(t, cfg, map[string]*mockVenue{"main": venue}, "main")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, engine.Run(ctx))

	venue.mu.Lock()
	defer venue.mu.Unlock()
	assert.Len(t, venue.modified, 1)
}
