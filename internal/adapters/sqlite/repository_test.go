package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "signal-copier-test-*")
	require.NoError(t, err)

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

func placement(account string, signalID int64, index int, placedAt time.Time) *domain.PlacedOrder {
	return &domain.PlacedOrder{
		Ticket:          account + "-" + strconv.Itoa(index),
		Account:         account,
		SignalID:        signalID,
		TakeProfitIndex: index,
		Tag:             "501/3652",
		Symbol:          "XAUUSD+",
		Kind:            domain.KindLimit,
		Side:            domain.Buy,
		Price:           3650,
		Volume:          0.41,
		StopLoss:        3642,
		TakeProfit:      3650 + float64(2*index),
		PlacedAt:        placedAt,
	}
}

func TestRepository_MarkProcessed(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Repository) error
		channel string
		message int64
		wantErr error
	}{
		{
			name:    "first delivery",
			channel: "-1001",
			message: 501,
		},
		{
			name: "redelivery is a duplicate",
			setup: func(r *Repository) error {
				return r.MarkProcessed(context.Background(), "-1001", 501, "parsed")
			},
			channel: "-1001",
			message: 501,
			wantErr: ports.ErrDuplicateEntry,
		},
		{
			name: "same id on another channel",
			setup: func(r *Repository) error {
				return r.MarkProcessed(context.Background(), "-1001", 501, "parsed")
			},
			channel: "-2002",
			message: 501,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cleanup := setupTestDB(t)
			defer cleanup()

			if tt.setup != nil {
				require.NoError(t, tt.setup(repo))
			}

			err := repo.MarkProcessed(context.Background(), tt.channel, tt.message, "parsed")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRepository_RecordAndFindBySignal(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Date(2024, 12, 11, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RecordPlacement(ctx, placement("replica", 501, 1, now)))
	require.NoError(t, repo.RecordPlacement(ctx, placement("master", 501, 2, now)))
	require.NoError(t, repo.RecordPlacement(ctx, placement("master", 501, 1, now)))
	require.NoError(t, repo.RecordPlacement(ctx, placement("master", 777, 1, now)))

	found, err := repo.FindBySignal(ctx, 501)
	require.NoError(t, err)
	require.Len(t, found, 3)

	assert.Equal(t, "master", found[0].Account)
	assert.Equal(t, 1, found[0].TakeProfitIndex)
	assert.Equal(t, 2, found[1].TakeProfitIndex)
	assert.Equal(t, "replica", found[2].Account)

	first := found[0]
	assert.Equal(t, domain.KindLimit, first.Kind)
	assert.Equal(t, domain.Buy, first.Side)
	assert.Equal(t, "501/3652", first.Tag)
	assert.Equal(t, 0.41, first.Volume)
	assert.Equal(t, 3652.0, first.TakeProfit)
	assert.True(t, now.Equal(first.PlacedAt))

	none, err := repo.FindBySignal(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_Prune(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.RecordPlacement(ctx, placement("master", 1, 1, old)))
	require.NoError(t, repo.RecordPlacement(ctx, placement("master", 2, 1, time.Now())))
	require.NoError(t, repo.MarkProcessed(ctx, "-1001", 1, "parsed"))

	removed, err := repo.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	gone, err := repo.FindBySignal(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := repo.FindBySignal(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	removed, err = repo.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}
