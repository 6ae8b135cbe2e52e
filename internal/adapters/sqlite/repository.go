package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// Repository implements ports.PlacementJournal using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/signal_copier.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// one writer; the message path and workers share it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Placement journal ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS processed_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		message_id INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		processed_at TIMESTAMP NOT NULL,
		UNIQUE (channel_id, message_id)
	);

	CREATE TABLE IF NOT EXISTS placements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket TEXT NOT NULL,
		account TEXT NOT NULL,
		signal_id INTEGER NOT NULL,
		tp_index INTEGER NOT NULL,
		tag TEXT NOT NULL,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		price REAL NOT NULL,
		volume REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		placed_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_placements_signal ON placements (signal_id, account, tp_index);
	CREATE INDEX IF NOT EXISTS idx_processed_messages_time ON processed_messages (processed_at);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// MarkProcessed records a message. A message already recorded yields ErrDuplicateEntry.
func (r *Repository) MarkProcessed(ctx context.Context, channelID string, messageID int64, outcome string) error {
	const query = `
	INSERT INTO processed_messages (channel_id, message_id, outcome, processed_at)
	VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, channelID, messageID, outcome, time.Now().UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("message %s/%d already processed: %w", channelID, messageID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to mark message %s/%d: %w: %w", channelID, messageID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Message marked processed", map[string]interface{}{
		"channelId": channelID,
		"messageId": messageID,
		"outcome":   outcome,
	})
	return nil
}

// RecordPlacement stores one placed order.
func (r *Repository) RecordPlacement(ctx context.Context, order *domain.PlacedOrder) error {
	const query = `
	INSERT INTO placements (ticket, account, signal_id, tp_index, tag, symbol, kind, side,
	                        price, volume, stop_loss, take_profit, placed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	placedAt := order.PlacedAt.UTC()
	if order.PlacedAt.IsZero() {
		placedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, query,
		order.Ticket, order.Account, order.SignalID, order.TakeProfitIndex, order.Tag, order.Symbol,
		string(order.Kind), string(order.Side), order.Price, order.Volume, order.StopLoss, order.TakeProfit, placedAt)
	if err != nil {
		return fmt.Errorf("failed to insert placement %s for signal %d: %w: %w", order.Ticket, order.SignalID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Placement recorded", map[string]interface{}{
		"ticket":   order.Ticket,
		"account":  order.Account,
		"signalId": order.SignalID,
	})
	return nil
}

// FindBySignal returns the placements of a signal ordered by account and target index.
func (r *Repository) FindBySignal(ctx context.Context, signalID int64) ([]*domain.PlacedOrder, error) {
	const query = `
	SELECT ticket, account, signal_id, tp_index, tag, symbol, kind, side,
	       price, volume, stop_loss, take_profit, placed_at
	FROM placements
	WHERE signal_id = ?
	ORDER BY account, tp_index`

	rows, err := r.db.QueryContext(ctx, query, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query placements for signal %d: %w: %w", signalID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	orders := make([]*domain.PlacedOrder, 0)
	for rows.Next() {
		o, err := scanPlacement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan placement during FindBySignal: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating placement rows: %w", err)
	}
	return orders, nil
}

// Prune deletes messages and placements older than before and returns the rows removed.
func (r *Repository) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin prune: %w: %w", ports.ErrQueryFailed, err)
	}
	defer tx.Rollback()

	var total int64
	for _, query := range []string{
		`DELETE FROM processed_messages WHERE processed_at < ?`,
		`DELETE FROM placements WHERE placed_at < ?`,
	} {
		result, err := tx.ExecContext(ctx, query, before.UTC())
		if err != nil {
			return 0, fmt.Errorf("failed to prune journal: %w: %w", ports.ErrQueryFailed, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected for prune: %w", err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w: %w", ports.ErrQueryFailed, err)
	}
	r.logger.Info(ctx, "Journal pruned", map[string]interface{}{"removed": total, "before": before.UTC()})
	return total, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPlacement(s scanner) (*domain.PlacedOrder, error) {
	o := &domain.PlacedOrder{}
	var kind, side string
	err := s.Scan(
		&o.Ticket, &o.Account, &o.SignalID, &o.TakeProfitIndex, &o.Tag, &o.Symbol, &kind, &side,
		&o.Price, &o.Volume, &o.StopLoss, &o.TakeProfit, &o.PlacedAt)
	if err != nil {
		return nil, err
	}
	o.Kind = domain.OrderKind(kind)
	o.Side = domain.OrderSide(side)
	return o, nil
}
