package ports

import (
	"context"
	"time"

	"signalCopyBot/internal/domain"
)

// PlacementJournal records processed messages and placed orders.
// It is an audit and dedup log only; correlation is always recovered from venue tags.
type PlacementJournal interface {
	// MarkProcessed records a message; it returns ErrDuplicateEntry if the message was already seen.
	MarkProcessed(ctx context.Context, channelID string, messageID int64, outcome string) error
	// RecordPlacement stores one placed order.
	RecordPlacement(ctx context.Context, order *domain.PlacedOrder) error
	// FindBySignal returns the placements of a signal across all accounts.
	FindBySignal(ctx context.Context, signalID int64) ([]*domain.PlacedOrder, error)
	// Prune deletes entries older than the cutoff and returns the number removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}
