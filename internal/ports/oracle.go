package ports

import "context"

// Oracle extracts a signal from free text when no deterministic strategy applies.
// It returns the raw structured reply (JSON, possibly fenced); post-processing belongs to the caller.
// Implementations are non-deterministic and may be unavailable.
type Oracle interface {
	Extract(ctx context.Context, text, author string) (string, error)
}
