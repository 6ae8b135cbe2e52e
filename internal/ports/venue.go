package ports

import (
	"context"
	"time"

	"signalCopyBot/internal/domain"
)

// Venue defines the execution venue a single account trades on.
// Each account owns exactly one Venue session; sessions are never shared.
type Venue interface {
	// Name identifies the venue session in logs (usually the account name).
	Name() string

	// GetQuote returns the current price on the given side: ask for Buy, bid for Sell.
	GetQuote(ctx context.Context, symbol string, side domain.OrderSide) (float64, error)

	// GetAccountBalance returns the account balance in account currency.
	GetAccountBalance(ctx context.Context) (float64, error)

	// GetInstrumentInfo returns tick economics and volume limits for a venue symbol.
	GetInstrumentInfo(ctx context.Context, symbol string) (*domain.InstrumentInfo, error)

	// SubmitOrder places one order. Errors wrap ErrPlacement or a more specific venue error.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error)

	// ModifyStop moves the stop of an open position, keeping its existing target.
	ModifyStop(ctx context.Context, ticket string, newStop, target float64) error

	// ClosePosition closes an open position at market.
	ClosePosition(ctx context.Context, ticket string) error

	// ListOpenPositions returns open positions carrying the given bot marker.
	ListOpenPositions(ctx context.Context, marker string) ([]domain.Position, error)

	// GetPosition returns a single open position; ErrPositionNotFound if it is gone.
	GetPosition(ctx context.Context, ticket string) (*domain.Position, error)

	// GetServerTime returns the venue clock in UTC.
	GetServerTime(ctx context.Context) (time.Time, error)
}
