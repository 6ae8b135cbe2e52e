package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// Pipeline outcomes. ParseDecline and MarketState are expected, not failures.
	ErrParseDecline      = errors.New("no signal recognized")
	ErrValidation        = errors.New("signal validation failed")
	ErrMarketState       = errors.New("signal no longer actionable")
	ErrSizing            = errors.New("cannot compute a safe volume")
	ErrPlacement         = errors.New("order placement failed")
	ErrPropagation       = errors.New("break-even propagation failed")
	ErrTransport         = errors.New("transport connectivity lost")
	ErrOracleUnavailable = errors.New("fallback extraction unavailable")

	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Venue Errors
	ErrConnectionFailed     = errors.New("failed to connect to the venue")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("venue authentication failed (check credentials)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the venue")
	ErrPositionNotFound     = errors.New("position not found on the venue")
	ErrMarketClosed         = errors.New("market closed or quote unavailable")

	// Database Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrQueryFailed    = errors.New("database query failed")
)
