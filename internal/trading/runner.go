package trading

import (
	"context"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// AccountRunner executes work against one account's venue session.
// Implementations serialize access to the session; fn must not retain venue.
type AccountRunner interface {
	Account() domain.Account
	Run(ctx context.Context, fn func(ctx context.Context, venue ports.Venue) error) error
}

// DirectRunner calls fn inline on the caller's goroutine.
// It suits single-threaded tools and tests.
type DirectRunner struct {
	account domain.Account
	venue   ports.Venue
}

// NewDirectRunner creates a runner that owns venue.
func NewDirectRunner(account domain.Account, venue ports.Venue) *DirectRunner {
	return &DirectRunner{account: account, venue: venue}
}

// Account returns the account served by the runner.
func (r *DirectRunner) Account() domain.Account { return r.account }

// Run executes fn with the runner's venue.
func (r *DirectRunner) Run(ctx context.Context, fn func(ctx context.Context, venue ports.Venue) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, r.venue)
}

// splitMaster returns the master runner first followed by the replicas.
// With a single account that account acts as master.
func splitMaster(runners []AccountRunner) (AccountRunner, []AccountRunner) {
	if len(runners) == 0 {
		return nil, nil
	}
	masterIdx := 0
	for i, r := range runners {
		if r.Account().IsMaster {
			masterIdx = i
			break
		}
	}
	replicas := make([]AccountRunner, 0, len(runners)-1)
	for i, r := range runners {
		if i != masterIdx {
			replicas = append(replicas, r)
		}
	}
	return runners[masterIdx], replicas
}
