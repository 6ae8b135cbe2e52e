package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

const defaultQueueSize = 16

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context, venue ports.Venue) error
	done chan error
}

// AccountWorker owns one account's venue session. Jobs run one at a time on a single
// goroutine, so venue calls for an account never interleave.
type AccountWorker struct {
	account domain.Account
	venue   ports.Venue
	logger  ports.Logger

	jobs      chan job
	quit      chan struct{}
	finished  chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewAccountWorker creates a worker; call Start before submitting jobs.
func NewAccountWorker(account domain.Account, venue ports.Venue, queueSize int, logger ports.Logger) *AccountWorker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &AccountWorker{
		account:  account,
		venue:    venue,
		logger:   logger,
		jobs:     make(chan job, queueSize),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Account returns the account served by this worker.
func (w *AccountWorker) Account() domain.Account { return w.account }

// Start launches the worker goroutine; later calls are no-ops.
func (w *AccountWorker) Start() {
	w.startOnce.Do(func() { go w.loop() })
}

// Run queues fn and waits for its result. It gives up with ErrTimeout when ctx ends first;
// the job is then skipped if it has not started yet.
func (w *AccountWorker) Run(ctx context.Context, fn func(ctx context.Context, venue ports.Venue) error) error {
	select {
	case <-w.quit:
		return w.stoppedError()
	default:
	}

	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case w.jobs <- j:
	case <-w.quit:
		return w.stoppedError()
	case <-ctx.Done():
		return w.timeoutError(ctx)
	}

	select {
	case err := <-j.done:
		return err
	case <-w.finished:
		// queued after the final drain
		select {
		case err := <-j.done:
			return err
		default:
			return w.stoppedError()
		}
	case <-ctx.Done():
		return w.timeoutError(ctx)
	}
}

// Stop asks the worker to finish queued jobs and waits up to grace for it to exit.
// It reports false when the worker was abandoned.
func (w *AccountWorker) Stop(grace time.Duration) bool {
	w.stopOnce.Do(func() { close(w.quit) })
	select {
	case <-w.finished:
		return true
	case <-time.After(grace):
		w.logger.Warn(context.Background(), "Account worker abandoned after shutdown grace", map[string]interface{}{
			"account": w.account.Name,
			"grace":   grace.String(),
		})
		return false
	}
}

func (w *AccountWorker) loop() {
	defer close(w.finished)
	for {
		select {
		case j := <-w.jobs:
			w.execute(j)
		case <-w.quit:
			for {
				select {
				case j := <-w.jobs:
					w.execute(j)
				default:
					return
				}
			}
		}
	}
}

func (w *AccountWorker) execute(j job) {
	if err := j.ctx.Err(); err != nil {
		j.done <- w.timeoutError(j.ctx)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("account %s: %w: job panicked: %v", w.account.Name, ports.ErrUnknown, r)
			w.logger.Error(j.ctx, err, "Account job panicked")
			j.done <- err
		}
	}()
	j.done <- j.fn(j.ctx, w.venue)
}

func (w *AccountWorker) timeoutError(ctx context.Context) error {
	return fmt.Errorf("account %s: %w: %w", w.account.Name, ports.ErrTimeout, ctx.Err())
}

func (w *AccountWorker) stoppedError() error {
	return fmt.Errorf("account %s: %w: worker stopped", w.account.Name, ports.ErrTransport)
}
