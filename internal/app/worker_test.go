package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

func TestAccountWorker_SerializesJobs(t *testing.T) {
	w := NewAccountWorker(domain.Account{Name: "a"}, goldVenue("a"), 0, &mockLogger{})
	w.Start()
	defer w.Stop(time.Second)

	var running, maxRunning int32
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = w.Run(context.Background(), func(ctx context.Context, venue ports.Venue) error {
				n := atomic.AddInt32(&running, 1)
				for {
					m := atomic.LoadInt32(&maxRunning)
					if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
}

func TestAccountWorker_RunErrors(t *testing.T) {
	w := NewAccountWorker(domain.Account{Name: "a"}, goldVenue("a"), 1, &mockLogger{})
	w.Start()

	err := w.Run(context.Background(), func(ctx context.Context, venue ports.Venue) error {
		panic("boom")
	})
	assert.ErrorIs(t, err, ports.ErrUnknown)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = w.Run(ctx, func(ctx context.Context, venue ports.Venue) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, ports.ErrTimeout)

	require.True(t, w.Stop(time.Second))
	err = w.Run(context.Background(), func(ctx context.Context, venue ports.Venue) error { return nil })
	assert.ErrorIs(t, err, ports.ErrTransport)
}

func TestAccountWorker_StopDrainsQueue(t *testing.T) {
	w := NewAccountWorker(domain.Account{Name: "a"}, goldVenue("a"), 4, &mockLogger{})

	var ran int32
	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			results <- w.Run(context.Background(), func(ctx context.Context, venue ports.Venue) error {
				atomic.AddInt32(&ran, 1)
				return nil
			})
		}()
	}
	require.Eventually(t, func() bool { return len(w.jobs) == 3 }, time.Second, time.Millisecond)

	w.Start()
	assert.True(t, w.Stop(time.Second))
	for i := 0; i < 3; i++ {
		assert.NoError(t, <-results)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
}

func TestAccountWorker_StopAbandonsAfterGrace(t *testing.T) {
	w := NewAccountWorker(domain.Account{Name: "a"}, goldVenue("a"), 1, &mockLogger{})
	w.Start()

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	go func() {
		_ = w.Run(context.Background(), func(ctx context.Context, venue ports.Venue) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	assert.False(t, w.Stop(20*time.Millisecond))
}
