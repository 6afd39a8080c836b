// ABOUTME: Tests for the best-effort background executor
// ABOUTME: Verifies detachment from caller cancellation, panic recovery, bounds, and clean shutdown
package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestBackground_RunsDetachedFromCaller(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := NewBackground(2, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	var sawErr atomic.Value

	b.Submit(ctx, "detached", func(ctx context.Context) error {
		close(started)
		<-release
		sawErr.Store(ctx.Err() == nil)
		return nil
	})
	<-started
	cancel()
	close(release)

	require.NoError(t, b.Shutdown(context.Background()))
	assert.Equal(t, true, sawErr.Load())
}

func TestBackground_SwallowsErrorsAndPanics(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := NewBackground(1, time.Second, nil)
	var ran atomic.Int32

	b.Submit(context.Background(), "fails", func(context.Context) error {
		ran.Add(1)
		return errors.New("boom")
	})
	b.Submit(context.Background(), "panics", func(context.Context) error {
		ran.Add(1)
		panic("oh no")
	})
	b.Submit(context.Background(), "ok", func(context.Context) error {
		ran.Add(1)
		return nil
	})

	b.Wait()
	assert.Equal(t, int32(3), ran.Load())
	require.NoError(t, b.Shutdown(context.Background()))
}

func TestBackground_BoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := NewBackground(2, time.Second, nil)
	var running, peak atomic.Int32

	for i := 0; i < 8; i++ {
		b.Submit(context.Background(), "task", func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}

	require.NoError(t, b.Shutdown(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestBackground_TimeoutCancelsTask(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := NewBackground(1, 20*time.Millisecond, nil)
	var cause atomic.Value

	b.Submit(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		cause.Store(ctx.Err())
		return ctx.Err()
	})

	require.NoError(t, b.Shutdown(context.Background()))
	assert.ErrorIs(t, cause.Load().(error), context.DeadlineExceeded)
}

func TestBackground_DropsAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := NewBackground(1, time.Second, nil)
	require.NoError(t, b.Shutdown(context.Background()))

	var ran atomic.Bool
	b.Submit(context.Background(), "late", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	b.Wait()
	assert.False(t, ran.Load())
}

func TestBackground_ShutdownHonorsDeadline(t *testing.T) {
	b := NewBackground(1, time.Second, nil)
	release := make(chan struct{})
	b.Submit(context.Background(), "stuck", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := b.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	b.Wait()
}

func TestBackground_SubmitRacingShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := NewBackground(4, time.Second, nil)

	var ran atomic.Int32
	var submitters sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		submitters.Add(1)
		go func() {
			defer submitters.Done()
			<-start
			b.Submit(context.Background(), "racer", func(context.Context) error {
				ran.Add(1)
				return nil
			})
		}()
	}

	close(start)
	require.NoError(t, b.Shutdown(context.Background()))
	afterShutdown := ran.Load()

	submitters.Wait()
	b.Wait()
	assert.Equal(t, afterShutdown, ran.Load(), "no accepted task may outlive Shutdown")
}
