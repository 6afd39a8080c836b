// ABOUTME: Best-effort background executor for fire-and-forget recomputation
// ABOUTME: Tasks run detached from the caller, bounded by a semaphore; failures are logged and dropped
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/harper/sitjournal/internal/logging"
)

// Background runs submitted tasks without ever retrying them
type Background struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	log     *logging.Logger
	wg      sync.WaitGroup

	// mu orders Submit's wg.Add against Shutdown closing the executor
	mu     sync.Mutex
	closed bool
}

// NewBackground creates an executor running at most concurrency tasks at once
func NewBackground(concurrency int, timeout time.Duration, log *logging.Logger) *Background {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Background{
		sem:     semaphore.NewWeighted(int64(concurrency)),
		timeout: timeout,
		log:     log.Named("background"),
	}
}

// Submit schedules fn. It never blocks on fn and never reports its outcome
// to the caller; cancelling ctx does not cancel the task.
func (b *Background) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.log.Warn("dropping task after shutdown", "task", name)
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()

		taskCtx := context.WithoutCancel(ctx)
		if b.timeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(taskCtx, b.timeout)
			defer cancel()
		}

		if err := b.sem.Acquire(taskCtx, 1); err != nil {
			b.log.Error("task never started", "task", name, "error", err)
			return
		}
		defer b.sem.Release(1)

		start := time.Now()
		if err := b.run(taskCtx, fn); err != nil {
			b.log.Error("background task failed", "task", name, "error", err, "elapsed", time.Since(start))
			return
		}
		b.log.Debug("background task done", "task", name, "elapsed", time.Since(start))
	}()
}

func (b *Background) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Shutdown stops accepting tasks and waits for in-flight ones
func (b *Background) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background shutdown: %w", ctx.Err())
	}
}

// Wait blocks until every submitted task has finished, leaving the executor open
func (b *Background) Wait() {
	b.wg.Wait()
}
