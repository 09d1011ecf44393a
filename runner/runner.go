// Package runner runs conversations off the caller's goroutine with a bound
// on how many run at once.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
)

// Task is one unit of background work, typically a conversation run.
type Task func(ctx context.Context) error

// Result reports how a task ended.
type Result struct {
	TaskID string
	Error  error
}

// Option configures a Runner.
type Option func(*Runner)

// WithOnDone registers a callback invoked after every task.
func WithOnDone(fn func(Result)) Option {
	return func(r *Runner) {
		r.onDone = fn
	}
}

// WithLogger overrides the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Inline makes Go run tasks on the calling goroutine.
func Inline() Option {
	return func(r *Runner) {
		r.inline = true
	}
}

// Runner executes tasks with bounded concurrency.
type Runner struct {
	semaphore chan struct{}
	wg        sync.WaitGroup
	active    atomic.Int64
	inline    bool
	onDone    func(Result)
	logger    *slog.Logger
}

// New creates a runner allowing maxConcurrency tasks at once.
func New(maxConcurrency int, opts ...Option) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	r := &Runner{
		semaphore: make(chan struct{}, maxConcurrency),
		logger:    logging.WithComponent("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Go schedules task and returns without waiting for it, unless the runner is
// inline. The task waits for a free slot; a cancelled ctx abandons it without
// calling it. Cleanups run once the task has returned or been abandoned, so
// resources the caller handed to the task belong there.
func (r *Runner) Go(ctx context.Context, id string, task Task, cleanups ...func()) {
	r.wg.Add(1)
	if r.inline {
		r.finish(id, r.Run(ctx, id, task), cleanups)
		return
	}
	go func() {
		r.finish(id, r.Run(ctx, id, task), cleanups)
	}()
}

// Run executes task on the calling goroutine once a slot is free. A panic in
// the task is returned as an error.
func (r *Runner) Run(ctx context.Context, id string, task Task) (err error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	r.active.Add(1)
	defer r.active.Add(-1)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in task %s: %v", id, p)
		}
	}()
	return task(ctx)
}

func (r *Runner) finish(id string, err error, cleanups []func()) {
	defer r.wg.Done()
	for _, fn := range cleanups {
		fn()
	}
	if err != nil {
		r.logger.Warn("task failed", "task", id, "error", err)
	}
	if r.onDone != nil {
		r.onDone(Result{TaskID: id, Error: err})
	}
}

// Active reports how many tasks are executing.
func (r *Runner) Active() int {
	return int(r.active.Load())
}

// Wait blocks until every scheduled task has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
