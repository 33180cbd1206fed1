package thumbclient

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of thumbnail loads allowed at once
const DefaultConcurrency = 4

// Task is one unit of queued work
type Task func(ctx context.Context) error

// Queue runs tasks with bounded concurrency. Waiters are admitted in
// arrival order; a finished task always frees its slot, even when it panics.
type Queue struct {
	sem     *semaphore.Weighted
	limit   int
	running atomic.Int64
	pending atomic.Int64
}

// NewQueue creates a queue admitting at most limit concurrent tasks
func NewQueue(limit int) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
}

// Submit waits for a slot and runs task. Waiting ends early with ctx's error.
func (q *Queue) Submit(ctx context.Context, task Task) error {
	q.pending.Add(1)
	err := q.sem.Acquire(ctx, 1)
	q.pending.Add(-1)
	if err != nil {
		return err
	}
	defer q.sem.Release(1)

	q.running.Add(1)
	defer q.running.Add(-1)

	return runTask(ctx, task)
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queued task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Do runs fn through q and returns its value
func Do[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := q.Submit(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Running is the number of tasks currently executing
func (q *Queue) Running() int {
	return int(q.running.Load())
}

// Pending is the number of tasks waiting for a slot
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Limit is the configured concurrency bound
func (q *Queue) Limit() int {
	return q.limit
}
