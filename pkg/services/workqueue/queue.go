// Package workqueue runs independent tasks on a bounded number of workers.
package workqueue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Queue runs a batch of tasks with at most Workers in flight. A failing task
// does not stop the others.
type Queue struct {
	workers int
	timeout time.Duration
	logger  *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithWorkers bounds concurrency. n <= 0 keeps the default of 1.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithTaskTimeout bounds each task's Execute. d <= 0 disables it.
func WithTaskTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.timeout = d
	}
}

func New(logger *zap.Logger, opts ...QueueOption) *Queue {
	q := &Queue{workers: 1, logger: logger.Named("workqueue")}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Run executes tasks and blocks until all have finished. Tasks not yet
// started when ctx is done are marked cancelled. Snapshots are returned in
// task order.
func (q *Queue) Run(ctx context.Context, tasks []Task) []TaskSnapshot {
	states := make([]*taskState, len(tasks))
	for i, task := range tasks {
		states[i] = newTaskState(task)
	}

	g := new(errgroup.Group)
	g.SetLimit(q.workers)
	for _, ts := range states {
		ts := ts
		g.Go(func() error {
			q.runTask(ctx, ts)
			return nil
		})
	}
	_ = g.Wait()

	snapshots := make([]TaskSnapshot, len(states))
	for i, ts := range states {
		snapshots[i] = ts.snapshot()
	}
	return snapshots
}

func (q *Queue) runTask(ctx context.Context, ts *taskState) {
	if err := ctx.Err(); err != nil {
		ts.finish(TaskStatusCancelled, err)
		return
	}

	taskCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	ts.start()
	q.logger.Debug("starting task",
		zap.String("task_id", ts.task.ID()),
		zap.String("task_name", ts.task.Name()))

	err := ts.task.Execute(taskCtx)
	switch {
	case err == nil:
		ts.finish(TaskStatusCompleted, nil)
	case errors.Is(err, context.Canceled):
		ts.finish(TaskStatusCancelled, err)
	default:
		q.logger.Warn("task failed",
			zap.String("task_id", ts.task.ID()),
			zap.String("task_name", ts.task.Name()),
			zap.Error(err))
		ts.finish(TaskStatusFailed, err)
	}
}
