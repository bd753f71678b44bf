package workqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testTask struct {
	BaseTask
	executeFunc func(ctx context.Context) error
}

func newTestTask(name string, fn func(ctx context.Context) error) *testTask {
	return &testTask{BaseTask: NewBaseTask(name), executeFunc: fn}
}

func (t *testTask) Execute(ctx context.Context) error {
	if t.executeFunc != nil {
		return t.executeFunc(ctx)
	}
	return nil
}

func TestQueue_RunsAllTasksAndKeepsOrder(t *testing.T) {
	q := New(zap.NewNop(), WithWorkers(2))
	failure := errors.New("task failed")

	snapshots := q.Run(context.Background(), []Task{
		newTestTask("ok-1", nil),
		newTestTask("bad", func(ctx context.Context) error { return failure }),
		newTestTask("ok-2", nil),
	})

	require.Len(t, snapshots, 3)
	assert.Equal(t, "ok-1", snapshots[0].Name)
	assert.Equal(t, TaskStatusCompleted, snapshots[0].Status)
	assert.Equal(t, TaskStatusFailed, snapshots[1].Status)
	assert.Equal(t, "task failed", snapshots[1].Error)
	assert.Equal(t, TaskStatusCompleted, snapshots[2].Status)
	for _, s := range snapshots {
		assert.NotNil(t, s.StartedAt)
	}
}

func TestQueue_BoundsConcurrency(t *testing.T) {
	const workers = 3
	var running, peak atomic.Int32

	var tasks []Task
	for i := 0; i < 12; i++ {
		tasks = append(tasks, newTestTask("t", func(ctx context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}

	New(zap.NewNop(), WithWorkers(workers)).Run(context.Background(), tasks)
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Positive(t, peak.Load())
}

func TestQueue_TaskTimeout(t *testing.T) {
	q := New(zap.NewNop(), WithTaskTimeout(10*time.Millisecond))

	snapshots := q.Run(context.Background(), []Task{
		newTestTask("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	})
	assert.Equal(t, TaskStatusFailed, snapshots[0].Status)
	assert.Contains(t, snapshots[0].Error, "deadline exceeded")
}

func TestQueue_CancelledContextSkipsPendingTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var executed atomic.Int32
	snapshots := New(zap.NewNop()).Run(ctx, []Task{
		newTestTask("a", func(ctx context.Context) error { executed.Add(1); return nil }),
		newTestTask("b", func(ctx context.Context) error { executed.Add(1); return nil }),
	})

	assert.Equal(t, int32(0), executed.Load())
	for _, s := range snapshots {
		assert.Equal(t, TaskStatusCancelled, s.Status)
		assert.Nil(t, s.StartedAt)
	}
}
