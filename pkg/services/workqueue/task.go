package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is where a task is in its lifecycle.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is one unit of work run by a Queue.
type Task interface {
	ID() string
	// Name labels the task in logs and snapshots.
	Name() string
	// Execute does the work. ctx carries the per-task timeout.
	Execute(ctx context.Context) error
}

// taskState tracks one task while the batch runs.
type taskState struct {
	task Task

	mu       sync.Mutex
	status   TaskStatus
	started  time.Time
	finished time.Time
	err      error
}

func newTaskState(task Task) *taskState {
	return &taskState{task: task, status: TaskStatusPending}
}

func (ts *taskState) start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status = TaskStatusRunning
	ts.started = time.Now()
}

func (ts *taskState) finish(status TaskStatus, err error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status = status
	ts.finished = time.Now()
	ts.err = err
}

func (ts *taskState) snapshot() TaskSnapshot {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	s := TaskSnapshot{ID: ts.task.ID(), Name: ts.task.Name(), Status: ts.status}
	if !ts.started.IsZero() {
		started := ts.started
		s.StartedAt = &started
		if !ts.finished.IsZero() {
			s.Duration = ts.finished.Sub(ts.started)
		}
	}
	if ts.err != nil {
		s.Error = ts.err.Error()
	}
	return s
}

// TaskSnapshot is the final view of a task after Run returns.
type TaskSnapshot struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    TaskStatus    `json:"status"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// BaseTask supplies ID and Name. Embed it in concrete tasks.
type BaseTask struct {
	id   string
	name string
}

func NewBaseTask(name string) BaseTask {
	return BaseTask{id: uuid.NewString(), name: name}
}

func (t BaseTask) ID() string   { return t.id }
func (t BaseTask) Name() string { return t.name }
