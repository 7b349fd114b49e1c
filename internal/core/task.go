package core

import (
	"time"

	"github.com/google/uuid"
)

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	StateQueued     TaskState = "queued"
	StateInProgress TaskState = "in_progress"
	StateCompleted  TaskState = "completed"
	StateFailed     TaskState = "failed"
	// StateTimeout is part of the wire enum only. The monitor moves a
	// timed-out task straight to queued or failed, so no stored task is ever
	// in this state.
	StateTimeout TaskState = "timeout"
)

// DefaultMaxRetries bounds how many times a timed-out task is requeued.
const DefaultMaxRetries = 3

// Task is the queue-side record for one unit of work. The payload itself is
// stored separately and referenced by PayloadKey, keeping the queue entries
// lightweight and letting payload storage be swapped or evicted independently.
type Task struct {
	ID        string    `json:"task_id"`
	CreatedAt time.Time `json:"created_at"`
	State     TaskState `json:"status"`

	// Assignment; zero values when the task is not in progress.
	AssignedTo    string    `json:"assigned_to,omitempty"`
	AssignedAt    time.Time `json:"assigned_at,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// PayloadKey references the LogRecord in the payload store. Equal to ID
	// by construction; kept separate so the reference can outlive eviction.
	PayloadKey string `json:"payload_key"`
}

// NewTask creates a queued task with a fresh id.
func NewTask() *Task {
	id := uuid.NewString()
	return &Task{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		State:      StateQueued,
		MaxRetries: DefaultMaxRetries,
		PayloadKey: id,
	}
}

// Assign marks the task in-progress for the given analyzer and starts the
// heartbeat clock.
func (t *Task) Assign(analyzerID string) {
	now := time.Now().UTC()
	t.State = StateInProgress
	t.AssignedTo = analyzerID
	t.AssignedAt = now
	t.LastHeartbeat = now
}

// Heartbeat advances the liveness clock.
func (t *Task) Heartbeat() {
	t.LastHeartbeat = time.Now().UTC()
}

// MarkCompleted transitions the task to its successful terminal state.
func (t *Task) MarkCompleted() {
	t.State = StateCompleted
}

// MarkFailed transitions the task to its failed terminal state.
func (t *Task) MarkFailed() {
	t.State = StateFailed
}

// TimedOut reports whether the task's heartbeat age exceeds timeout. Only
// in-progress tasks with a heartbeat can time out.
func (t *Task) TimedOut(timeout time.Duration) bool {
	if t.State != StateInProgress || t.LastHeartbeat.IsZero() {
		return false
	}
	return time.Since(t.LastHeartbeat) > timeout
}

// Requeue resets assignment state for another delivery attempt. It returns
// false without modifying the task when the retry budget is exhausted; the
// caller then terminal-fails the task instead.
func (t *Task) Requeue() bool {
	if t.RetryCount >= t.MaxRetries {
		return false
	}
	t.State = StateQueued
	t.AssignedTo = ""
	t.AssignedAt = time.Time{}
	t.LastHeartbeat = time.Time{}
	t.RetryCount++
	return true
}
