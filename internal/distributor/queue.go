// Package distributor implements the work queue and task distribution core.
package distributor

import (
	"container/list"

	"github.com/AnimatorJoe/distributor/internal/core"
)

// dispatchQueue is the ordered sequence of ready tasks. FIFO, except that
// requeued tasks are pushed to the front so retried work is served before
// fresh arrivals. Not safe for concurrent use; the owning service guards it
// with the queue lock.
type dispatchQueue struct {
	l *list.List
}

func newDispatchQueue() *dispatchQueue {
	return &dispatchQueue{l: list.New()}
}

// PushBack appends a freshly submitted task.
func (q *dispatchQueue) PushBack(t *core.Task) {
	q.l.PushBack(t)
}

// PushFront prepends a requeued task (retry-first discipline).
func (q *dispatchQueue) PushFront(t *core.Task) {
	q.l.PushFront(t)
}

// PopFront removes and returns the head task, or nil when empty.
func (q *dispatchQueue) PopFront() *core.Task {
	front := q.l.Front()
	if front == nil {
		return nil
	}
	q.l.Remove(front)
	return front.Value.(*core.Task)
}

// Len returns the queue depth.
func (q *dispatchQueue) Len() int {
	return q.l.Len()
}

// Clear drops all queued tasks.
func (q *dispatchQueue) Clear() {
	q.l.Init()
}
