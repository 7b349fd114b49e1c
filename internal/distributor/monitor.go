package distributor

import (
	"context"
	"log/slog"
	"time"

	"github.com/AnimatorJoe/distributor/internal/core"
	"github.com/AnimatorJoe/distributor/internal/metrics"
)

// monitor periodically requeues timed-out tasks and raises the advisory
// backpressure signal.
func (s *Service) monitor(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkTimeouts()
			s.checkBackpressure()
		case <-ctx.Done():
			return
		}
	}
}

// checkTimeouts scans in-progress tasks and requeues those whose heartbeat
// age exceeds the task timeout, terminal-failing any with an exhausted retry
// budget.
//
// The in-progress entries are snapshotted under the in-progress lock and the
// lock released before the queue lock is taken for the prepend; acquiring
// them nested would invert the queue → in-progress order used everywhere
// else.
func (s *Service) checkTimeouts() {
	s.progMu.Lock()
	var timedOut []*core.Task
	for _, task := range s.inProgress {
		if task.TimedOut(s.opts.TaskTimeout) {
			timedOut = append(timedOut, task)
		}
	}
	s.progMu.Unlock()

	for _, task := range timedOut {
		// Re-verify under the lock: the task may have completed, failed or
		// heartbeat between the snapshot and now.
		s.progMu.Lock()
		if _, ok := s.inProgress[task.ID]; !ok || !task.TimedOut(s.opts.TaskTimeout) {
			s.progMu.Unlock()
			continue
		}

		assignedTo := task.AssignedTo
		if task.Requeue() {
			delete(s.inProgress, task.ID)
			s.totalRequeued++
			inProg := len(s.inProgress)
			s.progMu.Unlock()

			s.queueMu.Lock()
			s.queue.PushFront(task)
			depth := s.queue.Len()
			s.queueMu.Unlock()

			metrics.TasksRequeuedTotal.Inc()
			metrics.QueueDepth.Set(float64(depth))
			metrics.InProgress.Set(float64(inProg))

			slog.Warn("task timed out, requeued",
				"task_id", task.ID,
				"assigned_to", assignedTo,
				"retry_count", task.RetryCount,
				"max_retries", task.MaxRetries)
		} else {
			task.MarkFailed()
			s.failed[task.ID] = task
			delete(s.inProgress, task.ID)
			s.totalFailed++
			inProg := len(s.inProgress)
			s.progMu.Unlock()

			s.deletePayload(task.PayloadKey)
			metrics.TasksFailedTotal.WithLabelValues("retries_exhausted").Inc()
			metrics.InProgress.Set(float64(inProg))

			slog.Error("task exceeded max retries, marked failed",
				"task_id", task.ID, "retry_count", task.RetryCount)
		}
	}
}

// checkBackpressure notifies the registered supervisor when queue depth
// crosses the threshold. Advisory only; the supervisor has its own loop.
func (s *Service) checkBackpressure() {
	m := s.Metrics()
	if m.QueueDepth <= s.opts.BackpressureThreshold {
		return
	}

	s.sourceMu.RLock()
	notifier, ok := s.source.(BackpressureNotifier)
	s.sourceMu.RUnlock()
	if !ok {
		return
	}

	slog.Info("high backpressure detected",
		"queue_depth", m.QueueDepth,
		"threshold", s.opts.BackpressureThreshold)
	notifier.NotifyBackpressure(m)
}
