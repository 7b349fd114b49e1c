package analyzer

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AnimatorJoe/distributor/internal/core"
	"github.com/AnimatorJoe/distributor/pkg/plugin"
)

// WorkerOptions configures a single analyzer worker.
type WorkerOptions struct {
	ID                string
	DistributorURL    string
	Weight            float64       // in (0, 1]; local concurrency is floor(weight*10), min 1
	PollInterval      time.Duration // sleep between pulls when at capacity; ×10 when the queue is empty
	HeartbeatInterval time.Duration // period of in_progress heartbeats during long processing
	RequestTimeout    time.Duration // per HTTP call
	Processor         plugin.Processor
}

func (o *WorkerOptions) applyDefaults() {
	if o.Weight <= 0 || o.Weight > 1 {
		o.Weight = 0.1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 5 * time.Second
	}
}

// Worker pulls tasks from the distributor, processes them with bounded
// concurrency and reports status. A single cooperative loop issues pulls;
// each pulled task is processed on its own goroutine.
type Worker struct {
	opts          WorkerOptions
	maxConcurrent int
	client        *Client
	processor     plugin.Processor

	mu     sync.Mutex
	active map[string]struct{}

	inflight sync.WaitGroup // per-task processing goroutines

	totalProcessed atomic.Int64
	totalFailed    atomic.Int64
	startTime      time.Time

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a stopped worker.
func NewWorker(opts WorkerOptions) *Worker {
	opts.applyDefaults()
	w := &Worker{
		opts:          opts,
		maxConcurrent: maxConcurrentFor(opts.Weight),
		client:        NewClient(opts.DistributorURL, opts.RequestTimeout),
		processor:     opts.Processor,
		active:        make(map[string]struct{}),
	}
	slog.Info("analyzer initialized",
		"analyzer_id", opts.ID,
		"weight", opts.Weight,
		"max_concurrent", w.maxConcurrent)
	return w
}

// maxConcurrentFor derives the local concurrency bound from the advisory
// weight: 0.1 → 1 slot, 0.5 → 5 slots, 1.0 → 10 slots.
func maxConcurrentFor(weight float64) int {
	n := int(math.Floor(weight * 10))
	if n < 1 {
		n = 1
	}
	return n
}

// ID returns the worker's analyzer id.
func (w *Worker) ID() string {
	return w.opts.ID
}

// Weight returns the worker's advisory weight.
func (w *Worker) Weight() float64 {
	return w.opts.Weight
}

// Start launches the pull loop. Idempotent.
func (w *Worker) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	w.startTime = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(ctx)

	slog.Info("analyzer started", "analyzer_id", w.opts.ID)
}

// Stop halts the pull loop and drains in-flight processing: every outstanding
// task reaches its terminal status report before Stop returns.
func (w *Worker) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}

	w.cancel()
	<-w.done

	if n := w.ActiveTasks(); n > 0 {
		slog.Info("waiting for active tasks to complete",
			"analyzer_id", w.opts.ID, "active", n)
	}
	w.inflight.Wait()

	slog.Info("analyzer stopped", "analyzer_id", w.opts.ID)
}

// ActiveTasks returns the number of tasks currently being processed.
func (w *Worker) ActiveTasks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

// loop is the single cooperative pull loop. Pull errors are swallowed: a
// dropped terminal status surfaces on the distributor as a timeout and is
// recovered by requeue.
func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	for {
		if ctx.Err() != nil {
			return
		}

		if w.ActiveTasks() >= w.maxConcurrent {
			// At capacity; check again shortly.
			if !sleep(ctx, w.opts.PollInterval) {
				return
			}
			continue
		}

		work, err := w.client.GetWork(ctx, core.WorkRequest{
			AnalyzerID:   w.opts.ID,
			Weight:       w.opts.Weight,
			CurrentTasks: w.ActiveTasks(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to pull work", "analyzer_id", w.opts.ID, "error", err)
			if !sleep(ctx, w.opts.PollInterval) {
				return
			}
			continue
		}

		if !work.HasWork {
			// Empty queue; back off harder than the at-capacity case.
			if !sleep(ctx, w.opts.PollInterval*10) {
				return
			}
			continue
		}

		w.mu.Lock()
		w.active[work.TaskID] = struct{}{}
		w.mu.Unlock()

		w.inflight.Add(1)
		go w.processTask(work.TaskID, work.LogData)
	}
}

// processTask runs one pulled task to its terminal status. It deliberately
// does not use the loop context: a stopping worker drains in-flight work
// rather than abandoning it.
func (w *Worker) processTask(taskID string, rec *core.LogRecord) {
	defer w.inflight.Done()
	defer func() {
		w.mu.Lock()
		delete(w.active, taskID)
		w.mu.Unlock()
	}()

	ctx := context.Background()

	// Initial heartbeat: tells the distributor processing has begun.
	w.sendStatus(ctx, taskID, core.StateInProgress, "")

	// Periodic heartbeats keep long processing alive past the task timeout.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go w.heartbeatLoop(hbCtx, taskID)

	err := w.processor.Process(ctx, rec)
	stopHeartbeat()

	if err != nil {
		w.totalFailed.Add(1)
		slog.Error("processing failed",
			"analyzer_id", w.opts.ID, "task_id", taskID, "error", err)
		w.sendStatus(ctx, taskID, core.StateFailed, err.Error())
		return
	}

	w.totalProcessed.Add(1)
	slog.Debug("task processed", "analyzer_id", w.opts.ID, "task_id", taskID)
	w.sendStatus(ctx, taskID, core.StateCompleted, "")
}

func (w *Worker) heartbeatLoop(ctx context.Context, taskID string) {
	ticker := time.NewTicker(w.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sendStatus(ctx, taskID, core.StateInProgress, "")
		case <-ctx.Done():
			return
		}
	}
}

// sendStatus reports to the distributor, swallowing transport errors.
func (w *Worker) sendStatus(ctx context.Context, taskID string, status core.TaskState, message string) {
	err := w.client.SendStatus(ctx, core.StatusUpdate{
		TaskID:     taskID,
		AnalyzerID: w.opts.ID,
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Message:    message,
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("failed to send status",
			"analyzer_id", w.opts.ID, "task_id", taskID, "status", status, "error", err)
	}
}

// WorkerStats is a worker's counter snapshot.
type WorkerStats struct {
	AnalyzerID     string  `json:"analyzer_id" yaml:"analyzer_id"`
	Weight         float64 `json:"weight" yaml:"weight"`
	MaxConcurrent  int     `json:"max_concurrent" yaml:"max_concurrent"`
	ActiveTasks    int     `json:"active_tasks" yaml:"active_tasks"`
	TotalProcessed int64   `json:"total_processed" yaml:"total_processed"`
	TotalFailed    int64   `json:"total_failed" yaml:"total_failed"`
	UptimeSeconds  float64 `json:"uptime_seconds" yaml:"uptime_seconds"`
	TasksPerSecond float64 `json:"tasks_per_second" yaml:"tasks_per_second"`
	IsRunning      bool    `json:"is_running" yaml:"is_running"`
}

// Stats returns the worker's statistics.
func (w *Worker) Stats() WorkerStats {
	var uptime float64
	if !w.startTime.IsZero() {
		uptime = time.Since(w.startTime).Seconds()
	}

	processed := w.totalProcessed.Load()
	var throughput float64
	if uptime > 0 {
		throughput = float64(processed) / uptime
	}

	return WorkerStats{
		AnalyzerID:     w.opts.ID,
		Weight:         w.opts.Weight,
		MaxConcurrent:  w.maxConcurrent,
		ActiveTasks:    w.ActiveTasks(),
		TotalProcessed: processed,
		TotalFailed:    w.totalFailed.Load(),
		UptimeSeconds:  uptime,
		TasksPerSecond: throughput,
		IsRunning:      w.running.Load(),
	}
}

// sleep waits for d or until ctx is cancelled; returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
