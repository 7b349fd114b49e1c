package distributor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AnimatorJoe/distributor/internal/core"
	"github.com/AnimatorJoe/distributor/internal/metrics"
)

// AnalyzerSource supplies fleet counts for scaling metrics. The supervisor
// registers itself on startup; without a registration both counts report zero.
type AnalyzerSource interface {
	TotalAnalyzers() int
	ActiveAnalyzers() int
}

// BackpressureNotifier is optionally implemented by an AnalyzerSource that
// wants an advisory nudge when queue depth crosses the backpressure threshold.
// The supervisor runs its own control loop and may ignore the nudge.
type BackpressureNotifier interface {
	NotifyBackpressure(m core.ScalingMetrics)
}

// Options configures a Service.
type Options struct {
	TaskTimeout           time.Duration // heartbeat age before a task is considered lost
	MonitorInterval       time.Duration // period of the timeout monitor
	MaxRetries            int           // requeue budget per task
	BackpressureThreshold int           // queue depth that triggers an advisory notification
}

func (o *Options) applyDefaults() {
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 30 * time.Second
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = 5 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = core.DefaultMaxRetries
	}
	if o.BackpressureThreshold <= 0 {
		o.BackpressureThreshold = 100
	}
}

// Service is the distributor core: the dispatch queue, the in-progress /
// completed / failed collections, the payload store, and the timeout monitor.
//
// State is partitioned across three locks. Acquisition order is
// queue → in-progress → data; the monitor, which logically needs the opposite
// order, snapshots in-progress entries under its lock and releases it before
// touching the queue.
type Service struct {
	opts Options

	// queueMu guards queue and totalReceived.
	queueMu sync.Mutex
	queue   *dispatchQueue

	// progMu guards inProgress, completed, failed and the transition counters.
	progMu        sync.Mutex
	inProgress    map[string]*core.Task
	completed     map[string]*core.Task
	failed        map[string]*core.Task
	totalComplete int64
	totalFailed   int64
	totalRequeued int64

	// dataMu guards payloads.
	dataMu   sync.Mutex
	payloads map[string]*core.LogRecord

	totalReceived int64 // guarded by queueMu

	// sourceMu guards source; registered by the supervisor after construction.
	sourceMu sync.RWMutex
	source   AnalyzerSource

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a stopped service. Call Start to run the monitor.
func NewService(opts Options) *Service {
	opts.applyDefaults()
	return &Service{
		opts:       opts,
		queue:      newDispatchQueue(),
		inProgress: make(map[string]*core.Task),
		completed:  make(map[string]*core.Task),
		failed:     make(map[string]*core.Task),
		payloads:   make(map[string]*core.LogRecord),
	}
}

// RegisterAnalyzerSource installs the supervisor backreference used for
// analyzer counts in scaling metrics.
func (s *Service) RegisterAnalyzerSource(src AnalyzerSource) {
	s.sourceMu.Lock()
	defer s.sourceMu.Unlock()
	s.source = src
}

// Start launches the background timeout monitor. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.monitor(ctx)

	slog.Info("distributor started",
		"task_timeout", s.opts.TaskTimeout,
		"monitor_interval", s.opts.MonitorInterval,
		"max_retries", s.opts.MaxRetries)
}

// Stop cancels the monitor and waits for it to exit.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	slog.Info("distributor stopped")
}

// Submit accepts a log record unconditionally, creates a queued task and
// stores the payload. Returns the new task id.
func (s *Service) Submit(rec *core.LogRecord) string {
	task := core.NewTask()
	task.MaxRetries = s.opts.MaxRetries

	s.queueMu.Lock()
	s.queue.PushBack(task)
	s.totalReceived++
	depth := s.queue.Len()
	s.queueMu.Unlock()

	s.dataMu.Lock()
	s.payloads[task.PayloadKey] = rec
	s.dataMu.Unlock()

	metrics.TasksReceivedTotal.Inc()
	metrics.QueueDepth.Set(float64(depth))

	slog.Info("received log",
		"task_id", task.ID,
		"source", rec.Source,
		"level", rec.Level,
		"queue_depth", depth)

	return task.ID
}

// Pull hands the head-of-queue task to an analyzer. The dispatch decision is
// purely queue-empty vs non-empty; weight and current task count are recorded
// for metrics only.
func (s *Service) Pull(req core.WorkRequest) core.WorkResponse {
	metrics.AnalyzerReportedWeight.WithLabelValues(req.AnalyzerID).Set(req.Weight)
	metrics.AnalyzerReportedTasks.WithLabelValues(req.AnalyzerID).Set(float64(req.CurrentTasks))

	s.queueMu.Lock()
	task := s.queue.PopFront()
	depth := s.queue.Len()
	s.queueMu.Unlock()

	if task == nil {
		return core.WorkResponse{HasWork: false, Message: "queue is empty"}
	}

	task.Assign(req.AnalyzerID)

	s.progMu.Lock()
	s.inProgress[task.ID] = task
	inProg := len(s.inProgress)
	s.progMu.Unlock()

	s.dataMu.Lock()
	payload := s.payloads[task.PayloadKey]
	s.dataMu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	metrics.InProgress.Set(float64(inProg))

	if payload == nil {
		// Must not occur while invariant 2 holds: every queued task has its
		// payload present. Drop the task rather than dispatch a hollow one.
		slog.Error("payload missing for dispatched task, dropping",
			"task_id", task.ID, "analyzer_id", req.AnalyzerID)
		s.progMu.Lock()
		delete(s.inProgress, task.ID)
		metrics.InProgress.Set(float64(len(s.inProgress)))
		s.progMu.Unlock()
		return core.WorkResponse{HasWork: false, Message: "data not found"}
	}

	slog.Info("assigned work",
		"task_id", task.ID,
		"analyzer_id", req.AnalyzerID,
		"retry_count", task.RetryCount,
		"queue_depth", depth)

	return core.WorkResponse{
		HasWork: true,
		TaskID:  task.ID,
		LogData: payload,
		Message: "work assigned",
	}
}

// UpdateStatus handles an analyzer's report for a task. An in_progress status
// is a heartbeat. Updates for unknown tasks are dropped silently: the monitor
// may have already requeued the task, and late duplicates must be idempotent.
func (s *Service) UpdateStatus(u core.StatusUpdate) {
	s.progMu.Lock()

	task, ok := s.inProgress[u.TaskID]
	if !ok {
		s.progMu.Unlock()
		slog.Warn("status update for unknown task, ignoring",
			"task_id", u.TaskID, "analyzer_id", u.AnalyzerID, "status", u.Status)
		return
	}

	// Reports from a worker other than the assignee are still honored
	// (caller discipline); the mismatch is only logged.
	if task.AssignedTo != u.AnalyzerID {
		slog.Debug("status update from non-assignee",
			"task_id", u.TaskID, "assigned_to", task.AssignedTo, "reported_by", u.AnalyzerID)
	}

	switch u.Status {
	case core.StateInProgress:
		task.Heartbeat()
		s.progMu.Unlock()
		slog.Debug("heartbeat", "task_id", u.TaskID, "analyzer_id", u.AnalyzerID)

	case core.StateCompleted:
		task.MarkCompleted()
		s.completed[u.TaskID] = task
		delete(s.inProgress, u.TaskID)
		s.totalComplete++
		inProg := len(s.inProgress)
		s.progMu.Unlock()

		s.deletePayload(task.PayloadKey)
		metrics.TasksCompletedTotal.Inc()
		metrics.InProgress.Set(float64(inProg))

		slog.Info("task completed", "task_id", u.TaskID, "analyzer_id", u.AnalyzerID)

	case core.StateFailed:
		task.MarkFailed()
		s.failed[u.TaskID] = task
		delete(s.inProgress, u.TaskID)
		s.totalFailed++
		inProg := len(s.inProgress)
		s.progMu.Unlock()

		s.deletePayload(task.PayloadKey)
		metrics.TasksFailedTotal.WithLabelValues("reported").Inc()
		metrics.InProgress.Set(float64(inProg))

		slog.Warn("task failed",
			"task_id", u.TaskID, "analyzer_id", u.AnalyzerID, "reason", u.Message)

	default:
		s.progMu.Unlock()
		slog.Warn("status update with no effect, ignoring",
			"task_id", u.TaskID, "status", u.Status)
	}
}

func (s *Service) deletePayload(key string) {
	s.dataMu.Lock()
	delete(s.payloads, key)
	s.dataMu.Unlock()
}

// Metrics returns the scaling snapshot.
func (s *Service) Metrics() core.ScalingMetrics {
	s.queueMu.Lock()
	depth := s.queue.Len()
	s.queueMu.Unlock()

	s.progMu.Lock()
	inProg := len(s.inProgress)
	s.progMu.Unlock()

	var total, active int
	s.sourceMu.RLock()
	if s.source != nil {
		total = s.source.TotalAnalyzers()
		active = s.source.ActiveAnalyzers()
	}
	s.sourceMu.RUnlock()

	backpressure := float64(depth)
	if active > 0 {
		backpressure = float64(depth) / float64(active)
	}
	metrics.QueueBackpressure.Set(backpressure)

	return core.ScalingMetrics{
		QueueDepth:        depth,
		InProgressCount:   inProg,
		TotalAnalyzers:    total,
		ActiveAnalyzers:   active,
		QueueBackpressure: backpressure,
		Timestamp:         time.Now().UTC(),
	}
}

// Stats is the operator-facing counter snapshot.
type Stats struct {
	QueueDepth     int           `json:"queue_depth" yaml:"queue_depth"`
	InProgress     int           `json:"in_progress" yaml:"in_progress"`
	Completed      int           `json:"completed" yaml:"completed"`
	Failed         int           `json:"failed" yaml:"failed"`
	TotalReceived  int64         `json:"total_received" yaml:"total_received"`
	TotalCompleted int64         `json:"total_completed" yaml:"total_completed"`
	TotalFailed    int64         `json:"total_failed" yaml:"total_failed"`
	TotalRequeued  int64         `json:"total_requeued" yaml:"total_requeued"`
	Backpressure   float64       `json:"backpressure" yaml:"backpressure"`
	Analyzers      AnalyzerStats `json:"analyzers" yaml:"analyzers"`
}

// AnalyzerStats carries the supervisor-reported fleet counts.
type AnalyzerStats struct {
	Total  int `json:"total" yaml:"total"`
	Active int `json:"active" yaml:"active"`
}

// Stats returns distributor statistics.
func (s *Service) Stats() Stats {
	m := s.Metrics()

	s.queueMu.Lock()
	received := s.totalReceived
	s.queueMu.Unlock()

	s.progMu.Lock()
	completed := len(s.completed)
	failed := len(s.failed)
	totalCompleted := s.totalComplete
	totalFailed := s.totalFailed
	totalRequeued := s.totalRequeued
	s.progMu.Unlock()

	return Stats{
		QueueDepth:     m.QueueDepth,
		InProgress:     m.InProgressCount,
		Completed:      completed,
		Failed:         failed,
		TotalReceived:  received,
		TotalCompleted: totalCompleted,
		TotalFailed:    totalFailed,
		TotalRequeued:  totalRequeued,
		Backpressure:   m.QueueBackpressure,
		Analyzers:      AnalyzerStats{Total: m.TotalAnalyzers, Active: m.ActiveAnalyzers},
	}
}

// Reset clears all collections and counters. Test harness use only.
func (s *Service) Reset() {
	s.queueMu.Lock()
	s.queue.Clear()
	s.totalReceived = 0
	s.queueMu.Unlock()

	s.progMu.Lock()
	s.inProgress = make(map[string]*core.Task)
	s.completed = make(map[string]*core.Task)
	s.failed = make(map[string]*core.Task)
	s.totalComplete = 0
	s.totalFailed = 0
	s.totalRequeued = 0
	s.progMu.Unlock()

	s.dataMu.Lock()
	s.payloads = make(map[string]*core.LogRecord)
	s.dataMu.Unlock()

	metrics.QueueDepth.Set(0)
	metrics.InProgress.Set(0)
	metrics.QueueBackpressure.Set(0)

	slog.Info("distributor state reset")
}
