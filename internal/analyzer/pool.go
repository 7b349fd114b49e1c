package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/AnimatorJoe/distributor/internal/core"
	"github.com/AnimatorJoe/distributor/internal/metrics"
	"github.com/AnimatorJoe/distributor/pkg/plugin"
)

// defaultWeightCycle is the weight pattern applied when no weights are
// configured.
var defaultWeightCycle = []float64{0.4, 0.3, 0.2, 0.1}

// PoolOptions configures an analyzer pool.
type PoolOptions struct {
	DistributorURL    string
	Size              int
	Weights           []float64 // empty → default cycle; shorter than Size → cycled
	Prefix            string    // analyzer id prefix, default "analyzer"
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
	ProcessorName     string
	ProcessorConfig   map[string]any
	Autoscale         AutoscaleOptions
}

func (o *PoolOptions) applyDefaults() {
	if o.Size <= 0 {
		o.Size = 4
	}
	if o.Prefix == "" {
		o.Prefix = "analyzer"
	}
	if o.ProcessorName == "" {
		o.ProcessorName = "delay"
	}
	o.Autoscale.applyDefaults(o.Size)
}

// Pool owns a fleet of workers sharing one distributor. It implements the
// distributor's AnalyzerSource so a co-located service can report fleet
// counts in its scaling metrics.
type Pool struct {
	opts PoolOptions

	mu        sync.Mutex
	workers   []*Worker
	nextIndex int // monotonically increasing worker name suffix
	running   bool

	// Counters folded in from scaled-down workers so aggregate stats survive
	// resizes.
	histProcessed int64
	histFailed    int64

	scaler *autoscaler
}

// NewPool creates a stopped pool.
func NewPool(opts PoolOptions) (*Pool, error) {
	opts.applyDefaults()

	weights, err := ResolveWeights(opts.Weights, opts.Size)
	if err != nil {
		return nil, err
	}
	opts.Weights = weights

	p := &Pool{opts: opts}
	if opts.Autoscale.Enabled {
		p.scaler = newAutoscaler(p, opts.Autoscale)
	}

	msg := "analyzer pool initialized"
	if opts.Autoscale.Enabled {
		slog.Info(msg,
			"size", opts.Size,
			"weights", weights,
			"autoscale_min", opts.Autoscale.MinSize,
			"autoscale_max", opts.Autoscale.MaxSize)
	} else {
		slog.Info(msg, "size", opts.Size, "weights", weights)
	}
	return p, nil
}

// ResolveWeights expands a configured weight vector to n entries: an empty
// vector uses the default cycle, a vector of length >= n is truncated, and a
// shorter vector is cycled.
func ResolveWeights(weights []float64, n int) ([]float64, error) {
	pattern := weights
	if len(pattern) == 0 {
		pattern = defaultWeightCycle
	}
	for i, w := range pattern {
		if w <= 0 || w > 1 {
			return nil, fmt.Errorf("weight[%d] must be in (0, 1], got %v", i, w)
		}
	}

	resolved := make([]float64, n)
	for i := range resolved {
		resolved[i] = pattern[i%len(pattern)]
	}
	return resolved, nil
}

// Start creates and starts the initial workers, then the autoscale loop.
// Idempotent.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		slog.Warn("analyzer pool already running")
		return nil
	}
	p.running = true

	workers := make([]*Worker, 0, p.opts.Size)
	for i := 0; i < p.opts.Size; i++ {
		w, err := p.newWorker(p.opts.Weights[i])
		if err != nil {
			p.running = false
			p.mu.Unlock()
			return err
		}
		workers = append(workers, w)
	}
	p.workers = workers
	p.mu.Unlock()

	// Start workers concurrently, mirroring the concurrent stop below.
	var wg conc.WaitGroup
	for _, w := range workers {
		wg.Go(w.Start)
	}
	wg.Wait()

	metrics.PoolSize.Set(float64(len(workers)))

	if p.scaler != nil {
		p.scaler.Start(ctx)
	}

	slog.Info("analyzer pool started", "size", len(workers))
	return nil
}

// Stop halts the autoscale loop, then stops all workers concurrently. Each
// worker drains its in-flight tasks before releasing.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()

	if p.scaler != nil {
		p.scaler.Stop()
	}

	slog.Info("stopping analyzer pool", "size", len(workers))

	var wg conc.WaitGroup
	for _, w := range workers {
		wg.Go(w.Stop)
	}
	wg.Wait()

	metrics.PoolSize.Set(0)
	slog.Info("analyzer pool stopped")
}

// newWorker builds a worker with a fresh processor instance. Caller holds
// p.mu.
func (p *Pool) newWorker(weight float64) (*Worker, error) {
	factory, err := plugin.GetProcessorFactory(p.opts.ProcessorName)
	if err != nil {
		return nil, fmt.Errorf("pool processor: %w", err)
	}
	proc := factory()
	if err := proc.Init(p.opts.ProcessorConfig); err != nil {
		return nil, fmt.Errorf("processor %q init failed: %w", p.opts.ProcessorName, err)
	}

	p.nextIndex++
	return NewWorker(WorkerOptions{
		ID:                fmt.Sprintf("%s-%d", p.opts.Prefix, p.nextIndex),
		DistributorURL:    p.opts.DistributorURL,
		Weight:            weight,
		PollInterval:      p.opts.PollInterval,
		HeartbeatInterval: p.opts.HeartbeatInterval,
		RequestTimeout:    p.opts.RequestTimeout,
		Processor:         proc,
	}), nil
}

// ScaleUp adds count workers with the given weight and starts them. New
// workers are indistinguishable from initial ones to the distributor.
func (p *Pool) ScaleUp(count int, weight float64) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		slog.Warn("cannot scale up: pool not running")
		return nil
	}

	added := make([]*Worker, 0, count)
	for i := 0; i < count; i++ {
		w, err := p.newWorker(weight)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.workers = append(p.workers, w)
		added = append(added, w)
	}
	size := len(p.workers)
	p.mu.Unlock()

	for _, w := range added {
		w.Start()
		slog.Info("scaled up worker",
			"analyzer_id", w.ID(), "weight", weight, "max_concurrent", w.maxConcurrent)
	}

	metrics.PoolSize.Set(float64(size))
	slog.Info("scaled up", "added", count, "pool_size", size)
	return nil
}

// ScaleDown removes the count most-recently-added workers. Victim counters
// are folded into the historical accumulators before the workers stop, so
// aggregate stats are preserved across resizes.
func (p *Pool) ScaleDown(count int) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		slog.Warn("cannot scale down: pool not running")
		return
	}
	if len(p.workers) == 0 {
		p.mu.Unlock()
		slog.Warn("no workers to scale down")
		return
	}

	if count > len(p.workers) {
		count = len(p.workers)
	}
	victims := p.workers[len(p.workers)-count:]
	p.workers = p.workers[:len(p.workers)-count]

	for _, w := range victims {
		stats := w.Stats()
		p.histProcessed += stats.TotalProcessed
		p.histFailed += stats.TotalFailed
		slog.Debug("captured stats from departing worker",
			"analyzer_id", w.ID(), "total_processed", stats.TotalProcessed)
	}
	size := len(p.workers)
	p.mu.Unlock()

	var wg conc.WaitGroup
	for _, w := range victims {
		wg.Go(w.Stop)
	}
	wg.Wait()

	metrics.PoolSize.Set(float64(size))
	slog.Info("scaled down", "removed", count, "pool_size", size)
}

// Size returns the current number of workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// snapshotWorkers returns a copy of the current worker slice.
func (p *Pool) snapshotWorkers() []*Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Worker(nil), p.workers...)
}

// TotalAnalyzers implements distributor.AnalyzerSource.
func (p *Pool) TotalAnalyzers() int {
	return p.Size()
}

// ActiveAnalyzers implements distributor.AnalyzerSource: workers currently
// holding at least one in-flight task.
func (p *Pool) ActiveAnalyzers() int {
	active := 0
	for _, w := range p.snapshotWorkers() {
		if w.ActiveTasks() > 0 {
			active++
		}
	}
	return active
}

// NotifyBackpressure implements the distributor's advisory nudge: it
// schedules an out-of-cycle autoscale check. The cooldown still applies.
func (p *Pool) NotifyBackpressure(m core.ScalingMetrics) {
	if p.scaler == nil {
		return
	}
	slog.Debug("backpressure notification received",
		"queue_depth", m.QueueDepth, "backpressure", m.QueueBackpressure)
	p.scaler.Nudge()
}
