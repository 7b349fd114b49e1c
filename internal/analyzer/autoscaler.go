package analyzer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AnimatorJoe/distributor/internal/metrics"
)

// ControllerState labels what the autoscaler last decided. Only ScalingUp and
// ScalingDown mutate fleet size; the others are derived observations.
type ControllerState string

const (
	StateSteady         ControllerState = "STEADY"
	StateScalingUp      ControllerState = "SCALING_UP"
	StateScalingDown    ControllerState = "SCALING_DOWN"
	StateWithinCooldown ControllerState = "WITHIN_COOLDOWN"
)

// AutoscaleOptions configures the pool's resize controller.
type AutoscaleOptions struct {
	Enabled            bool
	MinSize            int
	MaxSize            int
	ScaleUpThreshold   int           // queue depth at or above which the pool grows
	ScaleDownThreshold int           // queue depth at or below which the pool shrinks
	CheckInterval      time.Duration
	Cooldown           time.Duration // strict silence window after any scaling action
	ScaleUpCount       int
	ScaleDownCount     int
	ScaleWeight        float64 // weight given to scale-up workers
	MetricsTimeout     time.Duration
}

func (o *AutoscaleOptions) applyDefaults(poolSize int) {
	if o.MinSize <= 0 {
		o.MinSize = poolSize
	}
	if o.MaxSize <= 0 {
		o.MaxSize = poolSize * 4
	}
	if o.ScaleUpThreshold <= 0 {
		o.ScaleUpThreshold = 50
	}
	if o.ScaleDownThreshold <= 0 {
		o.ScaleDownThreshold = 10
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = 10 * time.Second
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
	if o.ScaleUpCount <= 0 {
		o.ScaleUpCount = 1
	}
	if o.ScaleDownCount <= 0 {
		o.ScaleDownCount = 1
	}
	if o.ScaleWeight <= 0 || o.ScaleWeight > 1 {
		o.ScaleWeight = 0.5
	}
	if o.MetricsTimeout <= 0 {
		o.MetricsTimeout = 3 * time.Second
	}
}

// autoscaler is the closed-loop controller resizing the pool from queue
// depth observed on the distributor's metrics endpoint.
type autoscaler struct {
	pool   *Pool
	opts   AutoscaleOptions
	client *Client

	mu              sync.Mutex
	lastScale       time.Time
	state           ControllerState
	totalScaleUps   int64
	totalScaleDowns int64

	nudge  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func newAutoscaler(pool *Pool, opts AutoscaleOptions) *autoscaler {
	return &autoscaler{
		pool:   pool,
		opts:   opts,
		client: NewClient(pool.opts.DistributorURL, opts.MetricsTimeout),
		state:  StateSteady,
		nudge:  make(chan struct{}, 1),
	}
}

// Start launches the control loop. Idempotent.
func (a *autoscaler) Start(ctx context.Context) {
	if a.cancel != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})

	go a.loop(ctx)

	slog.Info("autoscaling enabled",
		"min_size", a.opts.MinSize,
		"max_size", a.opts.MaxSize,
		"scale_up_threshold", a.opts.ScaleUpThreshold,
		"scale_down_threshold", a.opts.ScaleDownThreshold,
		"cooldown", a.opts.Cooldown)
}

// Stop halts the control loop.
func (a *autoscaler) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
	a.cancel = nil
	slog.Info("autoscaling stopped")
}

// Nudge requests an out-of-cycle check. Coalesced; never blocks.
func (a *autoscaler) Nudge() {
	select {
	case a.nudge <- struct{}{}:
	default:
	}
}

func (a *autoscaler) loop(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkAndScale(ctx)
		case <-a.nudge:
			a.checkAndScale(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// checkAndScale reads queue depth and applies the threshold rules. The
// cooldown is a strict silence window: inside it no action is taken no
// matter what the metrics say.
func (a *autoscaler) checkAndScale(ctx context.Context) {
	a.mu.Lock()
	if !a.lastScale.IsZero() {
		elapsed := time.Since(a.lastScale)
		if elapsed < a.opts.Cooldown {
			a.state = StateWithinCooldown
			a.mu.Unlock()
			slog.Debug("autoscaler in cooldown",
				"elapsed", elapsed.Round(100*time.Millisecond), "cooldown", a.opts.Cooldown)
			return
		}
	}
	a.mu.Unlock()

	m, err := a.client.Metrics(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("autoscaler failed to query metrics", "error", err)
		}
		return
	}

	queueDepth := m.QueueDepth
	size := a.pool.Size()

	switch {
	case queueDepth >= a.opts.ScaleUpThreshold && size < a.opts.MaxSize:
		count := min(a.opts.ScaleUpCount, a.opts.MaxSize-size)
		slog.Info("scaling up",
			"queue_depth", queueDepth, "pool_size", size, "adding", count)

		if err := a.pool.ScaleUp(count, a.opts.ScaleWeight); err != nil {
			slog.Error("scale up failed", "error", err)
			return
		}
		a.recordAction(StateScalingUp)
		metrics.ScaleEventsTotal.WithLabelValues("up").Inc()

	case queueDepth <= a.opts.ScaleDownThreshold && size > a.opts.MinSize:
		count := min(a.opts.ScaleDownCount, size-a.opts.MinSize)
		slog.Info("scaling down",
			"queue_depth", queueDepth, "pool_size", size, "removing", count)

		a.pool.ScaleDown(count)
		a.recordAction(StateScalingDown)
		metrics.ScaleEventsTotal.WithLabelValues("down").Inc()

	default:
		a.mu.Lock()
		a.state = StateSteady
		a.mu.Unlock()
		slog.Debug("no scaling needed",
			"queue_depth", queueDepth,
			"pool_size", size,
			"min_size", a.opts.MinSize,
			"max_size", a.opts.MaxSize)
	}
}

func (a *autoscaler) recordAction(state ControllerState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastScale = time.Now()
	a.state = state
	switch state {
	case StateScalingUp:
		a.totalScaleUps++
	case StateScalingDown:
		a.totalScaleDowns++
	}
}

// AutoscalerStats is the controller's counter snapshot.
type AutoscalerStats struct {
	Enabled         bool            `json:"enabled" yaml:"enabled"`
	State           ControllerState `json:"state" yaml:"state"`
	MinSize         int             `json:"min_size" yaml:"min_size"`
	MaxSize         int             `json:"max_size" yaml:"max_size"`
	TotalScaleUps   int64           `json:"total_scale_ups" yaml:"total_scale_ups"`
	TotalScaleDowns int64           `json:"total_scale_downs" yaml:"total_scale_downs"`
	InCooldown      bool            `json:"in_cooldown" yaml:"in_cooldown"`
}

// Stats returns the controller's statistics.
func (a *autoscaler) Stats() AutoscalerStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	inCooldown := !a.lastScale.IsZero() && time.Since(a.lastScale) < a.opts.Cooldown
	state := a.state
	if inCooldown {
		state = StateWithinCooldown
	} else if state == StateWithinCooldown {
		state = StateSteady
	}

	return AutoscalerStats{
		Enabled:         true,
		State:           state,
		MinSize:         a.opts.MinSize,
		MaxSize:         a.opts.MaxSize,
		TotalScaleUps:   a.totalScaleUps,
		TotalScaleDowns: a.totalScaleDowns,
		InCooldown:      inCooldown,
	}
}
