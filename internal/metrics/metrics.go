// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksReceivedTotal counts records accepted by submit
	TasksReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distributor_tasks_received_total",
			Help: "Total number of log records accepted for processing",
		},
	)

	// TasksCompletedTotal counts tasks reported completed by analyzers
	TasksCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distributor_tasks_completed_total",
			Help: "Total number of tasks completed",
		},
	)

	// TasksFailedTotal counts terminal failures by cause
	TasksFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_tasks_failed_total",
			Help: "Total number of tasks that reached terminal failure",
		},
		[]string{"cause"}, // reported | retries_exhausted
	)

	// TasksRequeuedTotal counts timeout-driven requeues
	TasksRequeuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distributor_tasks_requeued_total",
			Help: "Total number of timed-out tasks returned to the queue",
		},
	)

	// QueueDepth tracks the current number of queued tasks
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "distributor_queue_depth",
			Help: "Current number of tasks waiting in the dispatch queue",
		},
	)

	// InProgress tracks the current number of assigned tasks
	InProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "distributor_in_progress",
			Help: "Current number of tasks assigned to analyzers",
		},
	)

	// QueueBackpressure tracks queue depth per active analyzer
	QueueBackpressure = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "distributor_queue_backpressure",
			Help: "Queue depth divided by active analyzers",
		},
	)

	// AnalyzerReportedWeight records the advisory weight analyzers attach to pulls
	AnalyzerReportedWeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "distributor_analyzer_reported_weight",
			Help: "Advisory weight reported by each analyzer on its last pull",
		},
		[]string{"analyzer"},
	)

	// AnalyzerReportedTasks records the advisory task count analyzers attach to pulls
	AnalyzerReportedTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "distributor_analyzer_reported_tasks",
			Help: "In-flight task count reported by each analyzer on its last pull",
		},
		[]string{"analyzer"},
	)

	// PoolSize tracks the current analyzer fleet size
	PoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "distributor_pool_size",
			Help: "Current number of analyzers in the pool",
		},
	)

	// ScaleEventsTotal counts autoscaler resize actions by direction
	ScaleEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_scale_events_total",
			Help: "Total number of autoscaler resize actions",
		},
		[]string{"direction"}, // up | down
	)
)
