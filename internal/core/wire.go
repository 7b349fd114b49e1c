package core

import "time"

// WorkRequest is an analyzer's pull request. Weight and CurrentTasks are
// advisory: they are recorded for metrics but never influence dispatch.
type WorkRequest struct {
	AnalyzerID   string  `json:"analyzer_id"`
	Weight       float64 `json:"weight"`
	CurrentTasks int     `json:"current_tasks"`
}

// WorkResponse answers a pull. TaskID and LogData are set only when HasWork.
type WorkResponse struct {
	HasWork bool       `json:"has_work"`
	TaskID  string     `json:"task_id,omitempty"`
	LogData *LogRecord `json:"log_data,omitempty"`
	Message string     `json:"message"`
}

// StatusUpdate is an analyzer's report for one task. An in_progress status is
// a heartbeat; completed and failed are terminal.
type StatusUpdate struct {
	TaskID     string    `json:"task_id"`
	AnalyzerID string    `json:"analyzer_id"`
	Status     TaskState `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message,omitempty"`
}

// ScalingMetrics is the snapshot the autoscaler acts on. Backpressure is
// queue depth divided by active analyzers, or the raw depth when no analyzer
// is active (including when no analyzer source is registered).
type ScalingMetrics struct {
	QueueDepth        int       `json:"queue_depth"`
	InProgressCount   int       `json:"in_progress_count"`
	TotalAnalyzers    int       `json:"total_analyzers"`
	ActiveAnalyzers   int       `json:"active_analyzers"`
	QueueBackpressure float64   `json:"queue_backpressure"`
	Timestamp         time.Time `json:"timestamp"`
}
