package analyzer

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// PoolStats aggregates worker statistics. Totals include counters folded in
// from workers removed by scale-down.
type PoolStats struct {
	NumAnalyzers        int                    `json:"num_analyzers" yaml:"num_analyzers"`
	TotalProcessed      int64                  `json:"total_processed" yaml:"total_processed"`
	TotalFailed         int64                  `json:"total_failed" yaml:"total_failed"`
	CurrentProcessed    int64                  `json:"current_analyzers_processed" yaml:"current_analyzers_processed"`
	ScaledDownProcessed int64                  `json:"scaled_down_processed" yaml:"scaled_down_processed"`
	ScaledDownFailed    int64                  `json:"scaled_down_failed" yaml:"scaled_down_failed"`
	Analyzers           map[string]WorkerStats `json:"analyzer_stats" yaml:"analyzer_stats"`
	IsRunning           bool                   `json:"is_running" yaml:"is_running"`
	Autoscaling         *AutoscalerStats       `json:"autoscaling,omitempty" yaml:"autoscaling,omitempty"`
}

// Stats returns pool-wide statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	workers := append([]*Worker(nil), p.workers...)
	histProcessed := p.histProcessed
	histFailed := p.histFailed
	running := p.running
	p.mu.Unlock()

	analyzers := make(map[string]WorkerStats, len(workers))
	var processed, failed int64
	for _, w := range workers {
		stats := w.Stats()
		analyzers[stats.AnalyzerID] = stats
		processed += stats.TotalProcessed
		failed += stats.TotalFailed
	}

	stats := PoolStats{
		NumAnalyzers:        len(workers),
		TotalProcessed:      processed + histProcessed,
		TotalFailed:         failed + histFailed,
		CurrentProcessed:    processed,
		ScaledDownProcessed: histProcessed,
		ScaledDownFailed:    histFailed,
		Analyzers:           analyzers,
		IsRunning:           running,
	}
	if p.scaler != nil {
		s := p.scaler.Stats()
		stats.Autoscaling = &s
	}
	return stats
}

// DistributionEntry describes one worker's share of processed work against
// the share its weight suggests.
type DistributionEntry struct {
	Processed          int64   `json:"processed" yaml:"processed"`
	Weight             float64 `json:"weight" yaml:"weight"`
	ActualPercentage   float64 `json:"actual_percentage" yaml:"actual_percentage"`
	ExpectedPercentage float64 `json:"expected_percentage" yaml:"expected_percentage"`
	Deviation          float64 `json:"deviation" yaml:"deviation"`
}

// Distribution reports how processed work spread across the current workers.
func (p *Pool) Distribution() map[string]DistributionEntry {
	stats := p.Stats()
	if stats.TotalProcessed == 0 {
		return map[string]DistributionEntry{}
	}

	dist := make(map[string]DistributionEntry, len(stats.Analyzers))
	for id, ws := range stats.Analyzers {
		actual := float64(ws.TotalProcessed) / float64(stats.TotalProcessed) * 100
		expected := ws.Weight * 100
		dist[id] = DistributionEntry{
			Processed:          ws.TotalProcessed,
			Weight:             ws.Weight,
			ActualPercentage:   round2(actual),
			ExpectedPercentage: round2(expected),
			Deviation:          round2(actual - expected),
		}
	}
	return dist
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// WaitForIdle blocks until no worker holds an in-flight task, polling every
// checkInterval. Returns false if ctx expires first.
func (p *Pool) WaitForIdle(ctx context.Context, checkInterval time.Duration) bool {
	if checkInterval <= 0 {
		checkInterval = time.Second
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		idle := true
		for _, w := range p.snapshotWorkers() {
			if w.ActiveTasks() > 0 {
				idle = false
				break
			}
		}
		if idle {
			slog.Info("all analyzers idle")
			return true
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Warn("timeout waiting for analyzers to become idle")
			return false
		}
	}
}
