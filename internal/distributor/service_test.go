package distributor

import (
	"fmt"
	"testing"
	"time"

	"github.com/AnimatorJoe/distributor/internal/core"
)

func testRecord(msg string) *core.LogRecord {
	return &core.LogRecord{
		Timestamp: time.Now().UTC(),
		Level:     core.LevelInfo,
		Message:   msg,
		Source:    "test",
		Metadata:  map[string]any{},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(Options{
		TaskTimeout:     time.Second,
		MonitorInterval: 100 * time.Millisecond,
	})
}

func pull(t *testing.T, s *Service, analyzerID string) core.WorkResponse {
	t.Helper()
	resp := s.Pull(core.WorkRequest{AnalyzerID: analyzerID, Weight: 0.1})
	if !resp.HasWork {
		t.Fatal("expected work")
	}
	return resp
}

// ---------------------------------------------------------------------------
// Submit / Pull / Status
// ---------------------------------------------------------------------------

func TestService_SubmitThenPull(t *testing.T) {
	s := newTestService(t)

	taskID := s.Submit(testRecord("hello"))
	if taskID == "" {
		t.Fatal("expected task id")
	}

	resp := pull(t, s, "w1")
	if resp.TaskID != taskID {
		t.Errorf("TaskID: got %q, want %q", resp.TaskID, taskID)
	}
	if resp.LogData == nil || resp.LogData.Message != "hello" {
		t.Errorf("payload should round-trip, got %+v", resp.LogData)
	}

	stats := s.Stats()
	if stats.TotalReceived != 1 {
		t.Errorf("TotalReceived: got %d, want 1", stats.TotalReceived)
	}
	if stats.QueueDepth != 0 || stats.InProgress != 1 {
		t.Errorf("depth/in_progress: got %d/%d, want 0/1", stats.QueueDepth, stats.InProgress)
	}
}

func TestService_Pull_EmptyQueue(t *testing.T) {
	s := newTestService(t)

	resp := s.Pull(core.WorkRequest{AnalyzerID: "w1"})
	if resp.HasWork {
		t.Fatal("empty queue should return has_work=false")
	}

	stats := s.Stats()
	if stats.QueueDepth != 0 || stats.InProgress != 0 || stats.TotalReceived != 0 {
		t.Errorf("pull on empty queue must not mutate state: %+v", stats)
	}
}

func TestService_Pull_FIFO(t *testing.T) {
	s := newTestService(t)

	first := s.Submit(testRecord("a"))
	second := s.Submit(testRecord("b"))

	if got := pull(t, s, "w1").TaskID; got != first {
		t.Errorf("first pull: got %q, want %q", got, first)
	}
	if got := pull(t, s, "w1").TaskID; got != second {
		t.Errorf("second pull: got %q, want %q", got, second)
	}
}

func TestService_CompleteLifecycle(t *testing.T) {
	s := newTestService(t)

	taskID := s.Submit(testRecord("hello"))
	pull(t, s, "w1")

	s.UpdateStatus(core.StatusUpdate{
		TaskID: taskID, AnalyzerID: "w1", Status: core.StateCompleted,
	})

	stats := s.Stats()
	if stats.Completed != 1 || stats.TotalCompleted != 1 {
		t.Errorf("completed: got %d/%d, want 1/1", stats.Completed, stats.TotalCompleted)
	}
	if stats.QueueDepth != 0 || stats.InProgress != 0 {
		t.Errorf("depth/in_progress: got %d/%d, want 0/0", stats.QueueDepth, stats.InProgress)
	}

	// Payload is deleted at terminal state.
	s.dataMu.Lock()
	_, exists := s.payloads[taskID]
	s.dataMu.Unlock()
	if exists {
		t.Error("payload should be deleted after completion")
	}
}

func TestService_FailedLifecycle(t *testing.T) {
	s := newTestService(t)

	taskID := s.Submit(testRecord("doomed"))
	pull(t, s, "w1")

	s.UpdateStatus(core.StatusUpdate{
		TaskID: taskID, AnalyzerID: "w1", Status: core.StateFailed, Message: "parse error",
	})

	stats := s.Stats()
	if stats.Failed != 1 || stats.TotalFailed != 1 {
		t.Errorf("failed: got %d/%d, want 1/1", stats.Failed, stats.TotalFailed)
	}
	// A worker-reported failure is terminal; it does not consume a retry.
	if stats.TotalRequeued != 0 {
		t.Errorf("TotalRequeued: got %d, want 0", stats.TotalRequeued)
	}

	s.dataMu.Lock()
	_, exists := s.payloads[taskID]
	s.dataMu.Unlock()
	if exists {
		t.Error("payload should be deleted after failure")
	}
}

func TestService_Heartbeat_AdvancesClock(t *testing.T) {
	s := newTestService(t)

	taskID := s.Submit(testRecord("hb"))
	pull(t, s, "w1")

	s.progMu.Lock()
	task := s.inProgress[taskID]
	task.LastHeartbeat = task.LastHeartbeat.Add(-time.Minute)
	old := task.LastHeartbeat
	s.progMu.Unlock()

	s.UpdateStatus(core.StatusUpdate{
		TaskID: taskID, AnalyzerID: "w1", Status: core.StateInProgress,
	})

	s.progMu.Lock()
	got := s.inProgress[taskID].LastHeartbeat
	s.progMu.Unlock()
	if !got.After(old) {
		t.Error("heartbeat should advance LastHeartbeat")
	}

	// Heartbeat has no other effect.
	stats := s.Stats()
	if stats.InProgress != 1 || stats.TotalCompleted != 0 {
		t.Errorf("heartbeat must not transition state: %+v", stats)
	}
}

func TestService_Status_UnknownTaskIgnored(t *testing.T) {
	s := newTestService(t)

	s.UpdateStatus(core.StatusUpdate{
		TaskID: "nonexistent", AnalyzerID: "w1", Status: core.StateCompleted,
	})

	stats := s.Stats()
	if stats.TotalCompleted != 0 || stats.Completed != 0 {
		t.Errorf("unknown task update must not change stats: %+v", stats)
	}
}

func TestService_Status_MismatchedAnalyzerHonored(t *testing.T) {
	s := newTestService(t)

	taskID := s.Submit(testRecord("x"))
	pull(t, s, "w1")

	// A report from a worker other than the assignee is still honored.
	s.UpdateStatus(core.StatusUpdate{
		TaskID: taskID, AnalyzerID: "w2", Status: core.StateCompleted,
	})

	if got := s.Stats().TotalCompleted; got != 1 {
		t.Errorf("TotalCompleted: got %d, want 1", got)
	}
}

func TestService_Status_TerminalWins(t *testing.T) {
	s := newTestService(t)

	taskID := s.Submit(testRecord("x"))
	pull(t, s, "w1")

	s.UpdateStatus(core.StatusUpdate{TaskID: taskID, AnalyzerID: "w1", Status: core.StateCompleted})
	// Late heartbeat after the terminal status is dropped as unknown.
	s.UpdateStatus(core.StatusUpdate{TaskID: taskID, AnalyzerID: "w1", Status: core.StateInProgress})

	stats := s.Stats()
	if stats.TotalCompleted != 1 || stats.InProgress != 0 {
		t.Errorf("terminal status must win: %+v", stats)
	}
}

// ---------------------------------------------------------------------------
// Invariants
// ---------------------------------------------------------------------------

// collectionsFor counts which collections hold the task id.
func collectionsFor(s *Service, taskID string) int {
	count := 0
	s.queueMu.Lock()
	for e := s.queue.l.Front(); e != nil; e = e.Next() {
		if e.Value.(*core.Task).ID == taskID {
			count++
		}
	}
	s.queueMu.Unlock()

	s.progMu.Lock()
	if _, ok := s.inProgress[taskID]; ok {
		count++
	}
	if _, ok := s.completed[taskID]; ok {
		count++
	}
	if _, ok := s.failed[taskID]; ok {
		count++
	}
	s.progMu.Unlock()
	return count
}

func TestService_TaskInExactlyOneCollection(t *testing.T) {
	s := newTestService(t)

	taskID := s.Submit(testRecord("inv"))
	if got := collectionsFor(s, taskID); got != 1 {
		t.Fatalf("after submit: task in %d collections, want 1", got)
	}

	pull(t, s, "w1")
	if got := collectionsFor(s, taskID); got != 1 {
		t.Fatalf("after pull: task in %d collections, want 1", got)
	}

	s.UpdateStatus(core.StatusUpdate{TaskID: taskID, AnalyzerID: "w1", Status: core.StateCompleted})
	if got := collectionsFor(s, taskID); got != 1 {
		t.Fatalf("after completion: task in %d collections, want 1", got)
	}
}

func TestService_CountersConsistent(t *testing.T) {
	s := newTestService(t)

	for i := 0; i < 10; i++ {
		s.Submit(testRecord(fmt.Sprintf("r%d", i)))
	}
	for i := 0; i < 10; i++ {
		resp := pull(t, s, "w1")
		status := core.StateCompleted
		if i%3 == 0 {
			status = core.StateFailed
		}
		s.UpdateStatus(core.StatusUpdate{TaskID: resp.TaskID, AnalyzerID: "w1", Status: status})
	}

	stats := s.Stats()
	if stats.TotalReceived != 10 {
		t.Errorf("TotalReceived: got %d, want 10", stats.TotalReceived)
	}
	if stats.TotalCompleted+stats.TotalFailed != 10 {
		t.Errorf("completed+failed: got %d, want 10", stats.TotalCompleted+stats.TotalFailed)
	}

	s.dataMu.Lock()
	remaining := len(s.payloads)
	s.dataMu.Unlock()
	if remaining != 0 {
		t.Errorf("payload store should be empty, has %d entries", remaining)
	}
}

// ---------------------------------------------------------------------------
// Metrics and reset
// ---------------------------------------------------------------------------

type fakeSource struct{ total, active int }

func (f *fakeSource) TotalAnalyzers() int  { return f.total }
func (f *fakeSource) ActiveAnalyzers() int { return f.active }

func TestService_Metrics_Backpressure(t *testing.T) {
	s := newTestService(t)
	for i := 0; i < 10; i++ {
		s.Submit(testRecord("m"))
	}

	// Without a registered source, backpressure is the raw depth.
	m := s.Metrics()
	if m.TotalAnalyzers != 0 || m.ActiveAnalyzers != 0 {
		t.Errorf("analyzer counts should be zero without a source, got %d/%d",
			m.TotalAnalyzers, m.ActiveAnalyzers)
	}
	if m.QueueBackpressure != 10 {
		t.Errorf("backpressure: got %v, want 10", m.QueueBackpressure)
	}

	s.RegisterAnalyzerSource(&fakeSource{total: 5, active: 4})
	m = s.Metrics()
	if m.TotalAnalyzers != 5 || m.ActiveAnalyzers != 4 {
		t.Errorf("analyzer counts: got %d/%d, want 5/4", m.TotalAnalyzers, m.ActiveAnalyzers)
	}
	if m.QueueBackpressure != 2.5 {
		t.Errorf("backpressure: got %v, want 2.5", m.QueueBackpressure)
	}
}

func TestService_Reset(t *testing.T) {
	s := newTestService(t)

	s.Submit(testRecord("a"))
	resp := pull(t, s, "w1")
	s.UpdateStatus(core.StatusUpdate{TaskID: resp.TaskID, AnalyzerID: "w1", Status: core.StateCompleted})
	s.Submit(testRecord("b"))

	s.Reset()

	stats := s.Stats()
	if stats.QueueDepth != 0 || stats.InProgress != 0 || stats.Completed != 0 ||
		stats.TotalReceived != 0 || stats.TotalCompleted != 0 {
		t.Errorf("reset should clear everything: %+v", stats)
	}
}
