package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AnimatorJoe/distributor/internal/core"
	"github.com/AnimatorJoe/distributor/internal/distributor"
)

func newTestServer(t *testing.T) (*httptest.Server, *distributor.Service) {
	t.Helper()
	service := distributor.NewService(distributor.Options{
		TaskTimeout:     time.Second,
		MonitorInterval: 100 * time.Millisecond,
	})
	ts := httptest.NewServer(New("", service).Handler())
	t.Cleanup(ts.Close)
	return ts, service
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

// ---------------------------------------------------------------------------
// Round trip
// ---------------------------------------------------------------------------

func TestAPI_SingleRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	// Submit
	resp, body := postJSON(t, ts.URL+"/submit", map[string]any{
		"level":    "INFO",
		"message":  "hello",
		"source":   "s1",
		"metadata": map[string]any{},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status: %d", resp.StatusCode)
	}
	if body["status"] != "accepted" {
		t.Errorf("submit response: %+v", body)
	}
	taskID, _ := body["task_id"].(string)
	if taskID == "" {
		t.Fatal("expected task_id")
	}

	// Pull
	resp, body = postJSON(t, ts.URL+"/get_work", map[string]any{
		"analyzer_id":   "w",
		"weight":        0.1,
		"current_tasks": 0,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get_work status: %d", resp.StatusCode)
	}
	if body["has_work"] != true {
		t.Fatalf("expected work: %+v", body)
	}
	if body["task_id"] != taskID {
		t.Errorf("task_id: got %v, want %s", body["task_id"], taskID)
	}
	logData, _ := body["log_data"].(map[string]any)
	if logData["message"] != "hello" {
		t.Errorf("log_data.message: got %v, want hello", logData["message"])
	}

	// Complete
	resp, body = postJSON(t, ts.URL+"/status", map[string]any{
		"task_id":     taskID,
		"analyzer_id": "w",
		"status":      "completed",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status status: %d", resp.StatusCode)
	}
	if body["status"] != "acknowledged" {
		t.Errorf("status response: %+v", body)
	}

	// Final stats
	_, stats := getJSON(t, ts.URL+"/stats")
	if stats["total_received"] != float64(1) || stats["total_completed"] != float64(1) {
		t.Errorf("stats: %+v", stats)
	}
	if stats["queue_depth"] != float64(0) || stats["in_progress"] != float64(0) {
		t.Errorf("stats: %+v", stats)
	}
}

func TestAPI_PayloadRoundTripsByteEqual(t *testing.T) {
	ts, _ := newTestServer(t)

	submitted := core.LogRecord{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Level:     core.LevelError,
		Message:   "disk full on /var",
		Source:    "node-7",
		Metadata:  map[string]any{"disk": "sdb1", "free_bytes": float64(0)},
	}
	postJSON(t, ts.URL+"/submit", submitted)

	_, body := postJSON(t, ts.URL+"/get_work", map[string]any{"analyzer_id": "w", "weight": 0.1})
	raw, err := json.Marshal(body["log_data"])
	if err != nil {
		t.Fatalf("marshal log_data: %v", err)
	}
	var got core.LogRecord
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal log_data: %v", err)
	}

	want, _ := json.Marshal(submitted)
	have, _ := json.Marshal(got)
	if !bytes.Equal(want, have) {
		t.Errorf("payload mismatch:\nsubmitted %s\nreturned  %s", want, have)
	}
}

// ---------------------------------------------------------------------------
// Error surface
// ---------------------------------------------------------------------------

func TestAPI_Submit_MalformedBody(t *testing.T) {
	ts, service := newTestServer(t)

	resp, err := http.Post(ts.URL+"/submit", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	if service.Stats().TotalReceived != 0 {
		t.Error("malformed submit must not change state")
	}
}

func TestAPI_Submit_InvalidLevel(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := postJSON(t, ts.URL+"/submit", map[string]any{
		"level":   "SHOUTING",
		"message": "m",
		"source":  "s",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestAPI_Status_UnknownTaskIs200(t *testing.T) {
	ts, service := newTestServer(t)

	resp, body := postJSON(t, ts.URL+"/status", map[string]any{
		"task_id":     "nonexistent",
		"analyzer_id": "w",
		"status":      "completed",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if body["status"] != "acknowledged" {
		t.Errorf("response: %+v", body)
	}

	stats := service.Stats()
	if stats.TotalCompleted != 0 || stats.TotalReceived != 0 {
		t.Errorf("stats must be unchanged: %+v", stats)
	}
}

func TestAPI_NotReadyReturns503(t *testing.T) {
	ts := httptest.NewServer(New("", nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// Operational endpoints
// ---------------------------------------------------------------------------

func TestAPI_Health(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := getJSON(t, ts.URL+"/health")
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health: %d %+v", resp.StatusCode, body)
	}
}

func TestAPI_Root_Identity(t *testing.T) {
	ts, _ := newTestServer(t)
	_, body := getJSON(t, ts.URL+"/")
	if body["service"] != "Log Distributor" {
		t.Errorf("root: %+v", body)
	}
	if body["architecture"] != "pull-based-work-queue" {
		t.Errorf("root: %+v", body)
	}
}

func TestAPI_Metrics(t *testing.T) {
	ts, service := newTestServer(t)
	for i := 0; i < 3; i++ {
		service.Submit(&core.LogRecord{Level: core.LevelInfo, Message: "m", Source: "s"})
	}

	_, body := getJSON(t, ts.URL+"/metrics")
	if body["queue_depth"] != float64(3) {
		t.Errorf("queue_depth: got %v, want 3", body["queue_depth"])
	}
	if body["queue_backpressure"] != float64(3) {
		t.Errorf("queue_backpressure: got %v, want 3", body["queue_backpressure"])
	}
}

func TestAPI_Reset(t *testing.T) {
	ts, service := newTestServer(t)
	service.Submit(&core.LogRecord{Level: core.LevelInfo, Message: "m", Source: "s"})

	resp, _ := postJSON(t, ts.URL+"/reset", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status: %d", resp.StatusCode)
	}
	if got := service.Stats().TotalReceived; got != 0 {
		t.Errorf("TotalReceived after reset: got %d, want 0", got)
	}
}
