package api

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/pulse.report/internal/config"
	"github.com/banshee-data/pulse.report/internal/db"
	"github.com/banshee-data/pulse.report/internal/framesource"
	"github.com/banshee-data/pulse.report/internal/pipeline"
	"github.com/banshee-data/pulse.report/internal/ppg"
	"github.com/banshee-data/pulse.report/internal/timeutil"
)

// newTestServer wires a synthetic source and a fresh pipeline into a Server.
func newTestServer(t *testing.T, database *db.DB, rateUnits string) (*Server, *pipeline.Controller) {
	t.Helper()
	src := framesource.NewSyntheticSource(timeutil.NewMockClock(time.Now()), 30, 75, 10, 100)
	t.Cleanup(func() { src.Close() })
	pipe := pipeline.NewController(pipeline.DefaultConfig())
	t.Cleanup(func() { pipe.Close() })
	return NewServer(src, pipe, database, config.DefaultTuningConfig(), rateUnits), pipe
}

// fillCycle feeds a full window of sine samples at 30fps so the pipeline
// completes one estimation cycle.
func fillCycle(pipe *pipeline.Controller, hz float64) {
	pipe.Start()
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	interval := time.Second / 30
	for i := 0; i < pipe.Config().BufferSize; i++ {
		pipe.Step(ppg.Sample{
			Time:  start.Add(time.Duration(i) * interval),
			Value: 100 + 10*math.Sin(2*math.Pi*hz*float64(i)/30),
		})
	}
}

func TestShowRate(t *testing.T) {
	server, pipe := newTestServer(t, nil, "bpm")
	fillCycle(pipe, 1.25) // 75 bpm

	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rate", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload struct {
		Rate    float64 `json:"rate"`
		Units   string  `json:"units"`
		FPS     float64 `json:"fps"`
		Running bool    `json:"running"`
		Cycles  uint64  `json:"cycles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode rate payload: %v", err)
	}
	if payload.Units != "bpm" {
		t.Errorf("units = %q, want bpm", payload.Units)
	}
	if math.Abs(payload.Rate-75) > 5 {
		t.Errorf("rate = %f, want about 75", payload.Rate)
	}
	if !payload.Running || payload.Cycles != 1 {
		t.Errorf("running = %v cycles = %d, want true 1", payload.Running, payload.Cycles)
	}
}

func TestShowRateConvertsUnits(t *testing.T) {
	server, pipe := newTestServer(t, nil, "hz")
	fillCycle(pipe, 1.0) // 60 bpm = 1 Hz

	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rate", nil))

	var payload struct {
		Rate  float64 `json:"rate"`
		Units string  `json:"units"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode rate payload: %v", err)
	}
	if payload.Units != "hz" {
		t.Errorf("units = %q, want hz", payload.Units)
	}
	if math.Abs(payload.Rate-1.0) > 0.1 {
		t.Errorf("rate = %f hz, want about 1.0", payload.Rate)
	}
}

func TestShowRateRejectsPost(t *testing.T) {
	server, _ := newTestServer(t, nil, "bpm")
	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/rate", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestShowWaveform(t *testing.T) {
	server, pipe := newTestServer(t, nil, "bpm")

	// before any cycle the waveform is empty, not an error
	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/waveform", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var waveform []float64
	if err := json.Unmarshal(rec.Body.Bytes(), &waveform); err != nil {
		t.Fatalf("failed to decode waveform: %v", err)
	}
	if len(waveform) != 0 {
		t.Errorf("waveform before first cycle has %d points, want 0", len(waveform))
	}

	fillCycle(pipe, 1.25)
	rec = httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/waveform", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &waveform); err != nil {
		t.Fatalf("failed to decode waveform: %v", err)
	}
	if len(waveform) != pipe.Config().BufferSize {
		t.Errorf("waveform has %d points, want %d", len(waveform), pipe.Config().BufferSize)
	}
}

func TestShowConfig(t *testing.T) {
	server, _ := newTestServer(t, nil, "bpm")
	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	var cfg map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("failed to decode config: %v", err)
	}
	if cfg["buffer_size"].(float64) != 256 {
		t.Errorf("buffer_size = %v, want 256", cfg["buffer_size"])
	}
	if cfg["min_hz"].(float64) != 0.7 || cfg["max_hz"].(float64) != 3.5 {
		t.Errorf("passband = [%v, %v], want [0.7, 3.5]", cfg["min_hz"], cfg["max_hz"])
	}
	if cfg["signal_scale"].(float64) != 50 || cfg["signal_smoothing"].(float64) != 0.7 {
		t.Errorf("view params = %v/%v, want 50/0.7", cfg["signal_scale"], cfg["signal_smoothing"])
	}
}

func TestSendCommand(t *testing.T) {
	server, _ := newTestServer(t, nil, "bpm")

	form := url.Values{"command": {"bpm=90"}}
	req := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	// synthetic source rejects unknown commands
	form = url.Values{"command": {"gain=2"}}
	req = httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	rec = httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/command", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestSessionStats(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	id, err := database.StartSession("synthetic", "")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	for _, rate := range []float64{60, 70, 80} {
		if err := database.RecordEstimate(id, rate, 30); err != nil {
			t.Fatalf("RecordEstimate failed: %v", err)
		}
	}

	server, _ := newTestServer(t, database, "bpm")
	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats?session_id="+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var stats db.SessionStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Cycles != 3 {
		t.Errorf("cycles = %d, want 3", stats.Cycles)
	}
	if stats.P50BPM != 70 {
		t.Errorf("p50 = %f, want 70", stats.P50BPM)
	}

	// missing session_id
	rec = httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSessionStatsWithoutDatabase(t *testing.T) {
	server, _ := newTestServer(t, nil, "bpm")
	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats?session_id=x", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListSessions(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	if _, err := database.StartSession("serial", ""); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	server, _ := newTestServer(t, database, "bpm")
	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var sessions []db.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("failed to decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Source != "serial" {
		t.Errorf("unexpected sessions %+v", sessions)
	}

	rec = httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions?limit=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWaveformPNG(t *testing.T) {
	server, pipe := newTestServer(t, nil, "bpm")

	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/waveform.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status before first cycle = %d, want 404", rec.Code)
	}

	fillCycle(pipe, 1.25)
	rec = httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/waveform.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty PNG body")
	}
}

func TestWaveformChart(t *testing.T) {
	server, pipe := newTestServer(t, nil, "bpm")

	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/waveform-chart", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status before first cycle = %d, want 404", rec.Code)
	}

	fillCycle(pipe, 1.25)
	rec = httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/waveform-chart", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("chart body should reference echarts")
	}
}

func TestStreamCycles(t *testing.T) {
	server, pipe := newTestServer(t, nil, "bpm")
	ts := httptest.NewServer(server.ServeMux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	// give the handler a moment to subscribe before the cycle completes
	time.Sleep(50 * time.Millisecond)
	go fillCycle(pipe, 1.25)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before an event arrived: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var result pipeline.CycleResult
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &result); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		if math.Abs(result.HeartRateBPM-75) > 5 {
			t.Errorf("streamed rate = %f, want about 75", result.HeartRateBPM)
		}
		if len(result.Waveform) != pipe.Config().BufferSize {
			t.Errorf("streamed waveform has %d points, want %d", len(result.Waveform), pipe.Config().BufferSize)
		}
		return
	}
}
