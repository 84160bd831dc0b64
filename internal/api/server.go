// Package api exposes the estimation pipeline over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pulse.report/internal/config"
	"github.com/banshee-data/pulse.report/internal/db"
	"github.com/banshee-data/pulse.report/internal/framesource"
	"github.com/banshee-data/pulse.report/internal/pipeline"
	"github.com/banshee-data/pulse.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	src   framesource.SampleSource
	pipe  *pipeline.Controller
	db    *db.DB
	cfg   *config.TuningConfig
	units string
}

// NewServer builds an API server over a sample source and its pipeline.
// db may be nil when running without persistence; the history endpoints
// then report 404.
func NewServer(src framesource.SampleSource, pipe *pipeline.Controller, database *db.DB, cfg *config.TuningConfig, rateUnits string) *Server {
	if cfg == nil {
		cfg = config.DefaultTuningConfig()
	}
	if !units.IsValid(rateUnits) {
		rateUnits = units.BPM
	}
	return &Server{
		src:   src,
		pipe:  pipe,
		db:    database,
		cfg:   cfg,
		units: rateUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.streamCycles)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/rate", s.showRate)
	mux.HandleFunc("/api/waveform", s.showWaveform)
	mux.HandleFunc("/api/waveform.png", s.renderWaveformPNG)
	mux.HandleFunc("/api/stats", s.showSessionStats)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/debug/waveform-chart", s.showWaveformChart)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")

	if err := s.src.SendCommand(command); err != nil {
		http.Error(w, fmt.Sprintf("Failed to send command: %v", err), http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showRate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	payload := map[string]interface{}{
		"rate":    units.ConvertRate(s.pipe.Rate(), s.units),
		"units":   s.units,
		"fps":     s.pipe.FPS(),
		"running": s.pipe.Running(),
		"cycles":  s.pipe.Cycles(),
	}

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write rate")
		return
	}
}

func (s *Server) showWaveform(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	waveform := s.pipe.Waveform()
	if waveform == nil {
		waveform = []float64{}
	}
	if err := json.NewEncoder(w).Encode(waveform); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write waveform")
		return
	}
}

func (s *Server) showSessionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "No database configured")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'session_id' parameter")
		return
	}

	stats, err := s.db.Stats(sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve session stats: %v", err))
		return
	}

	// Apply unit conversion to all rate values
	stats.P50BPM = units.ConvertRate(stats.P50BPM, s.units)
	stats.P85BPM = units.ConvertRate(stats.P85BPM, s.units)
	stats.P98BPM = units.ConvertRate(stats.P98BPM, s.units)

	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write session stats")
		return
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "No database configured")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := s.db.Sessions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}

	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write sessions")
		return
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := map[string]interface{}{
		"units":            s.units,
		"buffer_size":      s.cfg.GetBufferSize(),
		"smoothing_window": s.cfg.GetSmoothingWindow(),
		"target_fps":       s.cfg.GetTargetFPS(),
		"min_hz":           s.cfg.GetMinHz(),
		"max_hz":           s.cfg.GetMaxHz(),
		"roi_width":        s.cfg.GetROIWidth(),
		"roi_height":       s.cfg.GetROIHeight(),
		"signal_scale":     s.cfg.GetSignalScale(),
		"signal_smoothing": s.cfg.GetSignalSmoothing(),
	}

	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}

// streamCycles pushes each completed estimation cycle to the client as a
// server-sent event. One event per window fill; slow clients miss cycles
// rather than stalling the pipeline.
func (s *Server) streamCycles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	id, cycles := s.pipe.Subscribe()
	defer s.pipe.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case result, ok := <-cycles:
			if !ok {
				return
			}
			result.HeartRateBPM = units.ConvertRate(result.HeartRateBPM, s.units)
			data, err := json.Marshal(result)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
