// Package api exposes stored validation results over HTTP. All endpoints
// are read-only: the browser surface never mutates the results database.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openadas/stk/internal/monitoring"
	"github.com/openadas/stk/internal/plotting"
	"github.com/openadas/stk/internal/val"
	"github.com/openadas/stk/internal/valdb"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db *valdb.DB
}

func NewServer(db *valdb.DB) *Server {
	return &Server{db: db}
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
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the JSON endpoints, intended to be mounted under /api.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/runs", s.listRuns)
	mux.HandleFunc("/run", s.showRun)
	return mux
}

// ChartsMux returns the HTML chart pages, intended to be mounted under
// /charts.
func (s *Server) ChartsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/cases", s.chartCases)
	mux.HandleFunc("/results", s.chartResults)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	runs, err := s.db.ListTestRuns(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list test runs: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write run list")
		return
	}
}

// runParam reads the mandatory id query parameter. A zero return means the
// error response has already been written.
func (s *Server) runParam(w http.ResponseWriter, r *http.Request) int64 {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id < 1 {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'id' parameter")
		return 0
	}
	return id
}

func parseLevel(s string) (val.LoadLevel, error) {
	switch s {
	case "", "full":
		return val.LevelFull, nil
	case "basic":
		return val.LevelBasic, nil
	case "info":
		return val.LevelBasic | val.LevelInfo, nil
	}
	return 0, fmt.Errorf("unknown load level %q", s)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := s.runParam(w, r)
	if id == 0 {
		return
	}

	level, err := parseLevel(r.URL.Query().Get("level"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'level' parameter")
		return
	}

	run, err := s.db.LoadTestRun(r.Context(), id, level)
	if errors.Is(err, valdb.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("No test run %d", id))
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to load test run: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(run); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write run")
		return
	}
}

// chartCases renders processed time and distance per test case as a line
// chart. Case order follows storage order, which is submission order.
func (s *Server) chartCases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := s.runParam(w, r)
	if id == 0 {
		return
	}

	run, err := s.db.LoadTestRun(r.Context(), id, val.LevelBasic|val.LevelInfo)
	if errors.Is(err, valdb.ErrNotFound) {
		http.Error(w, fmt.Sprintf("No test run %d", id), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load test run: %v", err), http.StatusInternalServerError)
		return
	}

	times := plotting.Series{Name: "processed time [s]"}
	dists := plotting.Series{Name: "processed distance [m]"}
	for i, c := range run.Cases {
		times.X = append(times.X, float64(i+1))
		times.Y = append(times.Y, c.ProcessedTime)
		dists.X = append(dists.X, float64(i+1))
		dists.Y = append(dists.Y, c.ProcessedDistance)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	title := fmt.Sprintf("%s: processed per case", run.Name)
	if err := plotting.WriteLineHTML(w, title, times, dists); err != nil {
		monitoring.Logf("failed to render case chart: %v", err)
	}
}

// chartResults renders every measurement result of a run as a scatter, one
// series per result name, X being case order.
func (s *Server) chartResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := s.runParam(w, r)
	if id == 0 {
		return
	}

	run, err := s.db.LoadTestRun(r.Context(), id, val.LevelBasic|val.LevelInfo)
	if errors.Is(err, valdb.ErrNotFound) {
		http.Error(w, fmt.Sprintf("No test run %d", id), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load test run: %v", err), http.StatusInternalServerError)
		return
	}

	byName := make(map[string]*plotting.Series)
	var order []string
	for i, c := range run.Cases {
		for _, res := range c.Results {
			series, ok := byName[res.Name]
			if !ok {
				series = &plotting.Series{Name: res.Name}
				byName[res.Name] = series
				order = append(order, res.Name)
			}
			series.X = append(series.X, float64(i+1))
			series.Y = append(series.Y, res.Value)
		}
	}

	if len(order) == 0 {
		http.Error(w, fmt.Sprintf("Test run %d has no measurement results", id), http.StatusNotFound)
		return
	}
	series := make([]plotting.Series, len(order))
	for i, name := range order {
		series[i] = *byName[name]
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	title := fmt.Sprintf("%s: measurement results", run.Name)
	if err := plotting.WriteScatterHTML(w, title, series...); err != nil {
		monitoring.Logf("failed to render result chart: %v", err)
	}
}
