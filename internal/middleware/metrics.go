package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

// Recorder stores application metrics. It satisfies analyses.Metrics.
type Recorder struct {
	requestsTotal      atomic.Uint64
	requestsInProgress atomic.Int64
	requestsSuccess    atomic.Uint64
	requestsFailed     atomic.Uint64

	analysesTotal   atomic.Uint64
	analysesRunning atomic.Int64
	analysesValid   atomic.Uint64
	analysesInvalid atomic.Uint64

	enrichFailures   atomic.Uint64
	classifyFailures atomic.Uint64
	scoreFailures    atomic.Uint64

	startTime time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{startTime: time.Now()}
}

func (m *Recorder) AnalysisStarted() {
	m.analysesTotal.Add(1)
	m.analysesRunning.Add(1)
}

func (m *Recorder) AnalysisFinished(valid bool) {
	m.analysesRunning.Add(-1)
	if valid {
		m.analysesValid.Add(1)
	} else {
		m.analysesInvalid.Add(1)
	}
}

// StageFailed counts one failed attempt (or skip) of a stage
func (m *Recorder) StageFailed(stage domain.Stage) {
	switch stage {
	case domain.StageEnrich:
		m.enrichFailures.Add(1)
	case domain.StageClassify:
		m.classifyFailures.Add(1)
	case domain.StageScore:
		m.scoreFailures.Add(1)
	}
}

// Snapshot returns current metrics
func (m *Recorder) Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"requests_total":       m.requestsTotal.Load(),
		"requests_in_progress": m.requestsInProgress.Load(),
		"requests_success":     m.requestsSuccess.Load(),
		"requests_failed":      m.requestsFailed.Load(),
		"analyses_total":       m.analysesTotal.Load(),
		"analyses_running":     m.analysesRunning.Load(),
		"analyses_valid":       m.analysesValid.Load(),
		"analyses_invalid":     m.analysesInvalid.Load(),
		"stage_failures": map[string]uint64{
			string(domain.StageEnrich):   m.enrichFailures.Load(),
			string(domain.StageClassify): m.classifyFailures.Load(),
			string(domain.StageScore):    m.scoreFailures.Load(),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsTotal.Add(1)
		m.requestsInProgress.Add(1)
		defer m.requestsInProgress.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.requestsSuccess.Add(1)
		} else {
			m.requestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Recorder) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
