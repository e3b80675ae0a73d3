package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(GetClientFromContext(r.Context())))
})

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"analyst": "k-1", "batch": "k-2"})(okHandler)

	tests := []struct {
		name   string
		path   string
		header string
		value  string
		code   int
		body   string
	}{
		{"bearer", "/v1/analyses", "Authorization", "Bearer k-2", http.StatusOK, "batch"},
		{"raw key", "/v1/analyses", "Authorization", "k-1", http.StatusOK, "analyst"},
		{"x-api-key", "/v1/analyses", "X-API-Key", "k-1", http.StatusOK, "analyst"},
		{"missing", "/v1/analyses", "", "", http.StatusUnauthorized, "missing Authorization header\n"},
		{"wrong", "/v1/analyses", "Authorization", "Bearer nope", http.StatusUnauthorized, "invalid API key\n"},
		{"health is public", "/health", "", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(2, 1)
	now := tb.lastRefill

	assert.True(t, tb.allowAt(now))
	assert.True(t, tb.allowAt(now))
	assert.False(t, tb.allowAt(now.Add(500*time.Millisecond)))
	assert.True(t, tb.allowAt(now.Add(1100*time.Millisecond)))
	// refill never exceeds capacity
	assert.True(t, tb.allowAt(now.Add(time.Hour)))
	assert.True(t, tb.allowAt(now.Add(time.Hour)))
	assert.False(t, tb.allowAt(now.Add(time.Hour)))
}

func TestRateLimitMiddlewarePerClientIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := NewRateLimiter(ctx, 1, 1)
	h := RateLimitMiddleware(limiter)(okHandler)

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyses", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1111"))
	// same IP, different port shares the bucket
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:2222"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1111"))

	limiter.evictIdle(time.Now().Add(time.Hour), 10*time.Minute)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1111"))
}

func TestRecorderCountsAnalyses(t *testing.T) {
	m := NewRecorder()
	m.AnalysisStarted()
	m.AnalysisStarted()
	m.AnalysisFinished(true)
	m.StageFailed(domain.StageScore)
	m.StageFailed(domain.StageScore)
	m.StageFailed(domain.StageEnrich)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap["analyses_total"])
	assert.EqualValues(t, 1, snap["analyses_running"])
	assert.EqualValues(t, 1, snap["analyses_valid"])
	assert.Equal(t, map[string]uint64{"enrich": 1, "classify": 0, "score": 2}, snap["stage_failures"])
}

func TestRecorderMiddlewareAndHandler(t *testing.T) {
	m := NewRecorder()
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	m.Middleware(okHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	m.Middleware(failing).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	m.Handler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["requests_total"])
	assert.EqualValues(t, 1, body["requests_success"])
	assert.EqualValues(t, 1, body["requests_failed"])
	assert.EqualValues(t, 0, body["requests_in_progress"])
}

type checkerFunc func(context.Context) error

func (f checkerFunc) Check(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	down := checkerFunc(func(context.Context) error { return errors.New("bucket missing") })

	rec := httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"database": ok, "storage": ok})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"database": ok, "storage": down})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var hs HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hs))
	assert.Equal(t, "unhealthy", hs.Status)
	assert.Equal(t, CheckStatus{Status: "unhealthy", Message: "bucket missing"}, hs.Checks["storage"])
	assert.Equal(t, "healthy", hs.Checks["database"].Status)
}

func TestReadinessFollowsFlag(t *testing.T) {
	var ready atomic.Bool
	h := ReadinessHandler(&ready)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready.Store(true)
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)
}

func TestLoggingWritesAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := middleware.RequestID(Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/analyses/x", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.EqualValues(t, 404, fields["status"])
	assert.EqualValues(t, 4, fields["bytes"])
	assert.Equal(t, "/v1/analyses/x", fields["path"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestValidators(t *testing.T) {
	for _, ok := range []string{"8708", "8708.30", "870830", "8708.30.10", "8708.30.10.00"} {
		assert.NoError(t, ValidateHSCode(ok), ok)
	}
	for _, bad := range []string{"", "87", "8708.3", "abcd", "8708.30; DROP", "8708.30.10.00.11"} {
		assert.Error(t, ValidateHSCode(bad), bad)
	}

	assert.NoError(t, ValidateDescription("Brake systems"))
	assert.Error(t, ValidateDescription(strings.Repeat("x", maxDescriptionLen+1)))

	assert.NoError(t, ValidateAnalysisID("3f2a9c1e-7b7d-4c55-9a3e-0d8f5a7b1c22"))
	assert.Error(t, ValidateAnalysisID("../etc"))

	assert.Error(t, ValidateBatchSize(0, 10))
	assert.Error(t, ValidateBatchSize(11, 10))
	assert.NoError(t, ValidateBatchSize(10, 10))

	assert.Equal(t, "Brake systems", SanitizeString(" Brake\x00 systems\x07 "))
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(1000))
	assert.Equal(t, 1, ValidatePage(-3))
}
