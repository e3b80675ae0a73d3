package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bryanwahyu/hs-analyzer/internal/application/analyses"
	domai "github.com/bryanwahyu/hs-analyzer/internal/domain/ai"
	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/hs-analyzer/internal/middleware"
)

// Options carries the optional cross-cutting pieces; nil fields switch the feature off.
type Options struct {
	Metrics      *middleware.Recorder
	Checkers     map[string]middleware.HealthChecker
	Ready        *atomic.Bool
	APIKeys      map[string]string
	RateLimiter  *middleware.RateLimiter
	CORSOrigins  []string
	MaxBatchSize int
	Log          *zap.Logger
}

type Router struct {
	svc          *analyses.Service
	maxBatchSize int
	log          *zap.Logger
}

func NewRouter(svc *analyses.Service, opts Options) http.Handler {
	r := &Router{svc: svc, maxBatchSize: opts.MaxBatchSize, log: opts.Log}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.maxBatchSize <= 0 {
		r.maxBatchSize = 50
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = middleware.NewRecorder()
	}
	ready := opts.Ready
	if ready == nil {
		ready = &atomic.Bool{}
		ready.Store(true)
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	mux.Use(middleware.Logging(r.log))
	mux.Use(metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))
	if len(opts.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	}
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler(ready))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", metrics.Handler)

	mux.Route("/v1/analyses", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleAnalyze))
		rt.Get("/", r.wrap(r.handleList))
		rt.Post("/batch", r.wrap(r.handleBatch))
		rt.Get("/{id}", r.wrap(r.handleGet))
		rt.Get("/{id}/result", r.wrap(r.handleResult))
		rt.Get("/{id}/failures", r.wrap(r.handleFailures))
	})

	return mux
}

// badRequest marks input errors raised by the handlers themselves
type badRequest struct{ error }

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var br badRequest
		switch {
		case errors.As(err, &br), errors.Is(err, domain.ErrInvalidRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, sql.ErrNoRows):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, domai.ErrQuotaExceeded):
			http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
		default:
			r.log.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

type analyzeBody struct {
	Identifier  string `json:"identifier"`
	Description string `json:"description"`
	MaxRetries  *int   `json:"max_retries,omitempty"`
}

func (b analyzeBody) command() (analyses.AnalyzeCommand, error) {
	cmd := analyses.AnalyzeCommand{
		Identifier:  middleware.SanitizeString(b.Identifier),
		Description: middleware.SanitizeString(b.Description),
		MaxRetries:  b.MaxRetries,
	}
	if err := middleware.ValidateHSCode(cmd.Identifier); err != nil {
		return cmd, badRequest{err}
	}
	if err := middleware.ValidateDescription(cmd.Description); err != nil {
		return cmd, badRequest{err}
	}
	if cmd.MaxRetries != nil && (*cmd.MaxRetries < 0 || *cmd.MaxRetries > 10) {
		return cmd, badRequest{errors.New("max_retries must be between 0 and 10")}
	}
	return cmd, nil
}

// POST /v1/analyses
// Body: {"identifier": "8708.30", "description": "Brake systems"}
// Runs the pipeline synchronously and returns the full result.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var body analyzeBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest{err}
	}
	cmd, err := body.command()
	if err != nil {
		return err
	}

	res, err := r.svc.Analyze(req.Context(), cmd)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// POST /v1/analyses/batch
// Body: {"items": [{"identifier": "..."}, ...]}
func (r *Router) handleBatch(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Items []analyzeBody `json:"items"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest{err}
	}
	if err := middleware.ValidateBatchSize(len(body.Items), r.maxBatchSize); err != nil {
		return badRequest{err}
	}
	cmds := make([]analyses.AnalyzeCommand, 0, len(body.Items))
	for i, it := range body.Items {
		cmd, err := it.command()
		if err != nil {
			return badRequest{errors.New("items[" + strconv.Itoa(i) + "]: " + err.Error())}
		}
		cmds = append(cmds, cmd)
	}

	started := time.Now()
	items := r.svc.AnalyzeBatch(req.Context(), cmds)
	return writeJSON(w, http.StatusOK, map[string]any{
		"items":           items,
		"count":           len(items),
		"processing_time": time.Since(started).Seconds(),
	})
}

// GET /v1/analyses?page=&page_size=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.svc.List(req.Context(), middleware.ValidatePage(page), middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	rec, err := r.svc.Get(req.Context(), id)
	if err != nil {
		return err
	}
	out := *rec
	out.ResultJSON = ""
	return writeJSON(w, http.StatusOK, out)
}

// GET /v1/analyses/{id}/result
func (r *Router) handleResult(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	res, err := r.svc.GetResult(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// GET /v1/analyses/{id}/failures?limit=20
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.svc.StageFailures(req.Context(), id, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.StageFailure{}
	}
	return writeJSON(w, http.StatusOK, list)
}

func analysisID(req *http.Request) (domain.AnalysisID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return "", badRequest{err}
	}
	return domain.AnalysisID(id), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
