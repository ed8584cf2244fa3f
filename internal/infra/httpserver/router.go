package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalysis "github.com/focusmon/screenwatch/internal/application/analysis"
	"github.com/focusmon/screenwatch/internal/domain/jobs"
	domain "github.com/focusmon/screenwatch/internal/domain/screenshots"
	"github.com/focusmon/screenwatch/internal/domain/vision"
	"github.com/focusmon/screenwatch/internal/middleware"
)

type Router struct {
	svc *appanalysis.Service
}

// Options carries the HTTP-layer knobs wired from config.
type Options struct {
	RateLimitCapacity int
	RateLimitRefill   int
	HealthCheckers    map[string]middleware.HealthChecker
}

func NewRouter(svc *appanalysis.Service, opts Options) http.Handler {
	r := &Router{svc: svc}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if opts.RateLimitCapacity > 0 {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimitCapacity, opts.RateLimitRefill))
	}

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/analysis", func(rt chi.Router) {
		rt.Get("/screenshots/{id}", r.wrap(r.handleGetScreenshot))
		rt.Post("/screenshots/{id}/queue", r.wrap(r.handleEnqueue))
		rt.Post("/screenshots/{id}/reprocess", r.wrap(r.handleReprocess))
		rt.Get("/queue/stats", r.wrap(r.handleQueueStats))
		rt.Post("/queue/jobs/{jobID}/retry", r.wrap(r.handleRetryJob))
		rt.Post("/batch", r.wrap(r.handleBatch))
		rt.Get("/ai/health", r.wrap(r.handleAIHealth))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound),
				errors.Is(err, jobs.ErrJobNotFound),
				errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, appanalysis.ErrAlreadyProcessing):
				http.Error(w, "screenshot already processing", http.StatusConflict)
			case errors.Is(err, appanalysis.ErrAlreadyQueued):
				http.Error(w, "screenshot already queued", http.StatusConflict)
			case errors.Is(err, jobs.ErrQueueUnavailable):
				http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
			case errors.Is(err, vision.ErrQuotaExceeded):
				http.Error(w, "vision quota exceeded", http.StatusTooManyRequests)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// GET /v1/analysis/screenshots/{id}
func (r *Router) handleGetScreenshot(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")

	s, err := r.svc.Get(req.Context(), domain.ScreenshotID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, s)
}

// POST /v1/analysis/screenshots/{id}/queue
func (r *Router) handleEnqueue(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")

	res, err := r.svc.EnqueueForAnalysis(req.Context(), domain.ScreenshotID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]any{
		"success": true,
		"job_id":  res.JobID,
	})
}

// POST /v1/analysis/screenshots/{id}/reprocess
func (r *Router) handleReprocess(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")

	res, err := r.svc.Reprocess(req.Context(), domain.ScreenshotID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]any{
		"success": true,
		"job_id":  res.JobID,
		"message": "screenshot queued for reprocessing",
	})
}

// GET /v1/analysis/queue/stats
func (r *Router) handleQueueStats(w http.ResponseWriter, req *http.Request) error {
	stats, err := r.svc.QueueStats(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, stats)
}

// POST /v1/analysis/queue/jobs/{jobID}/retry
func (r *Router) handleRetryJob(w http.ResponseWriter, req *http.Request) error {
	jobID := chi.URLParam(req, "jobID")

	if err := r.svc.RetryJob(req.Context(), jobID); err != nil {
		return err
	}
	return writeJSON(w, map[string]any{
		"success": true,
		"job_id":  jobID,
	})
}

// POST /v1/analysis/batch
// Body: {"limit": 10}
func (r *Router) handleBatch(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Limit int `json:"limit"`
	}
	if req.Body != nil {
		// empty body is fine, the default limit applies
		_ = json.NewDecoder(req.Body).Decode(&body)
	}
	if body.Limit <= 0 {
		body.Limit = 10
	}

	res, err := r.svc.SweepPending(req.Context(), body.Limit)
	if err != nil {
		return err
	}
	return writeJSON(w, res)
}

// GET /v1/analysis/ai/health
func (r *Router) handleAIHealth(w http.ResponseWriter, req *http.Request) error {
	res := r.svc.CheckHealth(req.Context())
	w.Header().Set("Content-Type", "application/json")
	if !res.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	return json.NewEncoder(w).Encode(res)
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}
