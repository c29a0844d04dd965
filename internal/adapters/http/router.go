package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/content-analyzer/internal/config"
	"github.com/kirillkom/content-analyzer/internal/core/domain"
	"github.com/kirillkom/content-analyzer/internal/core/ports"
	"github.com/kirillkom/content-analyzer/internal/observability/metrics"
)

const (
	serviceName           = "api"
	defaultMaxUploadBytes = 20 << 20
)

type Router struct {
	submitter ports.JobSubmitter
	reader    ports.JobReader
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger

	apiKey               string
	maxUploadBytes       int64
	rateLimitRPS         float64
	rateLimitBurst       int
	backpressureInFlight int
	backpressureWait     time.Duration
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(
	cfg config.Config,
	submitter ports.JobSubmitter,
	reader ports.JobReader,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		submitter:            submitter,
		reader:               reader,
		logger:               slog.Default(),
		apiKey:               cfg.APIKey,
		maxUploadBytes:       cfg.MaxUploadBytes,
		rateLimitRPS:         cfg.APIRateLimitRPS,
		rateLimitBurst:       cfg.APIRateLimitBurst,
		backpressureInFlight: cfg.APIBackpressureMaxInFlight,
		backpressureWait:     cfg.APIBackpressureWait,
	}
	if rt.maxUploadBytes <= 0 {
		rt.maxUploadBytes = defaultMaxUploadBytes
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	upload := rt.uploadGate(http.HandlerFunc(rt.uploadDocument))

	api := http.NewServeMux()
	api.Handle("POST /upload", upload)
	api.Handle("POST /api/upload", upload)
	api.HandleFunc("GET /job/{jobId}", rt.getJob)
	api.HandleFunc("GET /api/job/{jobId}", rt.getJob)
	guarded := rt.authMiddleware(api)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

// uploadGate applies backpressure and the rate limit to uploads only, so polling
// does not spend the upload budget. Both upload paths share one limiter.
func (rt *Router) uploadGate(next http.Handler) http.Handler {
	if rt.backpressureInFlight > 0 {
		next = backpressureMiddleware(next, rt.backpressureInFlight, rt.backpressureWait, func() { rt.recordRejected("backpressure") })
	}
	if rt.rateLimitRPS > 0 {
		next = rateLimitMiddleware(next, rt.rateLimitRPS, rt.rateLimitBurst, func() { rt.recordRejected("rate_limit") })
	}
	return next
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("jobId"))
	if id == "" {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "get job", errors.New("job id is required")))
		return
	}

	noteJobID(r.Context(), id)
	job, err := rt.reader.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
