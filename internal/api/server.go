// Package api exposes the interactive scoring flow over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Jihanvall/rfm-app/internal/pipeline"
	"github.com/Jihanvall/rfm-app/internal/rfm"
	"github.com/Jihanvall/rfm-app/internal/tabular"
)

// Config configures the HTTP surface.
type Config struct {
	MaxUploadBytes int64
	RateLimit      rate.Limit // requests per second across all clients
	RateBurst      int
	CORSOrigins    []string
	WhaleThreshold float64

	// Ingest controls upload decoding; Run is the template for pipeline
	// runs (model name, strictness, k-means parameters).
	Ingest tabular.Options
	Run    pipeline.Options
}

// Server serves score, train and whale requests against one pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	cfg      Config
}

// New creates a Server.
func New(p *pipeline.Pipeline, cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.WhaleThreshold <= 0 {
		cfg.WhaleThreshold = rfm.DefaultWhaleThreshold
	}
	return &Server{pipeline: p, cfg: cfg}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(rate.NewLimiter(s.cfg.RateLimit, s.cfg.RateBurst)))
		r.Post("/score", s.handleScore)
		r.Post("/train", s.handleTrain)
		r.Post("/whales", s.handleWhales)
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func rateLimit(lim *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				w.Header().Set("Retry-After", "1")
				respondJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

// statusFor maps a pipeline or decode error to an HTTP status.
func statusFor(err error) int {
	var (
		schema      *rfm.SchemaError
		quality     *rfm.DataQualityError
		parse       *tabular.ParseError
		unavailable *pipeline.ModelUnavailableError
		tooLarge    *http.MaxBytesError
		request     *requestError
	)
	switch {
	case errors.As(err, &request):
		return http.StatusBadRequest
	case errors.As(err, &schema), errors.As(err, &quality), errors.As(err, &parse):
		return http.StatusUnprocessableEntity
	case errors.As(err, &unavailable), errors.Is(err, pipeline.ErrFitInProgress):
		return http.StatusConflict
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// StageParse labels upload decoding failures, which happen before the
// pipeline starts.
const StageParse = "parse"

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Stage: pipeline.StageOf(err)}

	var parse *tabular.ParseError
	if body.Stage == "" && errors.As(err, &parse) {
		body.Stage = StageParse
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("stage", body.Stage),
			zap.Error(err),
		)
		body.Error = "internal error"
	}
	respondJSON(w, status, body)
}
