// Package api serves churn predictions over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"churn-service/internal/features"
	"churn-service/internal/inference"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Predictor is the part of inference.Service the API depends on.
type Predictor interface {
	Infer(ctx context.Context, raw features.RawRecord) (inference.Result, error)
	InferBatch(ctx context.Context, raws []features.RawRecord) ([]inference.Result, error)
	Info() inference.ModelInfo
}

// RequestObserver records finished HTTP requests.
type RequestObserver interface {
	ObserveRequest(server, route string, code int, d time.Duration)
}

// Options configure the API server.
type Options struct {
	Port           int
	RequestTimeout time.Duration
	MaxBatchSize   int
	Observer       RequestObserver
}

// Server provides the HTTP API for churn predictions
type Server struct {
	predictor Predictor
	opts      Options
	server    *http.Server
}

// NewServer creates a new HTTP server for model serving
func NewServer(predictor Predictor, opts Options) *Server {
	s := &Server{predictor: predictor, opts: opts}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.Router(),
		ReadTimeout:  opts.RequestTimeout,
		WriteTimeout: opts.RequestTimeout + time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Router builds the route table. It is exported for tests and embedding.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
	}
	if s.opts.Observer != nil {
		r.Use(observe("api", s.opts.Observer))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/model/info", s.handleModelInfo)
	r.Post("/predict", s.handlePredict)
	r.Post("/predict/batch", s.handlePredictBatch)
	return r
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting prediction API")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// observe reports every request with its chi route pattern, so path
// parameters do not explode label cardinality.
func observe(server string, o RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			o.ObserveRequest(server, route, status, time.Since(start))
		})
	}
}
