// Package http serves the scoring API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"cashmon/internal/core"
	"cashmon/internal/log"
	"cashmon/internal/middleware/ratelimit"
	"cashmon/internal/middleware/security"
	"cashmon/internal/middleware/trace"
	"cashmon/internal/scoring"
	"cashmon/internal/services"
	"cashmon/internal/storage"
)

// ScoringAPI is what the handlers need from the scoring service.
type ScoringAPI interface {
	SubmitTransaction(ctx context.Context, txn core.Transaction) (services.Submission, error)
	ScoreBatch(ctx context.Context, txns []core.Transaction) (string, []services.Scored, error)
	Explain(r scoring.Result, n int) ([]scoring.Contribution, error)
	Anomalies(ctx context.Context, limit int) ([]storage.Alert, error)
	Ping(ctx context.Context) error
}

// Telemetry receives HTTP-level measurements. *metrics.Metrics satisfies it.
type Telemetry interface {
	trace.Observer
	RateLimited()
	Suspicious(reason string)
	Handler() http.Handler
}

// Options configures NewServer. Zero values are usable.
type Options struct {
	Logger    *log.Logger
	Telemetry Telemetry
	RateLimit ratelimit.Config
	// MaxExplain caps the explain query parameter.
	MaxExplain int
}

type Server struct {
	http.Server
	svc        ScoringAPI
	logger     *log.Logger
	telemetry  Telemetry
	validate   *validator.Validate
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	maxExplain int

	shutdownOnce sync.Once
}

// NewServer builds the API server and its middleware chain. The caller
// starts it with ListenAndServe and must call Shutdown.
func NewServer(addr string, svc ScoringAPI, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.MaxExplain <= 0 {
		opts.MaxExplain = 29
	}

	s := &Server{
		svc:        svc,
		logger:     opts.Logger.WithComponent(log.ComponentHTTP),
		telemetry:  opts.Telemetry,
		validate:   newValidator(),
		limiter:    ratelimit.NewLimiter(opts.RateLimit),
		detector:   security.NewDetector(),
		maxExplain: opts.MaxExplain,
	}

	mux := http.NewServeMux()
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)
	mux.Handle("POST /api/score", limited(http.HandlerFunc(s.handleScore)))
	mux.Handle("POST /api/score/batch", limited(http.HandlerFunc(s.handleScoreBatch)))
	mux.Handle("GET /api/anomalies", limited(http.HandlerFunc(s.handleAnomalies)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.telemetry != nil {
		mux.Handle("GET /metrics", s.telemetry.Handler())
	}

	traceOpts := trace.Options{
		ExtractIP: s.detector.ExtractClientIP,
		Route: func(r *http.Request) string {
			if _, pattern := mux.Handler(r); pattern != "" {
				return pattern
			}
			return "unmatched"
		},
	}
	if s.telemetry != nil {
		traceOpts.Observer = s.telemetry
	}
	tracer := trace.NewMiddleware(opts.Logger, traceOpts)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = s.detector.Middleware(s.onSuspicious)(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	if s.telemetry != nil {
		s.telemetry.RateLimited()
	}
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldComponent, log.ComponentRateLimit)
	writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded", nil)
}

func (s *Server) onSuspicious(r *http.Request, reason string) {
	if s.telemetry != nil {
		s.telemetry.Suspicious(reason)
	}
	log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
		"reason", reason,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldComponent, log.ComponentSecurity)
}
