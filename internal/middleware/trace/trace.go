// Package trace tags each request with an ID, a request-scoped logger and
// a latency observation.
package trace

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"cashmon/internal/log"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

const maxInboundIDLength = 64

type requestIDKey struct{}

// Observer receives one latency sample per request.
type Observer interface {
	HTTPRequest(method, route string, status int, elapsed time.Duration)
}

type Middleware struct {
	logger    *log.Logger
	access    *log.StructuredLogger
	extractIP func(*http.Request) string
	route     func(*http.Request) string
	observer  Observer
}

// Options configures the trace middleware. Nil fields fall back to
// sensible no-ops.
type Options struct {
	ExtractIP func(*http.Request) string
	// Route maps a request to a bounded label, usually the mux pattern.
	Route    func(*http.Request) string
	Observer Observer
}

func NewMiddleware(logger *log.Logger, opts Options) *Middleware {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if opts.ExtractIP == nil {
		opts.ExtractIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	if opts.Route == nil {
		opts.Route = func(*http.Request) string { return "all" }
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	return &Middleware{
		logger:    logger,
		access:    log.NewStructuredLogger(logger),
		extractIP: opts.ExtractIP,
		route:     opts.Route,
		observer:  opts.Observer,
	}
}

// Middleware wraps next with request ID propagation and access logging.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := m.extractIP(r)

		requestID := inboundID(r.Header.Get(HeaderRequestID))
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		reqLogger := m.logger.With(log.FieldRequestID, requestID)
		ctx = log.NewContext(ctx, reqLogger)
		r = r.WithContext(ctx)

		m.access.LogHTTPStart(ctx, r, clientIP)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		m.access.LogHTTPEnd(ctx, r, rw.status, elapsed.Milliseconds(), clientIP)
		if m.observer != nil {
			m.observer.HTTPRequest(r.Method, m.route(r), rw.status, elapsed)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// GenerateRequestID returns a fresh random request ID.
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestID returns the request ID stored by the middleware, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// inboundID accepts a caller-supplied ID only if it is short and plain.
func inboundID(id string) string {
	if id == "" || len(id) > maxInboundIDLength {
		return ""
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return ""
		}
	}
	return id
}
