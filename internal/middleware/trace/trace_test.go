package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashmon/internal/log"
)

type sample struct {
	method, route string
	status        int
}

type recordingObserver struct{ samples []sample }

func (o *recordingObserver) HTTPRequest(method, route string, status int, _ time.Duration) {
	o.samples = append(o.samples, sample{method, route, status})
}

func TestMiddlewarePropagatesRequestID(t *testing.T) {
	obs := &recordingObserver{}
	var seenID string
	var seenLogger *log.Logger

	m := NewMiddleware(nil, Options{
		Route:    func(r *http.Request) string { return r.URL.Path },
		Observer: obs,
	})
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		seenLogger = log.FromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/score", nil))

	require.True(t, strings.HasPrefix(seenID, "req_"))
	assert.Equal(t, seenID, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, log.ComponentHTTP, seenLogger.Component())
	assert.Equal(t, []sample{{http.MethodPost, "/api/score", http.StatusAccepted}}, obs.samples)
}

func TestMiddlewareKeepsInboundID(t *testing.T) {
	h := NewMiddleware(nil, Options{}).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(HeaderRequestID, "upstream-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "upstream-42", rec.Header().Get(HeaderRequestID))

	r = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(HeaderRequestID, "bad id\nwith newline")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.True(t, strings.HasPrefix(rec.Header().Get(HeaderRequestID), "req_"))
}

func TestGetRequestIDMissing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
	assert.NotEqual(t, GenerateRequestID(), GenerateRequestID())
}
