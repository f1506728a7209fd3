package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		xff    string
		reason string
	}{
		{name: "clean", method: http.MethodPost, target: "/api/score", agent: "curl/8.5.0"},
		{name: "traversal", method: http.MethodGet, target: "/api/../../etc/passwd", reason: ReasonPathProbe},
		{name: "dotenv in query", method: http.MethodGet, target: "/api/anomalies?f=.env", reason: ReasonPathProbe},
		{name: "sql injection", method: http.MethodGet, target: "/api/anomalies?limit=1%20union%20select", reason: ReasonInjection},
		{name: "scanner", method: http.MethodGet, target: "/", agent: "sqlmap/1.7", reason: ReasonScanner},
		{name: "trace method", method: "TRACE", target: "/", reason: ReasonMethod},
		{name: "long url", method: http.MethodGet, target: "/?q=" + strings.Repeat("a", 2100), reason: ReasonLongURL},
		{name: "proxy chain", method: http.MethodGet, target: "/", xff: "1.1.1.1,2.2.2.2,3.3.3.3,4.4.4.4,5.5.5.5,6.6.6.6,7.7.7.7", reason: ReasonProxyChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.agent != "" {
				r.Header.Set("User-Agent", tt.agent)
			}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			reason, bad := d.Inspect(r)
			assert.Equal(t, tt.reason != "", bad)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestMiddlewareBlocksOnlyMethods(t *testing.T) {
	var reasons []string
	h := NewDetector().Middleware(func(_ *http.Request, reason string) {
		reasons = append(reasons, reason)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("TRACE", "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.git/config", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []string{ReasonMethod, ReasonPathProbe}, reasons)
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:4000"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", d.ExtractClientIP(r))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", d.ExtractClientIP(r))

	untrusted := httptest.NewRequest(http.MethodGet, "/", nil)
	untrusted.RemoteAddr = "203.0.113.50:1234"
	untrusted.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "203.0.113.50", d.ExtractClientIP(untrusted))

	require.NoError(t, d.AddTrustedProxy("203.0.113.0/24"))
	assert.Equal(t, "1.2.3.4", d.ExtractClientIP(untrusted))
	assert.Error(t, d.AddTrustedProxy("not-a-cidr"))
}

func TestHeaders(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}
