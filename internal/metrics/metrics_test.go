package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	m := New()
	m.Scored(true)
	m.Scored(false)
	m.Scored(false)
	m.Failed("validation")
	m.BatchDone(3, 20*time.Millisecond)
	m.AlertsSynced(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.scored.WithLabelValues("anomaly")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.scored.WithLabelValues("normal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("validation")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.synced))
	assert.Equal(t, 1, testutil.CollectAndCount(m.batch))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Scored(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `cashmon_transactions_scored_total{outcome="anomaly"} 1`)
	assert.Contains(t, body, "cashmon_batch_duration_seconds")
	assert.Contains(t, body, "go_goroutines")
}

func TestHTTPCollectors(t *testing.T) {
	m := New()
	m.HTTPRequest(http.MethodPost, "/api/score", http.StatusCreated, 5*time.Millisecond)
	m.HTTPRequest(http.MethodPost, "/api/score", http.StatusOK, 5*time.Millisecond)
	m.HTTPRequest(http.MethodGet, "/healthz", http.StatusServiceUnavailable, time.Millisecond)
	m.RateLimited()
	m.Suspicious("path_traversal")

	assert.Equal(t, 2, testutil.CollectAndCount(m.requests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.limited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flagged.WithLabelValues("path_traversal")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "other", statusClass(0))
}
