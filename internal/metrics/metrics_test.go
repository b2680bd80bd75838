package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTransaction(t *testing.T) {
	m := New()

	m.RecordTransaction("withdraw", "ok", 10*time.Millisecond)
	m.RecordTransaction("withdraw", "ok", 20*time.Millisecond)
	m.RecordTransaction("withdraw", "insufficient_quantity", time.Millisecond)
	m.RecordRetry()
	m.RecordReplay()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("withdraw", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("withdraw", "insufficient_quantity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IdempotentReplays))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTransaction("deposit", "ok", time.Second)
		m.RecordHTTPRequest("GET", "/api/inventory", 200, time.Second)
		m.RecordRetry()
		m.RecordReplay()
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("GET", "/api/inventory", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "karat_http_requests_total"))
	assert.True(t, strings.Contains(body, `route="/api/inventory"`))
}
