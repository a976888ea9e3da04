package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRelayCollectors(t *testing.T) {
	m := New()
	m.Uploads.WithLabelValues(ResultSuccess).Inc()
	m.PurgeDeleted.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `relay_uploads_total{result="success"} 1`)
	assert.Contains(t, string(body), "relay_purge_deleted_total 3")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestInstancesDoNotShareState(t *testing.T) {
	a, b := New(), New()
	a.StagedBytes.Add(10)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "relay_staged_bytes_total 0")
}
