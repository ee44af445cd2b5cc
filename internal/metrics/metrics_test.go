package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	BatchesTotal.WithLabelValues("completed").Inc()
	SymbolsTotal.WithLabelValues(OutcomeSignal).Inc()
	BatchDuration.Observe(0.3)

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["fluxscan_batches_total"])
	assert.True(t, names["fluxscan_symbols_total"])
	assert.True(t, names["fluxscan_batch_duration_seconds"])
}

func TestHandler(t *testing.T) {
	SeriesCacheTotal.WithLabelValues("memory", "hit").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "fluxscan_series_cache_total"))
}
