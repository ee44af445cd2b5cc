package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fluxscan_batches_total", Help: "Scanner batches finished, by status"},
		[]string{"status"},
	)
	SymbolsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fluxscan_symbols_total", Help: "Symbol tasks processed, by outcome"},
		[]string{"outcome"},
	)
	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fluxscan_batch_duration_seconds",
			Help:    "Wall-clock duration of scanner batches",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
	SeriesCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fluxscan_series_cache_total", Help: "Market series cache lookups, by layer and result"},
		[]string{"layer", "result"},
	)
	ActiveScans = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "fluxscan_active_scans", Help: "Scans currently running in the background"},
	)
)

// Symbol task outcomes.
const (
	OutcomeSignal  = "signal"
	OutcomeNone    = "none"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

func init() {
	prometheus.MustRegister(BatchesTotal, SymbolsTotal, BatchDuration, SeriesCacheTotal, ActiveScans)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
