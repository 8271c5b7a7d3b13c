package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SymbolsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "symbols_processed_total", Help: "Symbols processed per batch run, by outcome"},
		[]string{"status"},
	)
	CascadeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cascade_outcomes_total", Help: "Terminal cascade states per validation run"},
		[]string{"state"},
	)
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_submitted_total", Help: "Orders submitted to the venue"},
		[]string{"symbol", "side"},
	)
	LockSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lock_skips_total", Help: "Symbols skipped because the per-symbol lock was held"},
		[]string{"symbol"},
	)
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_run_duration_seconds",
			Help:    "Wall time of one full batch run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(SymbolsProcessed, CascadeOutcomes, OrdersSubmitted, LockSkips, RunDuration)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
