// Package metrics exposes the Prometheus collectors spec.md §6 enumerates, built
// the same way the fleet's auth-service does (promauto + promhttp), not a bespoke
// metrics abstraction.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "rpc_requests_total", Help: "Total RPC calls issued by the adapter."},
		[]string{"method"},
	)
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "rpc_errors_total", Help: "Total RPC calls that returned an error."},
		[]string{"method"},
	)

	HeadFetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "head_fetch_latency_seconds",
			Help:    "Latency of head-block RPC calls.",
			Buckets: prometheus.DefBuckets,
		},
	)
	LogFetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "log_fetch_latency_seconds",
			Help:    "Latency of getLogs RPC calls.",
			Buckets: prometheus.DefBuckets,
		},
	)

	InboxAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "inbox_attempts_total", Help: "Dispatcher batch settlements by handler_kind and terminal status."},
		[]string{"handler_kind", "status"},
	)
	DLQTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "dlq_total", Help: "Inbox entries moved to DLQ."},
		[]string{"handler_kind"},
	)

	IndexerBacklog = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Name: "indexer_backlog", Help: "head - last_processed_block per shard."},
		[]string{"shard"},
	)
	CircuitOpenSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Name: "cb_open_seconds", Help: "How long a pool's circuit breaker has been continuously open."},
		[]string{"pool"},
	)
	DomainOutboxUnpublished = promauto.NewGauge(
		prometheus.GaugeOpts{Name: "domain_outbox_unpublished", Help: "Pending (published_at IS NULL) domain_outbox rows."},
	)
)

// RecordRPCCall feeds both the counters and the latency histograms for method.
func RecordRPCCall(method string, err error, d time.Duration, latency prometheus.Histogram) {
	RPCRequestsTotal.WithLabelValues(method).Inc()
	if err != nil {
		RPCErrorsTotal.WithLabelValues(method).Inc()
	}
	if latency != nil {
		latency.Observe(d.Seconds())
	}
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
