// Package metrics holds the Prometheus collectors of the sync server.
//
// Collectors register with the default registry at init time and are served
// by promhttp on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	changesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circlesync_push_changes_total",
		Help: "Pushed changes by entity type, action and outcome",
	}, []string{"entity_type", "action", "status"})

	pushBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "circlesync_push_batch_size",
		Help:    "Number of changes per push request",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	pulledEntries = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "circlesync_pull_entries",
		Help:    "Change log entries returned per pull",
		Buckets: []float64{0, 1, 10, 50, 100, 250, 500},
	})

	snapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circlesync_full_sync_total",
		Help: "Full snapshot requests served",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "circlesync_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status code",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "code"})
)

// ObserveChange counts one processed push change.
func ObserveChange(entityType, action, status string) {
	changesTotal.WithLabelValues(entityType, action, status).Inc()
}

// ObservePush records the size of a push batch.
func ObservePush(size int) {
	pushBatchSize.Observe(float64(size))
}

// ObservePull records how many entries a pull returned.
func ObservePull(entries int) {
	pulledEntries.Observe(float64(entries))
}

// ObserveSnapshot counts a full sync.
func ObserveSnapshot() {
	snapshotsTotal.Inc()
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	httpDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
