// Package metrics holds the Prometheus collectors of both services.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "safety_app"

var (
	// Registry holds the application collectors plus process and Go runtime stats.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"path"},
	)

	digestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "runs_total",
			Help:      "Digest runs by outcome.",
		},
		[]string{"outcome"},
	)

	digestPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "pushes_total",
			Help:      "Per-recipient push attempts by outcome (sent, skipped, failed).",
		},
		[]string{"outcome"},
	)

	digestMarked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "records_marked_total",
			Help:      "Application records flagged as notified.",
		},
	)

	digestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "run_duration_seconds",
			Help:      "Duration of digest runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	knownMu    sync.RWMutex
	knownPaths = map[string]struct{}{}
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		digestRuns,
		digestPushes,
		digestMarked,
		digestDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RegisterPaths declares the routes reported under their own label. Any
// other path is reported as "other" to bound label cardinality.
func RegisterPaths(paths ...string) {
	knownMu.Lock()
	defer knownMu.Unlock()
	for _, p := range paths {
		knownPaths[p] = struct{}{}
	}
}

// ObserveRequest records one HTTP request.
func ObserveRequest(path string, status int, elapsed time.Duration) {
	label := pathLabel(path)
	httpRequests.WithLabelValues(label, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func pathLabel(path string) string {
	path = "/" + strings.Trim(path, "/")
	knownMu.RLock()
	defer knownMu.RUnlock()
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}

// ObserveDigestRun records the outcome of one digest run.
func ObserveDigestRun(outcome string, elapsed time.Duration) {
	digestRuns.WithLabelValues(outcome).Inc()
	digestDuration.Observe(elapsed.Seconds())
}

// AddDigestPushes adds per-recipient push outcomes.
func AddDigestPushes(sent, skipped, failed int) {
	digestPushes.WithLabelValues("sent").Add(float64(sent))
	digestPushes.WithLabelValues("skipped").Add(float64(skipped))
	digestPushes.WithLabelValues("failed").Add(float64(failed))
}

// AddDigestMarked adds the number of records flagged as notified.
func AddDigestMarked(n int) {
	digestMarked.Add(float64(n))
}
