// Package metrics exposes the Prometheus collectors shared by the HTTP API and
// the transfer engine.
package metrics

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	transferObjectsTotal       *prometheus.CounterVec
	transferBytesTotal         *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		transferObjectsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "awty_transfer_objects_total",
				Help: "Objects copied by the transfer engine, labeled by source scheme and result.",
			},
			[]string{"scheme", "result"},
		)

		transferBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "awty_transfer_bytes_total",
				Help: "Bytes copied by the transfer engine, labeled by source scheme.",
			},
			[]string{"scheme"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "awty_transfer_ratelimit_delay_seconds",
				Help:    "Time transfers spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeScheme reduces a source URI to a low-cardinality scheme label.
// Plain paths are reported as "file"; unparsable input as "unknown".
func SanitizeScheme(rawURI string) string {
	if rawURI == "" {
		return "unknown"
	}
	u, err := url.Parse(rawURI)
	if err != nil {
		return "unknown"
	}
	switch scheme := strings.ToLower(u.Scheme); {
	case len(scheme) < 2:
		return "file"
	case scheme == "file", scheme == "http", scheme == "https", scheme == "gs":
		return scheme
	default:
		return "other"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveTransfer records one copied (or failed) object.
func ObserveTransfer(sourceURI string, bytes int64, err error) {
	Init()
	scheme := SanitizeScheme(sourceURI)
	result := "success"
	if err != nil {
		result = "error"
	}
	transferObjectsTotal.WithLabelValues(scheme, result).Inc()
	if bytes > 0 {
		transferBytesTotal.WithLabelValues(scheme).Add(float64(bytes))
	}
}

// HubStats reports the counters of a progress hub.
type HubStats func() (accepted, dropped, flushes int64)

// RegisterHub exposes hub counters as counter functions on reg.
func RegisterHub(reg prometheus.Registerer, stats HubStats) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "awty_hub_events_accepted_total",
			Help: "Progress events queued by the hub.",
		}, func() float64 { a, _, _ := stats(); return float64(a) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "awty_hub_events_dropped_total",
			Help: "Progress events dropped because the hub buffer was full.",
		}, func() float64 { _, d, _ := stats(); return float64(d) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "awty_hub_flushes_total",
			Help: "Batches handed to the progress sinks.",
		}, func() float64 { _, _, f := stats(); return float64(f) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register hub collector: %w", err)
		}
	}
	return nil
}

// ObserveRateLimitDelay records how long a copy waited for its host's token.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}
