package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "energy"

type nodeMetrics struct {
	calls      *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	height     prometheus.Gauge
	sinkErrors *prometheus.CounterVec
}

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	nodeMetricsOnce sync.Once
	nodeRegistry    *nodeMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// Node returns the lazily-initialised registry recording state machine calls.
func Node() *nodeMetrics {
	nodeMetricsOnce.Do(func() {
		nodeRegistry = &nodeMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "calls_total",
				Help:      "Total state machine calls segmented by module, operation and outcome.",
			}, []string{"module", "operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for state machine calls including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "operation"}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "height",
				Help:      "Block height observed by the most recent call.",
			}),
			sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "sink_errors_total",
				Help:      "Receipt deliveries that failed, segmented by sink.",
			}, []string{"sink"}),
		}
		prometheus.MustRegister(
			nodeRegistry.calls,
			nodeRegistry.latency,
			nodeRegistry.height,
			nodeRegistry.sinkErrors,
		)
	})
	return nodeRegistry
}

// SplitLabel splits an operation label such as "escrow.release" into its
// module and operation parts.
func SplitLabel(label string) (string, string) {
	module, operation, found := strings.Cut(strings.TrimSpace(label), ".")
	if !found {
		return "node", normalize(module)
	}
	return normalize(module), normalize(operation)
}

func normalize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}

// ObserveCall records the outcome of a state machine call. The outcome is the
// error category for rejected calls and "committed" otherwise.
func (m *nodeMetrics) ObserveCall(label, outcome string, height uint64, duration time.Duration) {
	if m == nil {
		return
	}
	module, operation := SplitLabel(label)
	m.calls.WithLabelValues(module, operation, normalize(outcome)).Inc()
	m.latency.WithLabelValues(module, operation).Observe(duration.Seconds())
	m.height.Set(float64(height))
}

// RecordSinkError increments the failure counter for a receipt sink.
func (m *nodeMetrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(normalize(sink)).Inc()
}

// RPC returns the lazily-initialised registry recording JSON-RPC activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to rate limiting.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records a JSON-RPC call. A zero code marks success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	module, name := splitMethod(method)
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, name, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(module, name, outcome).Inc()
	m.latency.WithLabelValues(module, name).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

func splitMethod(method string) (string, string) {
	module, name, found := strings.Cut(strings.TrimSpace(method), "_")
	if !found {
		return "unknown", normalize(module)
	}
	return normalize(module), normalize(name)
}
