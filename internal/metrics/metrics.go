package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hydrogen_credits",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hydrogen_credits",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hydrogen_credits",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ledgerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hydrogen_credits",
			Subsystem: "ledger",
			Name:      "calls_total",
			Help:      "Total number of ledger write calls by outcome.",
		},
		[]string{"method", "outcome"},
	)

	ledgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hydrogen_credits",
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "Duration of ledger write calls, including receipt wait.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"method"},
	)

	creditOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hydrogen_credits",
			Subsystem: "credits",
			Name:      "operations_total",
			Help:      "Credit lifecycle operations by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hydrogen_credits",
			Subsystem: "reconciler",
			Name:      "operations_total",
			Help:      "Ledger operations resolved by the reconciler.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerCalls,
		ledgerDuration,
		creditOperations,
		reconcileRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry as a Fiber handler.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}

// Middleware records request counts and latency, labelled by route pattern.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		path := c.Route().Path
		if path == "" || path == "/" {
			path = "unmatched"
		}
		method := strings.ToUpper(c.Method())

		httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		return err
	}
}

// RecordLedgerCall records one ledger write and its outcome.
func RecordLedgerCall(method, outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	ledgerCalls.WithLabelValues(method, outcome).Inc()
	ledgerDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RecordCreditOperation(kind, outcome string) {
	creditOperations.WithLabelValues(kind, outcome).Inc()
}

func RecordReconcile(result string) {
	reconcileRuns.WithLabelValues(result).Inc()
}
