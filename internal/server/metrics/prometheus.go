// Package metrics provides the Prometheus metrics of the server: HTTP and
// gRPC traffic, gate decisions and onboarding outcomes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/gate"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/tenants"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tenantkeeper"

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	requestsInFlight   prometheus.Gauge
	grpcRequestsTotal  *prometheus.CounterVec
	authFailures       *prometheus.CounterVec
	authSuccess        prometheus.Counter
	onboardingTotal    *prometheus.CounterVec
	onboardingDuration prometheus.Histogram
}

var (
	_ gate.Recorder    = (*Metrics)(nil)
	_ tenants.Observer = (*Metrics)(nil)
)

// New creates and registers the metrics, plus the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"method", "route"},
		),
		requestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		grpcRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grpc_requests_total",
				Help:      "Total number of gRPC requests",
			},
			[]string{"method", "code"},
		),
		authFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Requests rejected by the auth gate, by failure kind",
			},
			[]string{"kind"},
		),
		authSuccess: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_success_total",
				Help:      "Requests admitted by the auth gate",
			},
		),
		onboardingTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "onboarding_total",
				Help:      "Finished onboardings, by final state",
			},
			[]string{"state"},
		),
		onboardingDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "onboarding_duration_seconds",
				Help:      "Onboarding duration in seconds",
				Buckets:   durationBuckets,
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AuthFailure(kind common.Kind) {
	m.authFailures.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) AuthSuccess() {
	m.authSuccess.Inc()
}

func (m *Metrics) OnboardingFinished(final tenants.State, elapsed time.Duration) {
	m.onboardingTotal.WithLabelValues(string(final)).Inc()
	m.onboardingDuration.Observe(elapsed.Seconds())
}

// RecordGRPCRequest counts a finished gRPC call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.grpcRequestsTotal.WithLabelValues(method, code).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records HTTP metrics labelled by the matched chi route pattern,
// so path parameters do not inflate label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()

		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
