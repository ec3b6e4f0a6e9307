package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchesTotal        *prometheus.CounterVec
	searchHits           *prometheus.HistogramVec
	searchDuration       *prometheus.HistogramVec
	rerankTotal          *prometheus.CounterVec
	rerankDegradedTotal  prometheus.Counter
	rejectedQueriesTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dnsgpt",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dnsgpt",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dnsgpt",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dnsgpt",
			Subsystem: "search",
			Name:      "searches_total",
			Help:      "Total completed searches by outcome.",
		},
		[]string{"service", "endpoint", "status"},
	)
	searchHits := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dnsgpt",
			Subsystem: "search",
			Name:      "hits",
			Help:      "Distribution of returned hits per successful search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 50},
		},
		[]string{"service", "endpoint"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dnsgpt",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	rerankTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dnsgpt",
			Subsystem: "search",
			Name:      "rerank_total",
			Help:      "Total rerank decisions by effective mode.",
		},
		[]string{"mode"},
	)
	rerankDegradedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dnsgpt",
			Subsystem: "search",
			Name:      "rerank_degraded_total",
			Help:      "Total reranks that fell back to retrieval order.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectedQueriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dnsgpt",
			Subsystem: "search",
			Name:      "rejected_queries_total",
			Help:      "Total queries rejected before retrieval, by reason.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchesTotal,
		searchHits,
		searchDuration,
		rerankTotal,
		rerankDegradedTotal,
		rejectedQueriesTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		searchesTotal:        searchesTotal,
		searchHits:           searchHits,
		searchDuration:       searchDuration,
		rerankTotal:          rerankTotal,
		rerankDegradedTotal:  rerankDegradedTotal,
		rejectedQueriesTotal: rejectedQueriesTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordSearch(service, endpoint, status string, hits int, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.searchesTotal.WithLabelValues(service, endpoint, status).Inc()
	if status == "success" {
		m.searchHits.WithLabelValues(service, endpoint).Observe(float64(hits))
		m.searchDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
	}
}

func (m *HTTPServerMetrics) RecordRejectedQuery(service, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.rejectedQueriesTotal.WithLabelValues(service, reason).Inc()
}

// RerankCounters exposes the counters the reranker increments itself.
func (m *HTTPServerMetrics) RerankCounters() (*prometheus.CounterVec, prometheus.Counter) {
	return m.rerankTotal, m.rerankDegradedTotal
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
