package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "devlens"

// metrics holds the Prometheus metrics of the dev server.
type metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	reordersTotal   *prometheus.CounterVec
	overlaySessions prometheus.Gauge
	hostClients     prometheus.Gauge
	wsErrors        *prometheus.CounterVec
	proxyErrors     prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	factory := promauto.With(registerer)

	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "data_requests_total",
			Help:      "Total number of data API requests",
		}, []string{"operation", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "data_request_duration_seconds",
			Help:      "Data API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		reordersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reorders_total",
			Help:      "Total number of component swaps by result",
		}, []string{"result"}),

		overlaySessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "overlay_sessions",
			Help:      "Number of connected overlay sessions",
		}),

		hostClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "host_clients",
			Help:      "Number of connected host dashboards",
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_errors_total",
			Help:      "Total websocket errors by type",
		}, []string{"type"}),

		proxyErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proxy_errors_total",
			Help:      "Total failed requests to the upstream dev server",
		}),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records the count and latency of a data API operation.
func (s *Server) instrument(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.requestsTotal.WithLabelValues(operation, strconv.Itoa(rec.status)).Inc()
		s.metrics.requestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
