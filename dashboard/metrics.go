package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dashboard's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Renders        prometheus.Counter
	RenderDuration prometheus.Histogram
	RowsKept       prometheus.Gauge
	RowsRemoved    prometheus.Gauge
	Predictions    *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Renders: f.NewCounter(prometheus.CounterOpts{
			Namespace: "car_dashboard",
			Name:      "renders_total",
			Help:      "Pipeline runs triggered by dashboard requests.",
		}),
		RenderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "car_dashboard",
			Name:      "render_duration_seconds",
			Help:      "Time spent loading and cleaning the listings table.",
			Buckets:   prometheus.DefBuckets,
		}),
		RowsKept: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "car_dashboard",
			Name:      "rows_kept",
			Help:      "Rows retained by the most recent pipeline run.",
		}),
		RowsRemoved: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "car_dashboard",
			Name:      "rows_removed",
			Help:      "Rows dropped by the range filters in the most recent run.",
		}),
		Predictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "car_dashboard",
			Name:      "predictions_total",
			Help:      "Price predictions by outcome.",
		}, []string{"outcome"}),
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "car_dashboard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.RequestLatency.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
