package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inferenceTime   *prometheus.HistogramVec
	inferenceErrors *prometheus.CounterVec
	gatherer        prometheus.Gatherer
}

// New registers the service collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			}, []string{"path", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"path"},
		),
		inferenceTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inference_duration_seconds",
				Help:    "Time spent in model inference including pre- and post-processing",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			}, []string{"model"},
		),
		inferenceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inference_errors_total",
				Help: "Total number of failed inferences",
			}, []string{"model"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.requestCount, m.requestDuration, m.inferenceTime, m.inferenceErrors)
	return m
}

func (m *Metrics) ObserveRequest(path, method string, status int, d time.Duration) {
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) ObserveInference(model string, d time.Duration, err error) {
	if err != nil {
		m.inferenceErrors.WithLabelValues(model).Inc()
		return
	}
	m.inferenceTime.WithLabelValues(model).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
