package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	billsGenerated  prometheus.Counter
	billsReverted   prometheus.Counter
	billsPaid       prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	billsGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bills_generated_total",
		Help: "Total bills created by generation passes",
	})

	billsReverted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bills_reverted_total",
		Help: "Total paid bills reverted to unpaid by the sweep",
	})

	billsPaid := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bills_paid_total",
		Help: "Total bills marked paid",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, billsGenerated, billsReverted, billsPaid, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		billsGenerated:  billsGenerated,
		billsReverted:   billsReverted,
		billsPaid:       billsPaid,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	m.requestDuration.With(labels).Observe(duration.Seconds())
	m.requestTotal.With(labels).Inc()
}

// AddBillsGenerated counts bills created by a generation pass.
func (m *MetricsService) AddBillsGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.billsGenerated.Add(float64(n))
}

// AddBillsReverted counts bills flipped back to unpaid.
func (m *MetricsService) AddBillsReverted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.billsReverted.Add(float64(n))
}

// IncBillsPaid counts a successful payment transition.
func (m *MetricsService) IncBillsPaid() {
	if m == nil {
		return
	}
	m.billsPaid.Inc()
}
