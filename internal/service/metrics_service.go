package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driveline/lessons-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the lesson/ledger domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	settlementTotal *prometheus.CounterVec
	settlementTime  prometheus.Observer
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

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_transitions_total",
		Help: "Total number of committed lesson state transitions",
	}, []string{"to"})

	settlementTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_settlements_total",
		Help: "Total number of lesson settlements by outcome",
	}, []string{"outcome"})

	settlementTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lesson_settlement_duration_seconds",
		Help:    "Duration of lesson settlement units",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, settlementTotal, settlementTime, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitionTotal: transitionTotal,
		settlementTotal: settlementTotal,
		settlementTime:  settlementTime,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveTransition records one committed lesson transition.
func (s *MetricsService) ObserveTransition(to models.LessonStatus) {
	s.transitionTotal.WithLabelValues(string(to)).Inc()
}

// ObserveSettlement records one settlement attempt and its duration.
func (s *MetricsService) ObserveSettlement(outcome string, duration time.Duration) {
	s.settlementTotal.WithLabelValues(outcome).Inc()
	s.settlementTime.Observe(duration.Seconds())
}
