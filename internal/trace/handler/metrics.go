package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/agriledger/internal/ledger"
	"github.com/jmerrifield20/agriledger/internal/trace/service"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agriledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	blocksAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_blocks_appended_total",
		Help: "Total ledger blocks appended by action.",
	}, []string{"action"})

	submissionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_submissions_rejected_total",
		Help: "Total stage submissions refused by reason.",
	}, []string{"reason"})

	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_validations_total",
		Help: "Total full-chain validations by result.",
	}, []string{"result"})

	ledgerHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agriledger_ledger_height",
		Help: "Number of blocks in the ledger, genesis included.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// PrometheusMetrics records service events in the package collectors.
type PrometheusMetrics struct{}

var _ service.Metrics = PrometheusMetrics{}

// BlockAppended implements service.Metrics.
func (PrometheusMetrics) BlockAppended(action ledger.Action) {
	blocksAppendedTotal.WithLabelValues(string(action)).Inc()
}

// SubmissionRejected implements service.Metrics.
func (PrometheusMetrics) SubmissionRejected(reason string) {
	submissionsRejectedTotal.WithLabelValues(reason).Inc()
}

// LedgerValidated implements service.Metrics.
func (PrometheusMetrics) LedgerValidated(status ledger.Status) {
	validationsTotal.WithLabelValues(string(status)).Inc()
}

// LedgerHeight implements service.Metrics.
func (PrometheusMetrics) LedgerHeight(blocks int) {
	ledgerHeight.Set(float64(blocks))
}
