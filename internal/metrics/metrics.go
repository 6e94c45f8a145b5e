package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"route", "method", "status"},
	)
	ReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request duration seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "http_in_flight_requests", Help: "In-flight HTTP requests"},
	)
	AuthOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_operations_total", Help: "Auth operations by outcome"},
		[]string{"op", "outcome"},
	)
	MailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notifier_mails_total", Help: "Mail events handled by the notifier"},
		[]string{"kind", "result"},
	)
)

// MustRegister registers the API server collectors.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(RequestsTotal, ReqDuration, InFlight, AuthOps)
}

// MustRegisterNotifier registers the mail worker collectors.
func MustRegisterNotifier(reg prometheus.Registerer) {
	reg.MustRegister(MailsTotal)
}

// NewServer exposes g on /metrics for processes without an HTTP API.
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// Middleware records count, latency and in-flight gauge per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		RequestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		ReqDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
