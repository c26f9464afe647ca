package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedPath labels requests that hit no route, so probes against random
// webhook URLs share one series.
const unmatchedPath = "unmatched"

// HTTP collectors. The path label is always a registered route pattern.
var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is left out to keep the histogram small.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, excluding websocket sessions.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "HTTP requests currently being served, excluding websocket sessions.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8), // 256B..4MiB
		},
		[]string{"method", "path"},
	)

	wsSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_websocket_sessions",
			Help: "Open widget websocket sessions.",
		},
	)

	wsSessionDur = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "http_websocket_session_seconds",
			Help:    "Lifetime of accepted widget websocket sessions.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1s..~4.5h
		},
	)

	throttled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_throttled_total",
			Help: "Requests rejected by the submission throttle.",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, wsSessions, wsSessionDur, throttled)
}

// Metrics instruments every request. Websocket upgrades block for the whole
// session, so they are counted and tracked as sessions rather than timed as
// requests.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		upgrade := isUpgrade(c)
		if upgrade {
			wsSessions.Inc()
			defer wsSessions.Dec()
		} else {
			httpInflight.Inc()
			defer httpInflight.Dec()
		}

		c.Next()

		method, path := c.Request.Method, routeLabel(c)
		status := c.Writer.Status()
		httpReqs.WithLabelValues(method, path, strconv.Itoa(status)).Inc()

		elapsed := time.Since(start).Seconds()
		if upgrade {
			if status < http.StatusBadRequest {
				wsSessionDur.Observe(elapsed)
			}
			return
		}
		httpLat.WithLabelValues(method, path).Observe(elapsed)
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// routeLabel is the matched route pattern or unmatchedPath.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedPath
}

func isUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}
