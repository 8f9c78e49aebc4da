package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Terminals = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "termchat_terminals",
		Help: "Current number of connected terminals",
	})
	MessagesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "termchat_messages_sent_total",
		Help: "Total number of chat messages persisted",
	})
	ModerationRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "termchat_moderation_rejections_total",
		Help: "Sends rejected by the moderation gate",
	}, []string{"reason"})
	MessagesPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "termchat_messages_purged_total",
		Help: "Messages deleted by retention sweeps",
	})
	RealtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "termchat_realtime_events_total",
		Help: "Row changes fanned out by the realtime broker",
	}, []string{"table", "event"})
	RealtimeSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "termchat_realtime_subscriptions",
		Help: "Open realtime subscriptions",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		Terminals,
		MessagesSentTotal,
		ModerationRejectionsTotal,
		MessagesPurgedTotal,
		RealtimeEventsTotal,
		RealtimeSubscriptions,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// GinMiddleware records request count and latency per route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
