package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "a2a_messages_sent_total",
			Help: "Total messages accepted by the send pipeline",
		},
	)

	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2a_messages_received_total",
			Help: "Total messages served by the receive pipeline",
		},
		[]string{"source"}, // "cache" or "store"
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "a2a_pipeline_duration_seconds",
			Help:    "Send/receive pipeline duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"}, // "send" or "receive"
	)

	// Security metrics
	SecurityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2a_security_events_total",
			Help: "Total security events recorded",
		},
		[]string{"kind"},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "a2a_rate_limit_rejections_total",
			Help: "Total sends rejected by the token bucket",
		},
	)

	// Registry metrics
	LivenessCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2a_liveness_cycles_total",
			Help: "Total liveness refresh cycles",
		},
		[]string{"outcome"}, // "ok" or "error"
	)

	ActivePeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "a2a_active_peers",
			Help: "Peers seen within the freshness window",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2a_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "a2a_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)
)
