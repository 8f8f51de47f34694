package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moments",
		Name:      "uploads_processed_total",
		Help:      "Total number of intake runs by outcome (matched, unmatched, ambiguous, rejected, failed)",
	}, []string{"outcome"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moments",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected in uploaded media",
	})

	FacesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moments",
		Name:      "faces_matched_total",
		Help:      "Total number of faces matched to an enrolled person",
	})

	AmbiguousMatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moments",
		Name:      "ambiguous_matches_total",
		Help:      "Faces rejected because two enrolled persons scored within epsilon",
	})

	CaptionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moments",
		Name:      "caption_fallbacks_total",
		Help:      "Captions produced by the template fallback after a provider failure",
	})

	QuotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moments",
		Name:      "quota_rejections_total",
		Help:      "Uploads rejected because the tenant storage quota was exhausted",
	})

	IntakeStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moments",
		Name:      "intake_stage_duration_seconds",
		Help:      "Duration of intake pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "moments",
		Name:      "queue_depth",
		Help:      "Number of pending intake tasks in the queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moments",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "moments",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
