package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "verifications_total",
		Help:      "Face verification attempts by outcome",
	}, []string{"outcome"})

	MatchDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "match_distance",
		Help:      "Euclidean distance between live and reference descriptors",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 12),
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	CameraActiveTracks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "camera_active_tracks",
		Help:      "Number of camera tracks currently capturing",
	})

	EvidenceInlineFallback = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "evidence_inline_fallback_total",
		Help:      "Evidence images embedded inline because the upload failed",
	})

	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "scans_total",
		Help:      "Fallback ID scans by outcome",
	}, []string{"outcome"})

	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "export_duration_seconds",
		Help:      "Duration of audit PDF exports",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	ExportRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "export_rows_total",
		Help:      "Login log rows rendered into audit exports",
	})

	ExportThumbnailFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "export_thumbnail_failures_total",
		Help:      "Evidence thumbnails replaced by a placeholder",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "queue_depth",
		Help:      "Number of pending export jobs in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
