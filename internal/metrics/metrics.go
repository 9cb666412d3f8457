package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the verification pipeline and the notification worker.
// Registered on the default registry and exposed via /metrics.
var (
	VerificationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_verification_attempts_total",
		Help: "Verification attempts by decided outcome.",
	}, []string{"outcome"})

	PipelineStageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rollcall_pipeline_stage_seconds",
		Help:    "Time spent per verification pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_notifications_dispatched_total",
		Help: "Notification dispatch results.",
	}, []string{"result"})

	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_opened_total",
		Help: "Attendance sessions opened.",
	})
)
