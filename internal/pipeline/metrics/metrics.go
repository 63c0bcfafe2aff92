package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StagesProcessed tracks stage transitions by outcome
	StagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docproc_stages_processed_total",
			Help: "Total number of stage transitions processed",
		},
		[]string{"stage", "status"},
	)

	// StageDuration tracks work-unit latency per stage
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docproc_stage_duration_seconds",
			Help:    "Stage work unit duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"stage"},
	)

	// CacheRequests tracks cache accessor outcomes
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docproc_cache_requests_total",
			Help: "Total cache reads by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	// BreakerOpen reports whether the cache circuit breaker is open
	BreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docproc_cache_breaker_open",
			Help: "1 when the cache circuit breaker is open",
		},
	)

	// LockContention tracks rescheduled transitions due to held locks
	LockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docproc_lock_contention_total",
			Help: "Total stage transitions rescheduled due to lock contention",
		},
	)

	// ExternalPolls tracks async job poll attempts
	ExternalPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docproc_external_polls_total",
			Help: "Total external job poll attempts by terminal state",
		},
		[]string{"status"},
	)

	// Retries tracks stage retry attempts
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docproc_retries_total",
			Help: "Total stage retries",
		},
		[]string{"stage"},
	)

	// QueueDepth tracks outstanding tasks on the distributed queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docproc_queue_depth",
			Help: "Number of tasks waiting on the queue",
		},
	)

	// DocumentsCompleted tracks terminal document outcomes
	DocumentsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docproc_documents_terminal_total",
			Help: "Total documents reaching a terminal status",
		},
		[]string{"status"},
	)

	// DBConnectionPoolUsage tracks database pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docproc_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
