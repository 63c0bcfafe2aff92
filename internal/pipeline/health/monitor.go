package health

import (
	"context"
	"sync"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/infra/cache"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/queue"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/metrics"
)

// Pinger is any dependency exposing a connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// queueDepthDegraded is the backlog size past which the queue reports
// degraded instead of healthy.
const queueDepthDegraded = 10_000

// Monitor aggregates health status from the orchestrator's dependencies.
type Monitor struct {
	redis   Pinger
	db      Pinger
	queue   queue.Queue
	breaker *cache.Breaker

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a new health monitor.
func NewMonitor(redis, db Pinger, q queue.Queue, breaker *cache.Breaker) *Monitor {
	return &Monitor{redis: redis, db: db, queue: q, breaker: breaker}
}

// CheckHealth probes every dependency. Results are cached briefly so health
// endpoints cannot hammer the backends.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		return m.lastReport
	}

	report := &Report{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}

	report.Components["postgres"] = m.probe(ctx, "postgres", m.db)

	// Redis degrades rather than fails the system: cache, locks, and queue
	// all tolerate its absence by falling back or rescheduling.
	redisHealth := m.probe(ctx, "redis", m.redis)
	if redisHealth.Status == StatusCritical {
		redisHealth.Status = StatusDegraded
	}
	report.Components["redis"] = redisHealth

	if depth, err := m.queue.Depth(ctx); err == nil {
		report.QueueDepth = depth
		metrics.QueueDepth.Set(float64(depth))
		status := StatusHealthy
		if depth > queueDepthDegraded {
			status = StatusDegraded
		}
		report.Components["queue"] = ComponentHealth{Name: "queue", Status: status}
	} else {
		report.Components["queue"] = ComponentHealth{
			Name: "queue", Status: StatusDegraded, Detail: err.Error(),
		}
	}

	report.BreakerOpen = !m.breaker.Healthy()
	if report.BreakerOpen {
		metrics.BreakerOpen.Set(1)
	} else {
		metrics.BreakerOpen.Set(0)
	}

	// Worst component wins.
	for _, c := range report.Components {
		if c.Status == StatusCritical {
			report.SystemStatus = StatusCritical
			break
		}
		if c.Status == StatusDegraded {
			report.SystemStatus = StatusDegraded
		}
	}
	if report.BreakerOpen && report.SystemStatus == StatusHealthy {
		report.SystemStatus = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) probe(ctx context.Context, name string, p Pinger) ComponentHealth {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.Ping(probeCtx); err != nil {
		return ComponentHealth{Name: name, Status: StatusCritical, Detail: err.Error()}
	}
	return ComponentHealth{Name: name, Status: StatusHealthy}
}
