package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/config"
	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/cache"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/queue"
	redisclient "github.com/joeott/legal-doc-processor-sub003/internal/infra/redis"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/services"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage/memory"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage/postgres"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/health"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/lock"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/metrics"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/orchestrator"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/poller"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/retry"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/stages"
)

// cacheProbeInterval controls how often the breaker health probe runs while
// the processor is up.
const cacheProbeInterval = 30 * time.Second

// Processor is the main application struct. It owns every subsystem of the
// document pipeline and manages their lifecycle.
type Processor struct {
	cfg *config.AppConfig

	db          *postgres.DB
	redisClient *redisclient.Client
	store       *memory.Storage

	orch     *orchestrator.Orchestrator
	taskq    queue.Queue
	breaker  *cache.Breaker
	accessor *cache.Accessor
	workers  []*Worker

	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
}

// pingerFunc adapts a bare probe function to the health.Pinger interface.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// NewProcessor initializes the pipeline with all dependencies wired. With an
// empty database or Redis URL the corresponding in-memory implementation is
// used instead, which is only suitable for local runs.
func NewProcessor(ctx context.Context, cfg *config.AppConfig) (*Processor, error) {
	log := slog.Default()

	// 1. Storage
	var (
		docRepo    storage.DocumentRepository
		stageRepo  storage.StageRepository
		resultRepo storage.StageResultRepository
		store      *memory.Storage
		db         *postgres.DB
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		docRepo = postgres.NewDocumentRepo(db)
		stageRepo = postgres.NewStageRepo(db)
		resultRepo = postgres.NewResultRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store = memory.New()
		docRepo = store
		stageRepo = store
		resultRepo = store
		log.Info("Using Memory storage")
	}

	// 2. Redis-backed coordination: cache, lock, task queue, job handles.
	var (
		redisClient *redisclient.Client
		cacheStore  cache.Store
		docLock     lock.Lock
		taskq       queue.Queue
		handles     poller.HandleStore
	)
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		cacheStore = redisclient.NewCacheStore(redisClient)
		docLock = redisclient.NewDocumentLock(redisClient)
		taskq = redisclient.NewTaskQueue(redisClient)
		handles = redisclient.NewJobHandleStore(redisClient, cfg.Poller.HandleTTL)
		log.Info("Using Redis coordination")
	} else {
		cacheStore = cache.NewMemoryStore()
		docLock = lock.NewMemoryLock()
		taskq = queue.NewMemoryQueue()
		handles = poller.NewMemoryHandleStore()
		log.Warn("Redis URL not set, using in-memory coordination (single process only)")
	}

	breaker := cache.NewBreaker(cfg.Cache.BreakerThreshold, cfg.Cache.BreakerOpenFor)
	accessor := cache.NewAccessor(cacheStore, breaker, cfg.Cache.MaxEntryBytes, log)

	// 3. External collaborators
	ocrClient := services.NewHTTPOCRClient(cfg.OCR)
	extractor, err := services.NewLLMExtractor(cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init llm extractor: %w", err)
	}

	// 4. Pipeline components
	jobPoller := poller.New(cfg.Poller, handles, log)
	classifier := retry.NewClassifier(cfg.Retry)

	orch := orchestrator.New(orchestrator.Deps{
		Documents:  docRepo,
		Stages:     stageRepo,
		Results:    resultRepo,
		Cache:      accessor,
		Lock:       docLock,
		Queue:      taskq,
		Poller:     jobPoller,
		Classifier: classifier,
		Extraction: stages.NewExtraction(ocrClient),
		Units: []stages.WorkUnit{
			stages.NewSegmentation(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap),
			stages.NewEntityExtraction(extractor),
			stages.NewEntityResolution(extractor),
			stages.NewRelationshipBuilding(),
			stages.NewFinalization(stageRepo),
		},
		LockCfg:  cfg.Lock,
		CacheTTL: cfg.Cache.TTL,
		Log:      log,
	})

	// 5. Workers
	workers := make([]*Worker, 0, cfg.Pipeline.Workers)
	for i := 0; i < cfg.Pipeline.Workers; i++ {
		workers = append(workers, NewWorker(i, taskq, orch, cfg.Pipeline.PollInterval, log))
	}

	// 6. Health Monitor
	var dbProbe pingerFunc
	if db != nil {
		dbProbe = db.Health
	}
	var redisProbe pingerFunc
	if redisClient != nil {
		redisProbe = redisClient.Ping
	}
	healthMon := health.NewMonitor(redisProbe, dbProbe, taskq, breaker)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Processor{
		cfg:          cfg,
		db:           db,
		redisClient:  redisClient,
		store:        store,
		orch:         orch,
		taskq:        taskq,
		breaker:      breaker,
		accessor:     accessor,
		workers:      workers,
		healthMon:    healthMon,
		healthServer: healthServer,
		log:          log,
	}, nil
}

// Orchestrator exposes the pipeline state machine for CLI commands.
func (p *Processor) Orchestrator() *orchestrator.Orchestrator {
	return p.orch
}

// Intake registers a new document and schedules its first stage.
func (p *Processor) Intake(ctx context.Context, source domain.SourceRef, contentType string) (domain.DocumentID, error) {
	return p.orch.Intake(ctx, source, contentType)
}

// Start launches the health server, workers, and background maintenance
// loops. It returns immediately; Stop shuts everything down.
func (p *Processor) Start(ctx context.Context) error {
	go func() {
		if err := p.healthServer.Start(); err != nil {
			p.log.Error("Health server failed", "error", err)
		}
	}()

	if p.db != nil {
		p.db.StartMetricsCollector(ctx)
	}

	for _, w := range p.workers {
		p.log.Info("Starting worker", "worker", w.ID())
		go w.Run(ctx)
	}

	go p.runMaintenance(ctx)

	return nil
}

// Stop stops the processor.
func (p *Processor) Stop(ctx context.Context) error {
	p.log.Info("Stopping processor...")

	if p.redisClient != nil {
		if err := p.redisClient.Close(); err != nil {
			p.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			p.log.Warn("Failed to close database", "error", err)
		}
	}

	return p.healthServer.Stop(ctx)
}

// runMaintenance periodically probes the cache backend so an open breaker can
// close again, and samples queue depth for metrics.
func (p *Processor) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(cacheProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.accessor.Probe(ctx)
			if depth, err := p.taskq.Depth(ctx); err == nil {
				metrics.QueueDepth.Set(float64(depth))
			}
		}
	}
}
