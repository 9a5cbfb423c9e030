package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/internal/service"
	"github.com/noah-isme/lesson-scheduler/internal/solver"
	"github.com/noah-isme/lesson-scheduler/pkg/cache"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
	"github.com/noah-isme/lesson-scheduler/pkg/database"
	"github.com/noah-isme/lesson-scheduler/pkg/jobs"
	"github.com/noah-isme/lesson-scheduler/pkg/kvstore"
	"github.com/noah-isme/lesson-scheduler/pkg/logger"
	"github.com/noah-isme/lesson-scheduler/pkg/storage"
)

const (
	queueName       = "solver-runs"
	queueMaxRetries = 2
	queueRetryDelay = 5 * time.Second
)

// app bundles the dependencies shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *service.MetricsService

	runs           service.RunStore
	availabilities service.AvailabilityStore
	options        service.OptionsStore
	progress       service.ProgressCache

	db      *sqlx.DB
	redis   *redis.Client
	closers []func() error
}

// newApp loads config and opens the configured stores.
func newApp(ctx context.Context) (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// loadApp prepares config and logging only; one-shot solves need no store.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &app{cfg: cfg, logger: log, metrics: service.NewMetricsService()}, nil
}

func (a *app) openStores(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.StoreDriverBadger:
		kv, err := kvstore.Open(kvstore.FromConfig(a.cfg.Store, a.logger))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, kv.Close)
		a.runs = repository.NewBadgerRunStore(kv)
		a.availabilities = repository.NewBadgerAvailabilityStore(kv)
		a.options = repository.NewBadgerOptionsStore(kv)
	case config.StoreDriverPostgres, "":
		db, err := database.NewPostgres(ctx, a.cfg.Database)
		if err != nil {
			return err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
		a.runs = repository.NewSolverRunRepository(db)
		a.availabilities = repository.NewAvailabilityRepository(db)
		a.options = repository.NewSolverOptionsRepository(db)
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}

	client, err := cache.NewRedis(ctx, a.cfg.Redis)
	if err != nil {
		a.logger.Warn("redis unavailable, progress is served from run records", zap.Error(err))
		return nil
	}
	if client != nil {
		repo := repository.NewProgressRepository(client, a.cfg.Redis.ProgressTTL, a.logger)
		a.redis = client
		a.progress = repo
		a.closers = append(a.closers, repo.Close)
	}
	return nil
}

// Close releases stores in reverse order of opening and flushes the logger.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func solverConfig(cfg config.SolverConfig) solver.Config {
	return solver.Config{
		Binary:             cfg.Binary,
		Args:               append([]string(nil), cfg.Args...),
		TimeLimitFlag:      cfg.TimeLimitFlag,
		TotalTimeLimit:     cfg.TotalTimeLimit,
		IdleTimeLimit:      cfg.IdleTimeLimit,
		CheckpointInterval: cfg.CheckpointInterval,
		KillGrace:          cfg.KillGrace,
	}
}

func (a *app) solverService(workDir string) (*service.SolverService, error) {
	instances, err := storage.NewLocalStorage(workDir)
	if err != nil {
		return nil, fmt.Errorf("solver work dir: %w", err)
	}
	runner := solver.NewRunner(solverConfig(a.cfg.Solver), a.logger.Named("solver"))
	return service.NewSolverService(runner, instances, a.logger), nil
}

func (a *app) runService() *service.SolverRunService {
	return service.NewSolverRunService(a.runs, a.availabilities, a.options, a.progress, nil, nil, a.metrics, a.logger,
		service.SolverRunServiceConfig{SolverVersion: a.cfg.Solver.Version, StaleAfter: a.cfg.Worker.StaleAfter})
}

// startWorkers attaches a worker pool to runs and starts the queued-run
// poller. The returned func stops both.
func (a *app) startWorkers(ctx context.Context, runs *service.SolverRunService) (func(), error) {
	solverSvc, err := a.solverService(a.cfg.Solver.WorkDir)
	if err != nil {
		return nil, err
	}
	worker := service.NewSolverRunWorker(a.runs, a.availabilities, a.options, a.progress, solverSvc, a.metrics, a.logger)
	queue := jobs.NewQueue(queueName, worker.Handle, jobs.QueueConfig{
		Workers:    a.cfg.Worker.Concurrency,
		BufferSize: a.cfg.Worker.BufferSize,
		MaxRetries: queueMaxRetries,
		RetryDelay: queueRetryDelay,
		Logger:     a.logger,
	})
	queue.Start(ctx)
	runs.SetQueue(queue)

	pollCtx, cancelPoll := context.WithCancel(ctx)
	if _, err := runs.StartPolling(pollCtx, a.cfg.Worker.PollSchedule); err != nil {
		cancelPoll()
		queue.Stop()
		return nil, err
	}
	if n := runs.RecoverPendingJobs(ctx); n > 0 {
		a.logger.Sugar().Infow("queued runs recovered", "count", n)
	}
	return func() {
		cancelPoll()
		queue.Stop()
	}, nil
}

func (a *app) exportService() (*service.ExportService, error) {
	if a.cfg.Exports.SigningSecret == "" {
		return nil, nil
	}
	files, err := storage.NewLocalStorage(a.cfg.Exports.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("exports dir: %w", err)
	}
	signer := storage.NewSignedURLSigner(a.cfg.Exports.SigningSecret, a.cfg.Exports.LinkTTL)
	return service.NewExportService(a.runs, a.availabilities, files, signer,
		service.ExportConfig{APIPrefix: a.cfg.APIPrefix, Retention: a.cfg.Exports.Retention},
		a.logger, nil, nil), nil
}
