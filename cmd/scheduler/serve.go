package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/noah-isme/lesson-scheduler/internal/handler"
	"github.com/noah-isme/lesson-scheduler/internal/middleware"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
	"github.com/noah-isme/lesson-scheduler/pkg/logger"
	corsmiddleware "github.com/noah-isme/lesson-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lesson-scheduler/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var noWorkers bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API together with a local worker pool.

With --no-workers the API only records runs; a separate "worker" process
picks them up from the shared store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, !noWorkers)
		},
	}
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "do not run solver workers in this process")
	return cmd
}

func serve(ctx context.Context, withWorkers bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.logger.Sugar()

	runs := a.runService()
	if withWorkers {
		stopWorkers, err := a.startWorkers(ctx, runs)
		if err != nil {
			return err
		}
		defer stopWorkers()
	}

	exports, err := a.exportService()
	if err != nil {
		return err
	}
	api := handler.NewSolverRunHandler(runs, nil)
	if exports != nil {
		if _, err := exports.StartCleanup(ctx, a.cfg.Exports.CleanupSchedule); err != nil {
			return err
		}
		api = handler.NewSolverRunHandler(runs, exports)
	} else {
		log.Infow("exports disabled, no signing secret configured")
	}

	if a.cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(a.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics))

	api.Register(r.Group(a.cfg.APIPrefix))

	metricsAPI := handler.NewMetricsHandler(a.metrics, a.healthChecks())
	r.GET("/metrics", metricsAPI.Prometheus)
	r.GET("/health", metricsAPI.Health)
	r.GET("/stats", metricsAPI.Stats)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", srv.Addr, "env", a.cfg.Env, "store", a.cfg.Store.Driver, "workers", withWorkers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) healthChecks() map[string]handler.HealthCheck {
	checks := make(map[string]handler.HealthCheck)
	if a.db != nil {
		checks["database"] = func(ctx context.Context) error { return a.db.PingContext(ctx) }
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}
