package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/resource"
	redisadapter "github.com/coursekit/coursekit-backend/internal/adapter/redis"
	"github.com/coursekit/coursekit-backend/internal/auth"
	"github.com/coursekit/coursekit-backend/internal/config"
	"github.com/coursekit/coursekit-backend/internal/transport/middleware"
	"github.com/coursekit/coursekit-backend/internal/transport/rest"
)

// Run is the application entry point for the full pipeline: event ingress
// HTTP server plus the workflow engine's worker pool, sharing one
// in-process bus. It blocks until ctx is cancelled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := redisadapter.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	pipeline := BuildPipeline(cfg, logger, pool, redisClient)

	manager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)

	router := rest.NewRouter(rest.RouterDeps{
		Health:     rest.NewHealthHandler(pool, BuildVersion()),
		Events:     rest.NewEventHandler(pipeline.Registry, pipeline.Engine, logger),
		Webhooks:   rest.NewWebhookHandler(pipeline.Registry, pipeline.Engine, logger),
		DeadLetter: rest.NewDeadLetterHandler(pipeline.Sink, pipeline.Registry, pipeline.Engine, logger),
		Resources:  rest.NewResourceHandler(resource.New(pool), logger),
		Auth:       middleware.Auth(manager),
		Log:        logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pipeline.Engine.Start(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}

	// Workers drain their current delivery once ctx is cancelled.
	wg.Wait()

	logger.Info("stopped")
	return nil
}
