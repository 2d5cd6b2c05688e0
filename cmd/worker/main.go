// Command worker redrives dead-lettered events through the workflow
// engine. It loads pending dead letters in batches, republishes them to
// an in-process bus and runs the full worker pool over them; events that
// fail again dead-letter again. Run once after an incident, or with
// --interval as a standing redrive daemon.
//
// Flags:
//
//	--event     only redrive this event name (default: all)
//	--limit     batch size per pass (default 100)
//	--interval  time between passes; 0 runs a single pass and exits
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres"
	redisadapter "github.com/coursekit/coursekit-backend/internal/adapter/redis"
	"github.com/coursekit/coursekit-backend/internal/app"
	"github.com/coursekit/coursekit-backend/internal/config"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

func main() {
	eventFlag := flag.String("event", "", "only redrive this event name")
	limitFlag := flag.Int("limit", 100, "batch size per pass")
	intervalFlag := flag.Duration("interval", 0, "time between passes; 0 = single pass")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := redisadapter.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	pipeline := app.BuildPipeline(cfg, logger, pool, redisClient)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pipeline.Engine.Start(workerCtx)
	}()

	for {
		n, err := redrive(ctx, pipeline, *eventFlag, *limitFlag, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("redrive pass failed", slog.String("error", err.Error()))
		}
		logger.Info("redrive pass complete", slog.Int("requeued", n))

		if *intervalFlag <= 0 {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(*intervalFlag):
			continue
		}
		break
	}

	// Let the pool drain the bus before stopping the workers.
	for pipeline.Queue.Len() > 0 && ctx.Err() == nil {
		time.Sleep(100 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	cancelWorkers()
	<-done
}

// redrive republishes one batch of pending dead letters. A row is marked
// requeued before the event is emitted; if Emit fails the row stays marked
// and the failure is logged, matching at-least-once semantics elsewhere.
func redrive(ctx context.Context, p *app.Pipeline, eventName string, limit int, logger *slog.Logger) (int, error) {
	entries, err := p.Sink.List(ctx, eventName, limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, entry := range entries {
		payload, err := p.Registry.Validate(entry.EventName, entry.Payload)
		if err != nil {
			logger.Warn("dead letter payload no longer valid",
				slog.String("id", entry.ID.String()),
				slog.String("event", entry.EventName),
				slog.String("error", err.Error()),
			)
			continue
		}

		changed, err := p.Sink.MarkRequeued(ctx, entry.ID)
		if err != nil {
			return requeued, err
		}
		if !changed {
			continue
		}

		evt := domain.Event{
			ID:            entry.EventID,
			Name:          entry.EventName,
			CorrelationID: entry.CorrelationID,
			Payload:       payload,
			Raw:           entry.Payload,
			OccurredAt:    time.Now().UTC(),
		}
		if err := p.Engine.Emit(ctx, evt); err != nil {
			logger.Error("emit redriven event",
				slog.String("id", entry.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		requeued++
	}

	return requeued, nil
}
