// Command deadletter inspects and replays dead-lettered events.
//
// Usage:
//
//	deadletter list [--event=name] [--limit=50]
//	deadletter requeue --id=<uuid>
//
// list prints pending dead letters, newest first. requeue replays one
// event synchronously through the fully wired handler set and marks the
// row requeued on success; a replay that fails again leaves the row
// pending.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/deadletter"
	redisadapter "github.com/coursekit/coursekit-backend/internal/adapter/redis"
	"github.com/coursekit/coursekit-backend/internal/app"
	"github.com/coursekit/coursekit-backend/internal/config"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

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

	switch os.Args[1] {
	case "list":
		runList(ctx, pool, os.Args[2:])
	case "requeue":
		runRequeue(ctx, cfg, pool, logger, os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: deadletter list [--event=name] [--limit=50] | deadletter requeue --id=<uuid>")
	os.Exit(1)
}

func runList(ctx context.Context, pool *pgxpool.Pool, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	eventFlag := fs.String("event", "", "only list this event name")
	limitFlag := fs.Int("limit", 50, "max rows to print")
	fs.Parse(args) //nolint:errcheck

	repo := deadletter.New(pool)
	entries, err := repo.List(ctx, *eventFlag, *limitFlag)
	if err != nil {
		log.Fatalf("list dead letters: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("No pending dead letters.")
		return
	}

	for _, e := range entries {
		fmt.Printf("%s  %-35s  handler=%-12s attempts=%d  %s\n  %s\n",
			e.ID, e.EventName, e.Handler, e.Attempts,
			e.CreatedAt.Format(time.RFC3339), e.Error)
	}
	fmt.Printf("%d pending.\n", len(entries))
}

func runRequeue(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("requeue", flag.ExitOnError)
	idFlag := fs.String("id", "", "dead letter id to requeue")
	fs.Parse(args) //nolint:errcheck

	id, err := uuid.Parse(*idFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "requeue needs --id=<uuid>")
		os.Exit(1)
	}

	redisClient, err := redisadapter.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	pipeline := app.BuildPipeline(cfg, logger, pool, redisClient)

	entry, err := pipeline.Sink.GetByID(ctx, id)
	if err != nil {
		log.Fatalf("get dead letter: %v", err)
	}
	if entry.RequeuedAt != nil {
		fmt.Printf("Dead letter %s was already requeued at %s.\n", id, entry.RequeuedAt.Format(time.RFC3339))
		os.Exit(1)
	}

	payload, err := pipeline.Registry.Validate(entry.EventName, entry.Payload)
	if err != nil {
		log.Fatalf("payload no longer validates: %v", err)
	}

	evt := domain.Event{
		ID:            entry.EventID,
		Name:          entry.EventName,
		CorrelationID: entry.CorrelationID,
		Payload:       payload,
		Raw:           entry.Payload,
		OccurredAt:    time.Now().UTC(),
	}

	out := pipeline.Engine.Dispatch(ctx, evt)
	for _, r := range out.Results {
		status := "ok"
		if r.Err != nil {
			status = "failed: " + r.Err.Error()
		}
		if r.DeadLettered {
			status += " (dead-lettered)"
		}
		fmt.Printf("handler %-12s attempts=%d  %s\n", r.Handler, r.Attempts, status)
	}

	if out.Failed() {
		fmt.Println("Replay failed; row left pending.")
		os.Exit(1)
	}

	if _, err := pipeline.Sink.MarkRequeued(ctx, id); err != nil {
		log.Fatalf("mark requeued: %v", err)
	}
	fmt.Printf("Dead letter %s replayed and marked requeued.\n", id)
}
