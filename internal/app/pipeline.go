package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/deadletter"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/marker"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/merchant"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/organization"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/progress"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/purchase"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/resource"
	"github.com/coursekit/coursekit-backend/internal/adapter/provider/claude"
	"github.com/coursekit/coursekit-backend/internal/adapter/provider/convertkit"
	"github.com/coursekit/coursekit-backend/internal/adapter/provider/deepgram"
	"github.com/coursekit/coursekit-backend/internal/adapter/provider/slack"
	"github.com/coursekit/coursekit-backend/internal/adapter/provider/stripe"
	redisadapter "github.com/coursekit/coursekit-backend/internal/adapter/redis"
	"github.com/coursekit/coursekit-backend/internal/config"
	"github.com/coursekit/coursekit-backend/internal/engine"
	"github.com/coursekit/coursekit-backend/internal/event"
	"github.com/coursekit/coursekit-backend/internal/handler"
)

// chatWorkflows maps workflow selectors to system prompts for the chat
// provider. Handlers reference selectors by name; the prompt text lives
// here so prompt tuning never touches handler code.
var chatWorkflows = map[string]string{
	"summary": "You are a course content assistant. Summarize the provided " +
		"lesson transcript into a concise outline a student can review in " +
		"under two minutes. Keep the original terminology.",
	"general": "You are a course content assistant. Answer questions about " +
		"the provided lesson material accurately and concisely.",
}

// Pipeline is the fully wired workflow engine: registry, bus, dead-letter
// sink and every handler bound. The server, the redrive worker and the
// dead-letter CLI all build the same pipeline and differ only in what
// feeds it.
type Pipeline struct {
	Engine   *engine.Engine
	Queue    *engine.MemoryQueue
	Sink     *deadletter.Repo
	Registry *event.Registry
}

// BuildPipeline wires repositories, provider adapters and handlers into
// an engine.
func BuildPipeline(cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *goredis.Client) *Pipeline {
	registry := event.DefaultRegistry()
	queue := engine.NewMemoryQueue(cfg.Engine.QueueSize)
	sink := deadletter.New(pool)

	eng := engine.New(engine.Config{
		Workers:         cfg.Engine.Workers,
		MaxAttempts:     cfg.Engine.MaxAttempts,
		BaseBackoff:     cfg.Engine.BaseBackoff,
		MaxBackoff:      cfg.Engine.MaxBackoff,
		HandlerDeadline: cfg.Engine.HandlerDeadline,
	}, queue, sink, logger)

	handlers := handler.New(
		handler.Config{
			TranscriptCallbackURL: cfg.Providers.Deepgram.CallbackURL,
			OpsChannel:            cfg.Providers.Slack.OpsChannel,
		},
		logger,
		resource.New(pool),
		progress.New(pool),
		purchase.New(pool),
		merchant.New(pool),
		organization.New(pool),
		marker.New(pool),
		redisadapter.NewInflight(redisClient, cfg.Redis.InflightTTL),
		deepgram.NewProvider(cfg.Providers.Deepgram.APIKey, logger),
		convertkit.NewProvider(cfg.Providers.ConvertKit.APIKey, logger),
		claude.NewProvider(cfg.Providers.Claude.APIKey, cfg.Providers.Claude.Model, chatWorkflows, logger),
		stripe.NewProvider(cfg.Providers.Stripe.APIKey, logger),
		slack.NewProvider(cfg.Providers.Slack.WebhookURL, logger),
		eng,
	)
	handlers.Register(eng)

	return &Pipeline{
		Engine:   eng,
		Queue:    queue,
		Sink:     sink,
		Registry: registry,
	}
}
