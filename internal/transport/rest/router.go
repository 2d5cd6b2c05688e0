package rest

import (
	"log/slog"
	"net/http"

	"github.com/coursekit/coursekit-backend/internal/transport/middleware"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Health     *HealthHandler
	Events     *EventHandler
	Webhooks   *WebhookHandler
	DeadLetter *DeadLetterHandler
	Resources  *ResourceHandler
	Auth       middleware.Middleware
	Log        *slog.Logger
}

// NewRouter assembles the full route table. Health probes and vendor
// webhooks are unauthenticated; event ingress and the admin surface
// require a bearer token.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /live", deps.Health.Live)
	mux.HandleFunc("GET /ready", deps.Health.Ready)
	mux.HandleFunc("GET /health", deps.Health.Health)

	// Vendor callbacks carry no bearer token; they are authenticated by
	// payload shape and the opacity of the callback URL.
	mux.HandleFunc("POST /webhooks/transcription", deps.Webhooks.Transcription)
	mux.HandleFunc("POST /webhooks/ocr", deps.Webhooks.OCR)

	authed := deps.Auth
	mux.Handle("POST /events", authed(http.HandlerFunc(deps.Events.Publish)))
	mux.Handle("GET /admin/dead-letters", authed(http.HandlerFunc(deps.DeadLetter.List)))
	mux.Handle("POST /admin/dead-letters/{id}/requeue", authed(http.HandlerFunc(deps.DeadLetter.Requeue)))
	mux.Handle("GET /admin/resources", authed(http.HandlerFunc(deps.Resources.List)))

	chain := middleware.Chain(
		middleware.RequestID,
		middleware.Logger(deps.Log),
		middleware.Recovery(deps.Log),
	)
	return chain(mux)
}
