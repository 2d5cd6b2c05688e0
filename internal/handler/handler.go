// Package handler holds the workflow step functions: one function per
// event family, each idempotent against redelivery and safe under
// concurrent dispatch. Handlers talk to storage and vendors exclusively
// through the narrow interfaces declared here.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/engine"
	"github.com/coursekit/coursekit-backend/internal/event"
	"github.com/coursekit/coursekit-backend/internal/provider"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type resourceRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ContentResource, error)
	FindByFieldValue(ctx context.Context, rtype domain.ResourceType, key, value string) (*domain.ContentResource, error)
	Create(ctx context.Context, res *domain.ContentResource) (*domain.ContentResource, error)
	Update(ctx context.Context, id uuid.UUID, mutate func(*domain.ContentResource) error) (*domain.ContentResource, error)
	TransitionState(ctx context.Context, id uuid.UUID, target domain.ProcessingState) (*domain.ContentResource, error)
}

type progressRepo interface {
	Advance(ctx context.Context, resourceID, userID uuid.UUID, target domain.ProgressState) (*domain.ResourceProgress, error)
}

type purchaseRepo interface {
	GetByChargeIdentifier(ctx context.Context, identifier string) (*domain.Purchase, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error)
}

// chargeRepo resolves processor-side charge identifiers against the local
// merchant ledger.
type chargeRepo interface {
	GetChargeByIdentifier(ctx context.Context, identifier string) (*domain.MerchantCharge, error)
}

type organizationRepo interface {
	EnsurePersonal(ctx context.Context, ownerID uuid.UUID, name string) (*domain.Organization, bool, error)
}

// markerRepo is the durable idempotency store: a claimed key means the
// side effect already happened.
type markerRepo interface {
	Claim(ctx context.Context, handler, key string) (bool, error)
	Release(ctx context.Context, handler, key string) error
}

// inflightStore deduplicates concurrent identical provider requests; an
// entry expires on its own, so it guards a round trip, not a lifetime.
type inflightStore interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type emitter interface {
	Emit(ctx context.Context, evt domain.Event) error
}

// Config carries the deployment-specific knobs handlers need.
type Config struct {
	// TranscriptCallbackURL is where the transcription vendor posts results.
	TranscriptCallbackURL string
	// OpsChannel receives operational notices.
	OpsChannel string
}

// Set bundles every workflow handler with its dependencies.
type Set struct {
	cfg Config
	log *slog.Logger

	resources     resourceRepo
	progress      progressRepo
	purchases     purchaseRepo
	charges       chargeRepo
	organizations organizationRepo
	markers       markerRepo
	inflight      inflightStore

	transcription provider.Transcription
	emailList     provider.EmailList
	chat          provider.Chat
	merchant      provider.Merchant
	messaging     provider.Messaging

	emit emitter
}

// New creates the handler set. emit may be nil in tests that never follow up.
func New(
	cfg Config,
	log *slog.Logger,
	resources resourceRepo,
	progress progressRepo,
	purchases purchaseRepo,
	charges chargeRepo,
	organizations organizationRepo,
	markers markerRepo,
	inflight inflightStore,
	transcription provider.Transcription,
	emailList provider.EmailList,
	chat provider.Chat,
	merchant provider.Merchant,
	messaging provider.Messaging,
	emit emitter,
) *Set {
	return &Set{
		cfg:           cfg,
		log:           log,
		resources:     resources,
		progress:      progress,
		purchases:     purchases,
		charges:       charges,
		organizations: organizations,
		markers:       markers,
		inflight:      inflight,
		transcription: transcription,
		emailList:     emailList,
		chat:          chat,
		merchant:      merchant,
		messaging:     messaging,
		emit:          emit,
	}
}

// Register binds every handler to its event name on the engine.
func (s *Set) Register(e *engine.Engine) {
	e.On(event.LessonCompleted, "progress", s.HandleLessonCompleted)
	e.On(event.NoProgressMade, "nudge", s.HandleNoProgressMade)
	e.On(event.RefundProcessed, "refund", s.HandleRefundProcessed)
	e.On(event.OCRWebhook, "ocr", s.HandleOCRWebhook)
	e.On(event.SplitVideoPoints, "splitvideo", s.HandleSplitVideoPoints)
	e.On(event.VideoUploaded, "transcribe", s.HandleVideoUploaded)
	e.On(event.TranscriptReady, "transcript", s.HandleTranscriptReady)
	e.On(event.ResourceChat, "chat", s.HandleResourceChat)
	e.On(event.EmailSendBroadcast, "broadcast", s.HandleEmailBroadcast)
	e.On(event.InstructorInviteDone, "invite", s.HandleInstructorInvite)
	e.On(event.OrganizationEnsurePersonal, "personal-org", s.HandleEnsurePersonalOrg)
}

// payload extracts the typed payload from evt, falling back to decoding
// Raw when the event skipped registry validation. A payload that cannot be
// produced is a permanent failure: redelivery cannot fix a shape mismatch.
func payload[T any](evt domain.Event) (T, error) {
	if p, ok := evt.Payload.(T); ok {
		return p, nil
	}
	var p T
	if len(evt.Raw) == 0 {
		return p, provider.Permanent(evt.Name, fmt.Errorf("event carries no payload"))
	}
	if err := json.Unmarshal(evt.Raw, &p); err != nil {
		return p, provider.Permanent(evt.Name, fmt.Errorf("decode payload: %w", err))
	}
	return p, nil
}

// notifyOps posts a chat-ops notice. Best effort: a failed notice is
// logged, never retried and never fails the handler.
func (s *Set) notifyOps(ctx context.Context, text string) {
	if s.messaging == nil {
		return
	}
	if err := s.messaging.Notify(ctx, s.cfg.OpsChannel, text); err != nil {
		s.log.WarnContext(ctx, "ops notice failed", slog.String("error", err.Error()))
	}
}
