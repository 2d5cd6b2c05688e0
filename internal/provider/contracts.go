package provider

import (
	"context"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit-backend/internal/domain"
)

// Transcription submits media to an external transcription vendor.
// Completion is delivered asynchronously as a webhook event, never as a
// synchronous return value — the adapter only submits the request and
// normalizes the vendor's job identifier.
type Transcription interface {
	// RequestTranscript submits mediaURL for transcription; the vendor
	// calls back on callbackURL when done.
	RequestTranscript(ctx context.Context, resourceID uuid.UUID, mediaURL, callbackURL string) (jobID string, err error)

	// RequestSplitPoints asks the vendor for chapter split-point
	// candidates over an existing transcript.
	RequestSplitPoints(ctx context.Context, resourceID string, transcript string) (jobID string, err error)
}

// EmailList manages contacts and sends templated broadcasts on the
// external email-list vendor.
type EmailList interface {
	// UpsertSubscriber creates or updates a contact and returns the
	// vendor-side subscriber id.
	UpsertSubscriber(ctx context.Context, sub domain.Subscriber) (id string, err error)

	// SendBroadcast sends one templated email to one user.
	SendBroadcast(ctx context.Context, toUserID uuid.UUID, email, templateID string, fields map[string]string) error
}

// Message is one turn of a chat exchange sent to the completion vendor.
type Message struct {
	Role    string
	Content string
}

// Completion is the vendor's chat response.
type Completion struct {
	Text  string
	Model string
}

// Chat produces completions over a message history. Rate-limit and timeout
// failures surface as KindRateLimit / KindTransient errors so the engine
// can decide retry vs. abandon.
type Chat interface {
	Complete(ctx context.Context, messages []Message, workflowSelector string) (Completion, error)
}

// RefundResult is the outcome of a refund request.
type RefundResult struct {
	RefundID        string
	AlreadyRefunded bool
}

// Merchant talks to the external payment processor. All operations are
// idempotent keyed by charge id.
type Merchant interface {
	// ProcessRefund refunds a charge. Refunding an already-refunded charge
	// reports AlreadyRefunded instead of failing.
	ProcessRefund(ctx context.Context, chargeID string) (RefundResult, error)
}

// Messaging posts operational notices to the team chat channel.
type Messaging interface {
	Notify(ctx context.Context, channel, text string) error
}
