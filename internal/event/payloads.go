package event

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit-backend/internal/domain"
)

// Event names known to this deployment, grouped by family.
const (
	// lifecycle
	LessonCompleted            = "lesson.completed"
	OrganizationEnsurePersonal = "organization.ensure-personal"

	// commerce
	RefundProcessed = "refund-processed"

	// content ingestion
	OCRWebhook       = "ocr/web-hook-event"
	SplitVideoPoints = "split_video/request_split_points"
	ResourceChat     = "resource.chat-request"
	VideoUploaded    = "video.uploaded"
	TranscriptReady  = "transcript.ready"

	// communications
	EmailSendBroadcast   = "email.send-broadcast"
	InstructorInviteDone = "instructor.invite.completed"

	// liveness
	NoProgressMade = "progress.no-progress-made"
)

// LessonCompletedPayload marks a lesson finished by a user.
type LessonCompletedPayload struct {
	LessonID uuid.UUID `json:"lessonId"`
	UserID   uuid.UUID `json:"userId"`
}

// EnsurePersonalOrgPayload requests lazy creation of a user's personal
// organization.
type EnsurePersonalOrgPayload struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName,omitempty"`
}

// RefundProcessedPayload carries the processor-side charge identifier of a
// refunded charge.
type RefundProcessedPayload struct {
	MerchantChargeID string `json:"merchantChargeId"`
}

// OCRWebhookPayload is the normalized OCR vendor callback. ScreenshotURL
// may be null; the resource is then keyed by the event id alone.
type OCRWebhookPayload struct {
	ScreenshotURL *string `json:"screenshotUrl"`
	OCRedText     string  `json:"ocrWebhookEvent,omitempty"`
	ResourceID    string  `json:"resourceId,omitempty"`
}

// SplitVideoPayload asks for split-point candidates over a transcript.
// Field names are snake_case on the wire.
type SplitVideoPayload struct {
	ResourceID string `json:"resource_id"`
	Transcript string `json:"transcript"`
}

// ChatMessage is one turn of a resource chat exchange.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResourceChatPayload requests a chat completion over a content resource.
type ResourceChatPayload struct {
	ResourceID       uuid.UUID     `json:"resourceId"`
	UserID           uuid.UUID     `json:"userId"`
	Messages         []ChatMessage `json:"messages"`
	WorkflowSelector string        `json:"selectedWorkflow,omitempty"`
}

// VideoUploadedPayload announces a freshly uploaded media file.
type VideoUploadedPayload struct {
	MediaURL    string     `json:"mediaUrl"`
	FileName    string     `json:"fileName,omitempty"`
	CreatedByID *uuid.UUID `json:"createdById,omitempty"`
}

// TranscriptReadyPayload is the normalized transcription vendor callback.
type TranscriptReadyPayload struct {
	VideoResourceID uuid.UUID `json:"videoResourceId"`
	Transcript      string    `json:"transcript"`
	SRT             string    `json:"srt,omitempty"`
}

// EmailBroadcastPayload requests one templated email to one user.
type EmailBroadcastPayload struct {
	ToUserID   uuid.UUID         `json:"toUserId"`
	Email      string            `json:"email"`
	TemplateID string            `json:"templateId"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// InstructorInvitePayload reports a completed instructor invitation.
type InstructorInvitePayload struct {
	InviteID  string `json:"inviteId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
}

// NoProgressMadePayload nudges a user who stalled on a resource.
type NoProgressMadePayload struct {
	UserID     uuid.UUID `json:"userId"`
	ResourceID uuid.UUID `json:"resourceId"`
	Email      string    `json:"email"`
	TemplateID string    `json:"templateId"`
}

// DefaultRegistry builds a registry with every event family of the
// platform registered. Wiring code calls this once at startup.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(LessonCompleted, SchemaFunc(validateLessonCompleted))
	r.MustRegister(OrganizationEnsurePersonal, SchemaFunc(validateEnsurePersonalOrg))
	r.MustRegister(RefundProcessed, SchemaFunc(validateRefundProcessed))
	r.MustRegister(OCRWebhook, SchemaFunc(validateOCRWebhook))
	r.MustRegister(SplitVideoPoints, SchemaFunc(validateSplitVideo))
	r.MustRegister(ResourceChat, SchemaFunc(validateResourceChat))
	r.MustRegister(VideoUploaded, SchemaFunc(validateVideoUploaded))
	r.MustRegister(TranscriptReady, SchemaFunc(validateTranscriptReady))
	r.MustRegister(EmailSendBroadcast, SchemaFunc(validateEmailBroadcast))
	r.MustRegister(InstructorInviteDone, SchemaFunc(validateInstructorInvite))
	r.MustRegister(NoProgressMade, SchemaFunc(validateNoProgressMade))
	return r
}

// decode unmarshals raw into dst, reporting malformed JSON as a
// field-level validation error on "data".
func decode(raw json.RawMessage, dst any) *domain.ValidationError {
	if len(raw) == 0 {
		return domain.NewValidationError("data", "required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.NewValidationError("data", "malformed JSON: "+err.Error())
	}
	return nil
}

func validateLessonCompleted(raw json.RawMessage) (any, error) {
	var p LessonCompletedPayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	var errs []domain.FieldError
	if p.LessonID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "lessonId", Message: "required"})
	}
	if p.UserID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "userId", Message: "required"})
	}
	if len(errs) > 0 {
		return nil, domain.NewValidationErrors(errs)
	}
	return p, nil
}

func validateEnsurePersonalOrg(raw json.RawMessage) (any, error) {
	var p EnsurePersonalOrgPayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	if p.UserID == uuid.Nil {
		return nil, domain.NewValidationError("userId", "required")
	}
	return p, nil
}

func validateRefundProcessed(raw json.RawMessage) (any, error) {
	var p RefundProcessedPayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	if p.MerchantChargeID == "" {
		return nil, domain.NewValidationError("merchantChargeId", "required")
	}
	return p, nil
}

func validateOCRWebhook(raw json.RawMessage) (any, error) {
	var p OCRWebhookPayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	// ScreenshotURL is nullable by contract; nothing else is required.
	return p, nil
}

func validateSplitVideo(raw json.RawMessage) (any, error) {
	var p SplitVideoPayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	var errs []domain.FieldError
	if p.ResourceID == "" {
		errs = append(errs, domain.FieldError{Field: "resource_id", Message: "required"})
	}
	if p.Transcript == "" {
		errs = append(errs, domain.FieldError{Field: "transcript", Message: "required"})
	}
	if len(errs) > 0 {
		return nil, domain.NewValidationErrors(errs)
	}
	return p, nil
}

func validateResourceChat(raw json.RawMessage) (any, error) {
	var p ResourceChatPayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	var errs []domain.FieldError
	if p.ResourceID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "resourceId", Message: "required"})
	}
	if p.UserID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "userId", Message: "required"})
	}
	if len(p.Messages) == 0 {
		errs = append(errs, domain.FieldError{Field: "messages", Message: "at least one required"})
	}
	for i, m := range p.Messages {
		if m.Role != "user" && m.Role != "assistant" && m.Role != "system" {
			errs = append(errs, domain.FieldError{Field: fieldIndex("messages", i, "role"), Message: "must be user, assistant or system"})
		}
		if m.Content == "" {
			errs = append(errs, domain.FieldError{Field: fieldIndex("messages", i, "content"), Message: "required"})
		}
	}
	if len(errs) > 0 {
		return nil, domain.NewValidationErrors(errs)
	}
	return p, nil
}

func validateVideoUploaded(raw json.RawMessage) (any, error) {
	var p VideoUploadedPayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	if p.MediaURL == "" {
		return nil, domain.NewValidationError("mediaUrl", "required")
	}
	return p, nil
}

func validateTranscriptReady(raw json.RawMessage) (any, error) {
	var p TranscriptReadyPayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	var errs []domain.FieldError
	if p.VideoResourceID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "videoResourceId", Message: "required"})
	}
	if p.Transcript == "" {
		errs = append(errs, domain.FieldError{Field: "transcript", Message: "required"})
	}
	if len(errs) > 0 {
		return nil, domain.NewValidationErrors(errs)
	}
	return p, nil
}

func validateEmailBroadcast(raw json.RawMessage) (any, error) {
	var p EmailBroadcastPayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	var errs []domain.FieldError
	if p.ToUserID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "toUserId", Message: "required"})
	}
	if p.Email == "" {
		errs = append(errs, domain.FieldError{Field: "email", Message: "required"})
	}
	if p.TemplateID == "" {
		errs = append(errs, domain.FieldError{Field: "templateId", Message: "required"})
	}
	if len(errs) > 0 {
		return nil, domain.NewValidationErrors(errs)
	}
	return p, nil
}

func validateInstructorInvite(raw json.RawMessage) (any, error) {
	var p InstructorInvitePayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	var errs []domain.FieldError
	if p.InviteID == "" {
		errs = append(errs, domain.FieldError{Field: "inviteId", Message: "required"})
	}
	if p.Email == "" {
		errs = append(errs, domain.FieldError{Field: "email", Message: "required"})
	}
	if len(errs) > 0 {
		return nil, domain.NewValidationErrors(errs)
	}
	return p, nil
}

func validateNoProgressMade(raw json.RawMessage) (any, error) {
	var p NoProgressMadePayload
	if verr := decode(raw, &p); verr != nil {
		return nil, verr
	}
	var errs []domain.FieldError
	if p.UserID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "userId", Message: "required"})
	}
	if p.ResourceID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "resourceId", Message: "required"})
	}
	if p.Email == "" {
		errs = append(errs, domain.FieldError{Field: "email", Message: "required"})
	}
	if p.TemplateID == "" {
		errs = append(errs, domain.FieldError{Field: "templateId", Message: "required"})
	}
	if len(errs) > 0 {
		return nil, domain.NewValidationErrors(errs)
	}
	return p, nil
}

func fieldIndex(prefix string, i int, suffix string) string {
	return fmt.Sprintf("%s[%d].%s", prefix, i, suffix)
}
