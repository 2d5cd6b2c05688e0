// Package provider defines the capability contracts the workflow engine
// calls external systems through, plus the failure classification every
// adapter must apply. The engine never sees a concrete vendor.
package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an adapter failure for the engine's retry decision.
type Kind string

const (
	// KindTransient covers network errors, timeouts and 5xx responses —
	// safe to retry with backoff.
	KindTransient Kind = "transient"
	// KindPermanent covers bad requests and validation rejections — do not
	// retry, surface to the dead-letter sink.
	KindPermanent Kind = "permanent"
	// KindRateLimit is a provider rate-limit or quota response. Retried
	// like transient failures, but surfaced distinctly so callers can
	// decide retry vs. abandon.
	KindRateLimit Kind = "rate-limit"
)

// Error wraps an adapter failure with its classification.
// Adapters never swallow errors; every failure leaving an adapter is an
// *Error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(op string, err error) *Error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

// RateLimited wraps err as a rate-limit failure.
func RateLimited(op string, err error) *Error {
	return &Error{Kind: KindRateLimit, Op: op, Err: err}
}

// IsTransient reports whether err should be retried (transient or
// rate-limit). Unclassified errors are treated as transient so an adapter
// bug never silently dead-letters work.
func IsTransient(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind != KindPermanent
	}
	return true
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == KindPermanent
	}
	return false
}

// IsRateLimited reports whether err is a provider rate-limit response.
func IsRateLimited(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == KindRateLimit
	}
	return false
}

// ClassifyStatus converts an unexpected HTTP status into a classified
// error: 429 → rate-limit, 5xx → transient, other 4xx → permanent.
func ClassifyStatus(op string, status int) *Error {
	err := fmt.Errorf("unexpected status %d", status)
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimited(op, err)
	case status >= 500:
		return Transient(op, err)
	default:
		return Permanent(op, err)
	}
}
