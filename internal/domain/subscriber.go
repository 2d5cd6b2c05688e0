package domain

import "time"

// SubscriberState is the email-list state of a contact.
type SubscriberState string

const (
	SubscriberStateActive       SubscriberState = "active"
	SubscriberStateUnsubscribed SubscriberState = "unsubscribed"
	SubscriberStateBounced      SubscriberState = "bounced"
)

// Subscriber is an external email-list contact. Fields is an open property
// bag where every value is a string or absent (nil), never a nested
// structure — ValidateFields enforces this at the boundary.
type Subscriber struct {
	ID        string
	Email     string
	Fields    map[string]*string
	State     SubscriberState
	CreatedAt time.Time
}

// ValidateFields checks the "string or absent" rule on a raw field bag and
// returns the normalized map. Non-string values produce a field-level
// validation error.
func ValidateFields(raw map[string]any) (map[string]*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	fields := make(map[string]*string, len(raw))
	var errs []FieldError
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			fields[k] = nil
		case string:
			s := val
			fields[k] = &s
		default:
			errs = append(errs, FieldError{Field: "fields." + k, Message: "must be a string or null"})
		}
	}
	if len(errs) > 0 {
		return nil, NewValidationErrors(errs)
	}
	return fields, nil
}
