// Package event defines the event type registry: the catalog of every
// named event schema the workflow engine can dispatch. Producers register
// a name plus a payload schema once at startup; dispatch resolves names
// against the catalog at runtime, so adding an event type never touches
// central dispatcher code.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownEvent is returned by Validate for names that were never
// registered. Callers treat unknown names as unhandled, not as failures.
var ErrUnknownEvent = errors.New("unknown event name")

// Schema validates a raw JSON payload into a typed payload value.
// Validation failures are *domain.ValidationError values enumerating every
// failed field.
type Schema interface {
	Validate(raw json.RawMessage) (any, error)
}

// SchemaFunc adapts a function to the Schema interface.
type SchemaFunc func(raw json.RawMessage) (any, error)

func (f SchemaFunc) Validate(raw json.RawMessage) (any, error) { return f(raw) }

// Registry maps event names to payload schemas. Each name is globally
// unique within a deployment; registering a duplicate fails fast at
// startup. Registry is not safe for concurrent registration — register
// everything during wiring, then share freely.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]Schema)}
}

// Register binds a payload schema to an event name.
// Registering the same name twice is an error, never a silent overwrite.
func (r *Registry) Register(name string, schema Schema) error {
	if name == "" {
		return fmt.Errorf("register event: empty name")
	}
	if schema == nil {
		return fmt.Errorf("register event %q: nil schema", name)
	}
	if _, exists := r.schemas[name]; exists {
		return fmt.Errorf("register event %q: duplicate name", name)
	}
	r.schemas[name] = schema
	return nil
}

// MustRegister is Register that panics on error, for wiring code.
func (r *Registry) MustRegister(name string, schema Schema) {
	if err := r.Register(name, schema); err != nil {
		panic(err)
	}
}

// Known reports whether a name has a registered schema.
func (r *Registry) Known(name string) bool {
	_, ok := r.schemas[name]
	return ok
}

// Names returns all registered event names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate resolves the schema for name and validates raw against it.
// Unknown names return ErrUnknownEvent; malformed payloads return a
// *domain.ValidationError. A payload is never partially processed: either
// the whole payload validates, or nothing is dispatched.
func (r *Registry) Validate(name string, raw json.RawMessage) (any, error) {
	schema, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownEvent)
	}
	return schema.Validate(raw)
}
