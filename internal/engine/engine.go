// Package engine implements the workflow engine: it consumes events from
// the bus, resolves them against named step handlers, executes each handler
// with a deadline and bounded retries, and routes exhausted or permanently
// failed work to the dead-letter sink.
//
// Handlers are idempotent by contract. The underlying bus is at-least-once,
// so every handler must be safe to re-run with identical inputs; the engine
// makes no ordering guarantee across or within aggregates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/provider"
)

// HandlerFunc is a unit of workflow logic bound to one event name.
type HandlerFunc func(ctx context.Context, evt domain.Event) error

type step struct {
	name string
	fn   HandlerFunc
}

// DeadLetterSink receives events that exhausted retries or failed
// permanently, exactly once per (event, handler).
type DeadLetterSink interface {
	Add(ctx context.Context, evt domain.Event, handler string, attempts int, cause error) error
}

// Config tunes the engine's scheduling and failure policy.
type Config struct {
	Workers         int
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	HandlerDeadline time.Duration
}

// HandlerResult is the final outcome of one handler for one event.
type HandlerResult struct {
	Handler      string
	Attempts     int
	Err          error
	DeadLettered bool
}

// Outcome is the result of dispatching one event across all its handlers.
type Outcome struct {
	EventID   string
	Name      string
	Unhandled bool
	Results   []HandlerResult
}

// Failed reports whether any handler ended in failure.
func (o Outcome) Failed() bool {
	for _, r := range o.Results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// Engine dispatches events to registered step handlers.
type Engine struct {
	cfg   Config
	queue Queue
	sink  DeadLetterSink
	log   *slog.Logger

	mu    sync.RWMutex
	steps map[string][]step
}

// New creates an Engine. Zero config values fall back to safe defaults.
func New(cfg Config, queue Queue, sink DeadLetterSink, log *slog.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.HandlerDeadline <= 0 {
		cfg.HandlerDeadline = 30 * time.Second
	}
	return &Engine{
		cfg:   cfg,
		queue: queue,
		sink:  sink,
		log:   log,
		steps: make(map[string][]step),
	}
}

// On binds a named handler to an event name. Multiple handlers per name
// are allowed and run in registration order; zero handlers is valid.
func (e *Engine) On(eventName, handlerName string, fn HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps[eventName] = append(e.steps[eventName], step{name: handlerName, fn: fn})
}

// Emit publishes a follow-up event onto the bus. Handlers use this for
// multi-step pipelines instead of calling Dispatch synchronously; the
// correlation id must already be carried on evt (see domain.Event.Follow).
func (e *Engine) Emit(ctx context.Context, evt domain.Event) error {
	return e.queue.Enqueue(ctx, Delivery{Event: evt, Attempt: 1})
}

// Dispatch runs all handlers registered for evt.Name. Each handler
// executes as an independent unit: its own deadline, its own retries, its
// own dead-letter entry on exhaustion. A failing handler never prevents
// the others from running.
func (e *Engine) Dispatch(ctx context.Context, evt domain.Event) Outcome {
	out := Outcome{EventID: evt.ID.String(), Name: evt.Name}

	e.mu.RLock()
	handlers := e.steps[evt.Name]
	e.mu.RUnlock()

	if len(handlers) == 0 {
		// Unhandled events are logged, not errors: producers may deploy
		// ahead of consumers.
		out.Unhandled = true
		e.log.InfoContext(ctx, "event unhandled",
			slog.String("event", evt.Name),
			slog.String("event_id", out.EventID),
			slog.String("correlation_id", evt.CorrelationID),
		)
		return out
	}

	for _, h := range handlers {
		out.Results = append(out.Results, e.runStep(ctx, evt, h))
	}
	return out
}

// runStep executes one handler with the retry/dead-letter policy:
// transient failures retry with bounded exponential backoff up to the
// attempt ceiling; permanent failures and genuine conflicts dead-letter
// immediately; deadline expiry counts as a failed attempt and stays
// redelivery-eligible.
func (e *Engine) runStep(ctx context.Context, evt domain.Event, h step) HandlerResult {
	res := HandlerResult{Handler: h.name}

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		if delay := backoffDelay(e.cfg.BaseBackoff, e.cfg.MaxBackoff, attempt); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				res.Err = ctx.Err()
				return res
			}
		}

		err := e.invoke(ctx, evt, h)
		if err == nil {
			res.Err = nil
			return res
		}
		res.Err = err

		if errors.Is(err, domain.ErrConflict) {
			// The handler already treats "target state reached" as a no-op
			// success, so a surfaced conflict is a genuinely illegal
			// transition. Retrying cannot fix it.
			e.log.WarnContext(ctx, "step conflict",
				slog.String("event", evt.Name),
				slog.String("handler", h.name),
				slog.String("error", err.Error()),
			)
			break
		}
		if provider.IsPermanent(err) {
			e.log.ErrorContext(ctx, "step failed permanently",
				slog.String("event", evt.Name),
				slog.String("handler", h.name),
				slog.String("error", err.Error()),
			)
			break
		}

		e.log.WarnContext(ctx, "step failed, will retry",
			slog.String("event", evt.Name),
			slog.String("handler", h.name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", e.cfg.MaxAttempts),
			slog.String("error", err.Error()),
		)

		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
	}

	// Retries exhausted (or short-circuited): surface to the dead-letter
	// sink rather than silently dropping.
	if sinkErr := e.sink.Add(ctx, evt, h.name, res.Attempts, res.Err); sinkErr != nil {
		e.log.ErrorContext(ctx, "dead-letter sink failed",
			slog.String("event", evt.Name),
			slog.String("handler", h.name),
			slog.String("error", sinkErr.Error()),
		)
		res.Err = fmt.Errorf("dead-letter: %w (cause: %v)", sinkErr, res.Err)
		return res
	}
	res.DeadLettered = true

	e.log.ErrorContext(ctx, "event dead-lettered",
		slog.String("event", evt.Name),
		slog.String("event_id", evt.ID.String()),
		slog.String("correlation_id", evt.CorrelationID),
		slog.String("handler", h.name),
		slog.Int("attempts", res.Attempts),
		slog.String("error", res.Err.Error()),
	)
	return res
}

// invoke runs one handler attempt under the configured deadline. Expiry is
// reported as context.DeadlineExceeded, which the retry loop treats like
// any other transient failure.
func (e *Engine) invoke(ctx context.Context, evt domain.Event, h step) error {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.HandlerDeadline)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- h.fn(attemptCtx, evt)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return attemptCtx.Err()
	}
}

// Start launches the worker pool consuming the bus. It blocks until ctx is
// cancelled and all workers have drained their current delivery.
func (e *Engine) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			e.runWorker(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (e *Engine) runWorker(ctx context.Context, worker int) {
	log := e.log.With(slog.Int("worker", worker))
	for {
		d, err := e.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				log.Error("dequeue failed", slog.String("error", err.Error()))
			}
			return
		}

		out := e.Dispatch(ctx, d.Event)
		if out.Failed() {
			continue
		}
		log.DebugContext(ctx, "event processed",
			slog.String("event", d.Event.Name),
			slog.String("event_id", out.EventID),
			slog.String("correlation_id", d.Event.CorrelationID),
		)
	}
}
