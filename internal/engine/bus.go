package engine

import (
	"context"

	"github.com/coursekit/coursekit-backend/internal/domain"
)

// Delivery is one at-least-once delivery of an event. Attempt starts at 1
// and counts redeliveries of the same event to the same dispatch.
type Delivery struct {
	Event   domain.Event
	Attempt int
}

// Queue is the event bus the worker pool pulls from. The in-process
// implementation below stands in for the external at-least-once bus; the
// engine assumes nothing beyond Enqueue/Dequeue semantics and tolerates
// redelivery and reordering.
type Queue interface {
	Enqueue(ctx context.Context, d Delivery) error
	// Dequeue blocks until a delivery is available or ctx is done.
	Dequeue(ctx context.Context) (Delivery, error)
}

// MemoryQueue is a buffered in-process Queue.
type MemoryQueue struct {
	ch chan Delivery
}

// NewMemoryQueue creates a queue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{ch: make(chan Delivery, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, d Delivery) error {
	select {
	case q.ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Delivery, error) {
	select {
	case d := <-q.ch:
		return d, nil
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

// Len returns the number of queued deliveries.
func (q *MemoryQueue) Len() int { return len(q.ch) }
