package event

import (
	"context"

	"github.com/viant/construct/internal/clock"
	"github.com/viant/construct/service/messaging"
)

// Publisher publishes and consumes events of one payload type
type Publisher[T any] struct {
	queue messaging.Queue[Event[T]]
}

// NewPublisher creates a publisher
func NewPublisher[T any](queue messaging.Queue[Event[T]]) *Publisher[T] {
	return &Publisher[T]{
		queue: queue,
	}
}

// Publish stamps and enqueues event
func (p *Publisher[T]) Publish(ctx context.Context, event *Event[T]) error {
	event.CreatedAt = clock.Now()
	return p.queue.Publish(ctx, event)
}

// Offer stamps and enqueues event without waiting when the queue is a
// messaging.Offerer, otherwise it falls back to Publish
func (p *Publisher[T]) Offer(ctx context.Context, event *Event[T]) error {
	event.CreatedAt = clock.Now()
	if offerer, ok := p.queue.(messaging.Offerer[Event[T]]); ok {
		return offerer.Offer(event)
	}
	return p.queue.Publish(ctx, event)
}

// Consume returns the next acknowledged event
func (p *Publisher[T]) Consume(ctx context.Context) (*Event[T], error) {
	msg, err := p.queue.Consume(ctx)
	if err != nil || msg == nil {
		return nil, err
	}
	if err = msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}
