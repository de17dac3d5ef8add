// Package messaging defines the queue abstraction used to move signal events
// off the dispatching goroutine.
package messaging

import (
	"context"
	"errors"
)

// ErrFull is returned by Offer when a queue has no spare capacity
var ErrFull = errors.New("queue is full")

// Queue represents an abstract message queue for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single message from the queue
	Consume(ctx context.Context) (Message[T], error)
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// T returns the payload of this message
	T() *T

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure in processing this message
	Nack(err error) error
}

// Offerer is implemented by queues that can publish without waiting for capacity
type Offerer[T any] interface {
	// Offer adds a message with payload or returns ErrFull right away
	Offer(t *T) error
}
