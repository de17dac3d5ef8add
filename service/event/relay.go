package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/viant/construct/internal/logging"
	"github.com/viant/construct/runtime/loop"
	"github.com/viant/construct/service/messaging"
	"github.com/viant/construct/service/messaging/memory"
	"github.com/viant/construct/service/signal"
)

// Relay forwards sends matching a pattern on a channel to a queue
type Relay struct {
	publisher *Publisher[any]
	listener  *Listener[any]
	logger    logging.Logger
	mux       sync.Mutex
	routes    map[*signal.Channel][]signal.Handle
	dropped   atomic.Int64
}

// RelayOption customises a relay
type RelayOption func(r *Relay)

// WithLogger sets logger
func WithLogger(logger logging.Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithQueue sets the backing queue, an in-memory queue is used by default.
// Relaying runs inside signal dispatch, so a queue that is not a
// messaging.Offerer must not block on Publish.
func WithQueue(queue messaging.Queue[Event[any]]) RelayOption {
	return func(r *Relay) {
		r.publisher = NewPublisher[any](queue)
	}
}

// NewRelay creates a relay
func NewRelay(options ...RelayOption) *Relay {
	ret := &Relay{logger: logging.Nop(), routes: map[*signal.Channel][]signal.Handle{}}
	for _, opt := range options {
		opt(ret)
	}
	if ret.publisher == nil {
		ret.publisher = NewPublisher[any](memory.NewQueue[Event[any]](memory.DefaultConfig()))
	}
	return ret
}

// Publisher returns relay publisher
func (r *Relay) Publisher() *Publisher[any] {
	return r.publisher
}

// Attach relays every send on channel whose name matches pattern
func (r *Relay) Attach(channel *signal.Channel, pattern string) error {
	handle, err := channel.Route(pattern, signal.SubscriberFunc(func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return nil, r.publish(ctx, channel, args)
	}))
	if err != nil {
		return fmt.Errorf("failed to relay %v on %v: %w", pattern, channel.Name(), err)
	}
	r.mux.Lock()
	r.routes[channel] = append(r.routes[channel], handle)
	r.mux.Unlock()
	return nil
}

// Detach removes every route installed on channel
func (r *Relay) Detach(channel *signal.Channel) {
	r.mux.Lock()
	handles := r.routes[channel]
	delete(r.routes, channel)
	r.mux.Unlock()
	for _, handle := range handles {
		channel.Disconnect(handle)
	}
}

func (r *Relay) publish(ctx context.Context, channel *signal.Channel, args []interface{}) error {
	eventContext := &Context{Channel: channel.Name(), Signal: signal.NameOf(ctx)}
	var data interface{} = args
	if len(args) == 1 {
		data = args[0]
	}
	if lifecycle, ok := data.(*loop.Event); ok {
		eventContext.Signal = lifecycle.Name
		eventContext.RunID = lifecycle.RunID
		eventContext.Action = lifecycle.Action
		eventContext.TaskID = lifecycle.Task
		eventContext.Status = lifecycle.Status.String()
		eventContext.TimeTakenMs = int(lifecycle.Elapsed.Milliseconds())
	}
	err := r.publisher.Offer(ctx, NewEvent[any](eventContext, data))
	if errors.Is(err, messaging.ErrFull) {
		r.dropped.Add(1)
		r.logger.Warn("event dropped", "channel", eventContext.Channel, "signal", eventContext.Signal, "error", err)
		return nil
	}
	return err
}

// Dropped returns the number of events not relayed because the queue was full
func (r *Relay) Dropped() int {
	return int(r.dropped.Load())
}

// Listen starts delivering relayed events to handler, replacing a previous listener
func (r *Relay) Listen(ctx context.Context, handler func(*Event[any])) {
	r.mux.Lock()
	previous := r.listener
	r.listener = NewListener[any](r.publisher, handler, r.logger)
	listener := r.listener
	r.mux.Unlock()
	if previous != nil {
		previous.Stop()
	}
	listener.Start(ctx)
}

// Close detaches every channel and stops the listener
func (r *Relay) Close() {
	r.mux.Lock()
	channels := make([]*signal.Channel, 0, len(r.routes))
	for channel := range r.routes {
		channels = append(channels, channel)
	}
	listener := r.listener
	r.listener = nil
	r.mux.Unlock()
	for _, channel := range channels {
		r.Detach(channel)
	}
	if listener != nil {
		listener.Stop()
	}
}
