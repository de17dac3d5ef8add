package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/construct/model/types"
)

// Signal is a named, ordered list of subscribers
type Signal struct {
	name        string
	mux         *sync.RWMutex
	channel     *Channel
	subscribers []*subscription
}

// Name returns signal name
func (s *Signal) Name() string {
	return s.name
}

// Channel returns owning channel or nil for a standalone signal
func (s *Signal) Channel() *Channel {
	return s.channel
}

// Connect subscribes a subscriber
func (s *Signal) Connect(subscriber Subscriber, options ...ConnectOption) (Handle, error) {
	if subscriber == nil {
		return "", fmt.Errorf("%w: nil subscriber on %v", types.ErrConnect, s.name)
	}
	if chained, ok := subscriber.(*Signal); ok && chained.triggers(s.sends) {
		return "", fmt.Errorf("%w: chaining %v to %v creates a cycle", types.ErrConnect, chained.name, s.name)
	}
	sub := newSubscription(subscriber, options)
	s.mux.Lock()
	defer s.mux.Unlock()
	if hasIdentity(s.subscribers, sub.identity) {
		return "", fmt.Errorf("%w: subscriber already connected to %v", types.ErrConnect, s.name)
	}
	s.subscribers = insert(s.subscribers, sub)
	return sub.handle, nil
}

// Disconnect removes subscription, it reports whether handle was found
func (s *Signal) Disconnect(handle Handle) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	var ok bool
	s.subscribers, ok = remove(s.subscribers, handle)
	return ok
}

// Len returns number of subscribers
func (s *Signal) Len() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return len(s.subscribers)
}

// Clear removes all subscribers
func (s *Signal) Clear() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.subscribers = nil
}

// Chain connects other so that sending s also sends other
func (s *Signal) Chain(other *Signal, options ...ConnectOption) (Handle, error) {
	if other == nil {
		return "", fmt.Errorf("%w: nil chained signal on %v", types.ErrConnect, s.name)
	}
	return s.Connect(other, options...)
}

// sends reports whether sending candidate dispatches subscribers connected to s
func (s *Signal) sends(candidate *Signal) bool {
	if candidate == s {
		return true
	}
	if s.channel == nil || candidate.channel == nil || candidate.name != s.name {
		return false
	}
	return candidate.channel.leadsTo(s.channel)
}

// triggers reports whether s, or any signal reachable from it through
// signal subscribers, satisfies sends
func (s *Signal) triggers(sends func(candidate *Signal) bool) bool {
	visited := map[*Signal]bool{}
	pending := []*Signal{s}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		if sends(current) {
			return true
		}
		pending = append(pending, current.downstream()...)
	}
	return false
}

// downstream returns signals subscribed to a send of s, routes and forwarding included
func (s *Signal) downstream() []*Signal {
	subscribers := s.snapshot()
	if s.channel != nil {
		subscribers = s.channel.plan(s.name)
	}
	var ret []*Signal
	for _, sub := range subscribers {
		if chained, ok := sub.subscriber.(*Signal); ok {
			ret = append(ret, chained)
		}
	}
	return ret
}

func (s *Signal) snapshot() []*subscription {
	s.mux.RLock()
	defer s.mux.RUnlock()
	ret := make([]*subscription, len(s.subscribers))
	copy(ret, s.subscribers)
	return ret
}

// Send invokes every subscriber in priority order and returns their results.
// A channel signal is sent through its channel so fuzzy routes and forwarding apply.
func (s *Signal) Send(ctx context.Context, args ...interface{}) ([]interface{}, error) {
	if s.channel != nil {
		return s.channel.Send(ctx, s.name, args...)
	}
	return dispatch(ctx, s.name, s.snapshot(), args)
}

// Receive makes a signal usable as a subscriber of another signal
func (s *Signal) Receive(ctx context.Context, args ...interface{}) (interface{}, error) {
	return s.Send(ctx, args...)
}

// Pipe passes args to the first subscriber and each result to the next one,
// the first error stops the pipe
func (s *Signal) Pipe(ctx context.Context, args ...interface{}) (interface{}, error) {
	subscribers := s.snapshot()
	if len(subscribers) == 0 {
		if len(args) == 1 {
			return args[0], nil
		}
		return nil, nil
	}
	var result interface{}
	for i, sub := range subscribers {
		var err error
		if i == 0 {
			result, err = sub.subscriber.Receive(ctx, args...)
		} else {
			result, err = sub.subscriber.Receive(ctx, result)
		}
		if err != nil {
			return nil, fmt.Errorf("signal %v pipe: %w", s.name, err)
		}
	}
	return result, nil
}

type nameKey struct{}

// NameOf returns the name of the signal being dispatched with ctx
func NameOf(ctx context.Context) string {
	name, _ := ctx.Value(nameKey{}).(string)
	return name
}

func dispatch(ctx context.Context, name string, subscribers []*subscription, args []interface{}) ([]interface{}, error) {
	ctx = context.WithValue(ctx, nameKey{}, name)
	results := make([]interface{}, 0, len(subscribers))
	var errs []error
	for _, sub := range subscribers {
		result, err := sub.subscriber.Receive(ctx, args...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, result)
	}
	if len(errs) > 0 {
		return results, &DispatchError{Signal: name, Errors: errs}
	}
	return results, nil
}

// New creates a standalone signal
func New(name string) *Signal {
	return &Signal{name: name, mux: &sync.RWMutex{}}
}
