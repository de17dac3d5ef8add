// Package signal implements synchronous publish/subscribe: ordered,
// handle based subscriptions on named signals grouped into channels that
// forward to each other over an acyclic graph.
//
// Subscriber error policy: every subscriber of a send is invoked, failures are
// collected and returned together as *DispatchError.
package signal

import (
	"context"
	"reflect"
	"strings"

	"github.com/viant/construct/internal/idgen"
)

// DefaultPriority is used when no priority is supplied; lower runs first
const DefaultPriority = 0

// Subscriber receives signal payload
type Subscriber interface {
	Receive(ctx context.Context, args ...interface{}) (interface{}, error)
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc func(ctx context.Context, args ...interface{}) (interface{}, error)

// Receive calls f
func (f SubscriberFunc) Receive(ctx context.Context, args ...interface{}) (interface{}, error) {
	return f(ctx, args...)
}

// Listener adapts a result-less function to Subscriber
func Listener(fn func(ctx context.Context, args ...interface{})) Subscriber {
	return SubscriberFunc(func(ctx context.Context, args ...interface{}) (interface{}, error) {
		fn(ctx, args...)
		return nil, nil
	})
}

// Handle identifies one subscription; forgetting to disconnect keeps the
// subscriber alive for the lifetime of the signal
type Handle string

// ConnectOption customises a subscription
type ConnectOption func(s *subscription)

// WithPriority sets subscriber priority
func WithPriority(priority int) ConnectOption {
	return func(s *subscription) {
		s.priority = priority
	}
}

// WithKey sets subscriber identity used to reject duplicate connects
func WithKey(key string) ConnectOption {
	return func(s *subscription) {
		s.identity = key
	}
}

type subscription struct {
	handle     Handle
	subscriber Subscriber
	priority   int
	identity   interface{}
	pattern    string
}

func newSubscription(subscriber Subscriber, options []ConnectOption) *subscription {
	ret := &subscription{
		handle:     Handle(idgen.New()),
		subscriber: subscriber,
		priority:   DefaultPriority,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.identity == nil {
		ret.identity = identityOf(subscriber)
	}
	return ret
}

// identityOf returns comparable identity; functions are not comparable so
// every SubscriberFunc connect is a distinct subscription
func identityOf(subscriber Subscriber) interface{} {
	rType := reflect.TypeOf(subscriber)
	if rType == nil || !rType.Comparable() {
		return nil
	}
	return subscriber
}

// insert places s after every subscription with lower or equal priority
func insert(list []*subscription, s *subscription) []*subscription {
	index := len(list)
	for i, candidate := range list {
		if candidate.priority > s.priority {
			index = i
			break
		}
	}
	list = append(list, nil)
	copy(list[index+1:], list[index:])
	list[index] = s
	return list
}

func hasIdentity(list []*subscription, identity interface{}) bool {
	if identity == nil {
		return false
	}
	for _, candidate := range list {
		if candidate.identity != nil && candidate.identity == identity {
			return true
		}
	}
	return false
}

func remove(list []*subscription, handle Handle) ([]*subscription, bool) {
	for i, candidate := range list {
		if candidate.handle == handle {
			ret := make([]*subscription, 0, len(list)-1)
			ret = append(ret, list[:i]...)
			return append(ret, list[i+1:]...), true
		}
	}
	return list, false
}

// DispatchError aggregates subscriber failures of a single send
type DispatchError struct {
	Signal string
	Errors []error
}

func (e *DispatchError) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		messages = append(messages, err.Error())
	}
	return "signal " + e.Signal + ": " + strings.Join(messages, "; ")
}

// Unwrap exposes every subscriber error to errors.Is / errors.As
func (e *DispatchError) Unwrap() []error {
	return e.Errors
}
