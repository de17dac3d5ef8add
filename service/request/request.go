// Package request implements the state machine tracking one unit of work and
// its goroutine backed asynchronous variant.
package request

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/construct/internal/clock"
	"github.com/viant/construct/internal/idgen"
	"github.com/viant/construct/model/types"
)

// NoTimeout makes Get block until a terminal state is reached
const NoTimeout time.Duration = -1

// Work is the unit of work executed by a request
type Work func(ctx context.Context, req *Request) (interface{}, error)

// Result carries either a value or an error across goroutines
type Result struct {
	Value interface{}
	Err   error
}

// Request is a pending or completed unit of work
type Request struct {
	ID          string
	mux         sync.RWMutex
	status      types.Status
	value       interface{}
	err         error
	queue       []interface{}
	enabled     bool
	ready       bool
	skipped     bool
	attempts    int
	startedAt   *time.Time
	completedAt *time.Time
	done        chan struct{}
}

// Option customises a request
type Option func(r *Request)

// WithAttempts carries over previous attempt count, used when retrying
func WithAttempts(attempts int) Option {
	return func(r *Request) {
		r.attempts = attempts
	}
}

// WithEnabled sets the enabled flag
func WithEnabled(enabled bool) Option {
	return func(r *Request) {
		r.enabled = enabled
	}
}

// New creates a pending request
func New(options ...Option) *Request {
	ret := &Request{
		ID:      idgen.New(),
		status:  types.StatusPending,
		enabled: true,
		ready:   true,
		done:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Status returns current status
func (r *Request) Status() types.Status {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.status
}

// Attempts returns number of executions
func (r *Request) Attempts() int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.attempts
}

// Enabled returns enabled flag
func (r *Request) Enabled() bool {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.enabled
}

// SetEnabled toggles whether a pending request may start
func (r *Request) SetEnabled(enabled bool) {
	r.mux.Lock()
	r.enabled = enabled
	r.mux.Unlock()
}

// Ready returns ready flag
func (r *Request) Ready() bool {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.ready
}

// SetReady toggles whether a pending request is ready to start
func (r *Request) SetReady(ready bool) {
	r.mux.Lock()
	r.ready = ready
	r.mux.Unlock()
}

// CanStart returns true for an enabled, ready, pending request
func (r *Request) CanStart() bool {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.status == types.StatusPending && r.enabled && r.ready
}

// Skipped returns true if request completed without running
func (r *Request) Skipped() bool {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.skipped
}

// IsDone returns true once a terminal state was reached
func (r *Request) IsDone() bool {
	return r.Status().IsTerminal()
}

// Done is closed once a terminal state was reached
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// StartedAt returns start time
func (r *Request) StartedAt() *time.Time {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.startedAt
}

// CompletedAt returns completion time
func (r *Request) CompletedAt() *time.Time {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.completedAt
}

// SetStatus moves the request forward
func (r *Request) SetStatus(status types.Status) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.setStatus(status)
}

func (r *Request) setStatus(status types.Status) error {
	if r.status == status && !status.IsTerminal() {
		return nil
	}
	if !r.status.CanMoveTo(status) {
		return fmt.Errorf("%w: request %v can not move from %v to %v", types.ErrConstruct, r.ID, r.status, status)
	}
	now := clock.Now()
	if status == types.StatusRunning {
		r.startedAt = &now
		r.attempts++
	}
	r.status = status
	if status.IsTerminal() {
		r.completedAt = &now
		close(r.done)
	}
	return nil
}

// SetValue completes the request successfully
func (r *Request) SetValue(value interface{}) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.setStatus(types.StatusSuccess); err != nil {
		return err
	}
	r.value = value
	return nil
}

// SetException fails the request
func (r *Request) SetException(err error) error {
	if err == nil {
		return fmt.Errorf("%w: nil exception", types.ErrConstruct)
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	if sErr := r.setStatus(types.StatusFailed); sErr != nil {
		return sErr
	}
	r.err = err
	return nil
}

// Skip completes the request successfully without a value
func (r *Request) Skip() error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.setStatus(types.StatusSuccess); err != nil {
		return err
	}
	r.skipped = true
	return nil
}

// Exception returns stored error
func (r *Request) Exception() error {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.err
}

// Value returns stored value
func (r *Request) Value() interface{} {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.value
}

// Result returns value/error sum once terminal
func (r *Request) Result() (Result, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	if !r.status.IsTerminal() {
		return Result{}, false
	}
	return Result{Value: r.value, Err: r.err}, true
}

// Push appends a partial result
func (r *Request) Push(value interface{}) {
	r.mux.Lock()
	r.queue = append(r.queue, value)
	r.mux.Unlock()
}

// Pop removes the oldest partial result
func (r *Request) Pop() (interface{}, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if len(r.queue) == 0 {
		return nil, false
	}
	ret := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return ret, true
}

// Len returns number of queued partial results
func (r *Request) Len() int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return len(r.queue)
}

// Execute runs work on the calling goroutine and records the outcome
func (r *Request) Execute(ctx context.Context, work Work) error {
	if !r.CanStart() {
		return fmt.Errorf("%w: request %v can not start in status %v", types.ErrConstruct, r.ID, r.Status())
	}
	if err := r.SetStatus(types.StatusRunning); err != nil {
		return err
	}
	value, err := work(ctx, r)
	return r.complete(Result{Value: value, Err: err})
}

func (r *Request) complete(result Result) error {
	if result.Err != nil {
		return r.SetException(result.Err)
	}
	return r.SetValue(result.Value)
}

// Get waits up to timeout for a terminal state, returns the value or re-raises
// the stored error; ErrTimeout does not fail the request
func (r *Request) Get(timeout time.Duration) (interface{}, error) {
	switch {
	case timeout < 0:
		<-r.done
	case timeout == 0:
		select {
		case <-r.done:
		default:
			return nil, fmt.Errorf("%w: request %v not ready", types.ErrTimeout, r.ID)
		}
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-r.done:
		case <-timer.C:
			return nil, fmt.Errorf("%w: request %v not ready after %v", types.ErrTimeout, r.ID, timeout)
		}
	}
	result, _ := r.Result()
	return result.Value, result.Err
}

// Wait blocks until terminal state or ctx is done
func (r *Request) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", types.ErrTimeout, ctx.Err())
	}
	result, _ := r.Result()
	return result.Value, result.Err
}
