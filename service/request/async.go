package request

import (
	"context"
	"time"
)

// AsyncRequest is a request executed by its own Thread
type AsyncRequest struct {
	*Request
	thread *Thread
}

// NewAsync creates an async request, the thread is started lazily by Get or Start
func NewAsync(ctx context.Context, work Work, threadOptions []ThreadOption, options ...Option) *AsyncRequest {
	req := New(options...)
	return &AsyncRequest{
		Request: req,
		thread:  NewThread(ctx, req, work, threadOptions...),
	}
}

// Thread returns backing thread
func (a *AsyncRequest) Thread() *Thread {
	return a.thread
}

// Start launches backing thread
func (a *AsyncRequest) Start() error {
	return a.thread.Start()
}

// Stop cooperatively cancels backing thread
func (a *AsyncRequest) Stop() {
	a.thread.Stop()
}

// Get starts the thread if needed and waits up to timeout
func (a *AsyncRequest) Get(timeout time.Duration) (interface{}, error) {
	if !a.thread.Started() && !a.IsDone() {
		if err := a.thread.Start(); err != nil {
			return nil, err
		}
	}
	return a.Request.Get(timeout)
}
