package request

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sethvargo/go-retry"
	"github.com/viant/construct/internal/logging"
	"github.com/viant/construct/model/types"
)

// BackoffFunc returns a fresh backoff for one thread run, nil means no retries
type BackoffFunc func() retry.Backoff

// Thread executes a request's work on a dedicated goroutine
type Thread struct {
	request  *Request
	work     Work
	backoff  BackoffFunc
	logger   logging.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
	started  chan struct{}
	stopped  chan struct{}
	tries    int32
	startMux sync.Mutex
	isStart  bool
}

// ThreadOption customises a thread
type ThreadOption func(t *Thread)

// WithBackoff enables retries inside the thread
func WithBackoff(backoff BackoffFunc) ThreadOption {
	return func(t *Thread) {
		t.backoff = backoff
	}
}

// WithLogger sets thread logger
func WithLogger(logger logging.Logger) ThreadOption {
	return func(t *Thread) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewThread creates a thread bound to request
func NewThread(ctx context.Context, request *Request, work Work, options ...ThreadOption) *Thread {
	if ctx == nil {
		ctx = context.Background()
	}
	ret := &Thread{
		request: request,
		work:    work,
		logger:  logging.Nop(),
		started: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	ret.ctx, ret.cancel = context.WithCancel(ctx)
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Start launches the worker goroutine, subsequent calls are no-op
func (t *Thread) Start() error {
	t.startMux.Lock()
	defer t.startMux.Unlock()
	if t.isStart {
		return nil
	}
	select {
	case <-t.stopped:
		return fmt.Errorf("%w: thread for request %v already stopped", types.ErrConstruct, t.request.ID)
	default:
	}
	if !t.request.CanStart() {
		return fmt.Errorf("%w: request %v can not start in status %v", types.ErrConstruct, t.request.ID, t.request.Status())
	}
	if err := t.request.SetStatus(types.StatusRunning); err != nil {
		return err
	}
	t.isStart = true
	close(t.started)
	go t.run()
	return nil
}

// Started returns true once the goroutine was launched
func (t *Thread) Started() bool {
	select {
	case <-t.started:
		return true
	default:
		return false
	}
}

// Stopped returns true once the goroutine exited
func (t *Thread) Stopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// Tries returns the number of times work was invoked
func (t *Thread) Tries() int {
	return int(atomic.LoadInt32(&t.tries))
}

// Stop cancels the work context and waits for the goroutine to exit
func (t *Thread) Stop() {
	t.cancel()
	t.startMux.Lock()
	started := t.isStart
	if !started {
		t.once.Do(func() { close(t.stopped) })
	}
	t.startMux.Unlock()
	if !started {
		if t.request.Status() == types.StatusPending {
			_ = t.request.SetException(fmt.Errorf("request %v: %w", t.request.ID, context.Canceled))
		}
		return
	}
	<-t.stopped
}

func (t *Thread) run() {
	defer t.once.Do(func() { close(t.stopped) })
	value, err := t.execute()
	if err != nil {
		t.logger.Debug("request thread failed", "request", t.request.ID, "tries", t.Tries(), "error", err)
	}
	if cErr := t.request.complete(Result{Value: value, Err: err}); cErr != nil {
		t.logger.Error("request thread could not record outcome", "request", t.request.ID, "error", cErr)
	}
}

func (t *Thread) execute() (value interface{}, err error) {
	invoke := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&t.tries, 1)
		return t.work(ctx, t.request)
	}
	if t.backoff == nil {
		return invoke(t.ctx)
	}
	backoff := t.backoff()
	if backoff == nil {
		return invoke(t.ctx)
	}
	err = retry.Do(t.ctx, backoff, func(ctx context.Context) error {
		var callErr error
		value, callErr = invoke(ctx)
		if callErr == nil {
			return nil
		}
		if errors.Is(callErr, context.Canceled) || ctx.Err() != nil {
			return callErr
		}
		return retry.RetryableError(callErr)
	})
	if err != nil {
		value = nil
	}
	return value, err
}
