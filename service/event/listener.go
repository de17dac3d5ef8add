package event

import (
	"context"
	"sync"

	"github.com/viant/construct/internal/logging"
)

// Listener consumes events on its own goroutine until stopped
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	logger    logging.Logger
	mux       sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewListener creates a listener
func NewListener[T any](publisher *Publisher[T], handler func(*Event[T]), logger logging.Logger) *Listener[T] {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		logger:    logger,
	}
}

// Start launches the consuming goroutine, subsequent calls are no-op
func (l *Listener[T]) Start(ctx context.Context) {
	l.mux.Lock()
	defer l.mux.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Listener[T]) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		event, err := l.publisher.Consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Warn("failed to consume event", "error", err)
			continue
		}
		if event != nil {
			l.handler(event)
		}
	}
}

// Stop cancels consumption and waits for the goroutine to exit
func (l *Listener[T]) Stop() {
	l.mux.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mux.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
