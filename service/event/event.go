// Package event relays signal sends onto a messaging queue so that slow
// observers (log shipping, UIs) consume them off the dispatching goroutine.
package event

import (
	"time"

	"github.com/viant/construct/internal/clock"
)

// Context identifies the origin of an event
type Context struct {
	RunID       string `json:"runID,omitempty"`
	Action      string `json:"action,omitempty"`
	TaskID      string `json:"taskID,omitempty"`
	Channel     string `json:"channel,omitempty"`
	Signal      string `json:"signal"`
	Status      string `json:"status,omitempty"`
	TimeTakenMs int    `json:"timeTakenMs,omitempty"`
}

// Event wraps relayed data with its context
type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata"`
	Data      T                      `json:"data"`
}

// NewEvent creates an event
func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
