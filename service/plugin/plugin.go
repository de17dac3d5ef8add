// Package plugin discovers plugins contributing actions, aliases and
// connected tasks to a hub.
package plugin

import (
	"context"

	"github.com/viant/construct/service/hub"
)

// Plugin contributes registrations to a hub
type Plugin interface {
	Name() string
	Register(h *hub.Hub) error
}

// Discoverer finds plugins in search paths
type Discoverer interface {
	Discover(ctx context.Context, searchPaths []string) ([]Plugin, error)
}

// Func adapts a registration function to a Plugin
type Func struct {
	name     string
	register func(h *hub.Hub) error
}

// Name returns plugin name
func (f *Func) Name() string {
	return f.name
}

// Register calls registration function
func (f *Func) Register(h *hub.Hub) error {
	return f.register(h)
}

// NewFunc creates a code defined plugin
func NewFunc(name string, register func(h *hub.Hub) error) *Func {
	return &Func{name: name, register: register}
}
