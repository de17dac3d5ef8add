// Package hub provides the action registry resolving identifiers and aliases
// to runnable actions.
package hub

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/construct/internal/logging"
	"github.com/viant/construct/model"
	"github.com/viant/construct/model/graph"
	"github.com/viant/construct/model/pipeline"
	"github.com/viant/construct/model/types"
	"github.com/viant/construct/service/signal"
)

// Hub registers actions, aliases and connected tasks
type Hub struct {
	mux       sync.RWMutex
	actions   map[string]*model.Action
	aliases   map[string]*model.Alias
	connected map[string][]*graph.Task
	catalog   map[string]*graph.Task
	channel   *signal.Channel
	logger    logging.Logger
}

// Option customises a hub
type Option func(h *Hub)

// WithChannel sets the channel handed to loops of resolved actions
func WithChannel(channel *signal.Channel) Option {
	return func(h *Hub) {
		h.channel = channel
	}
}

// WithLogger sets logger
func WithLogger(logger logging.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

type registerOptions struct {
	replace bool
}

// RegisterOption customises registration
type RegisterOption func(o *registerOptions)

// WithReplace allows replacing an existing registration
func WithReplace() RegisterOption {
	return func(o *registerOptions) {
		o.replace = true
	}
}

// New creates an empty hub
func New(options ...Option) *Hub {
	ret := &Hub{
		actions:   map[string]*model.Action{},
		aliases:   map[string]*model.Alias{},
		connected: map[string][]*graph.Task{},
		catalog:   map[string]*graph.Task{},
		logger:    logging.Nop(),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.channel == nil {
		ret.channel = signal.NewBus().Default()
	}
	return ret
}

// Channel returns hub channel
func (h *Hub) Channel() *signal.Channel {
	return h.channel
}

// Register registers an action
func (h *Hub) Register(action *model.Action, options ...RegisterOption) error {
	if action == nil {
		return fmt.Errorf("%w: nil action", types.ErrRegistration)
	}
	if issues := action.Validate(); len(issues) > 0 {
		return errors.Join(issues...)
	}
	opts := applyRegisterOptions(options)
	h.mux.Lock()
	defer h.mux.Unlock()
	if err := h.ensureFree(action.ID, opts); err != nil {
		return err
	}
	delete(h.aliases, action.ID)
	h.actions[action.ID] = action
	for _, task := range action.Tasks {
		h.catalog[task.ID] = task
	}
	h.logger.Debug("action registered", "action", action.ID, "tasks", len(action.Tasks))
	return nil
}

// RegisterAlias registers an alias; its target may be registered later
func (h *Hub) RegisterAlias(alias *model.Alias, options ...RegisterOption) error {
	if alias == nil {
		return fmt.Errorf("%w: nil alias", types.ErrRegistration)
	}
	if issues := alias.Validate(); len(issues) > 0 {
		return errors.Join(issues...)
	}
	opts := applyRegisterOptions(options)
	h.mux.Lock()
	defer h.mux.Unlock()
	if err := h.ensureFree(alias.ID, opts); err != nil {
		return err
	}
	delete(h.actions, alias.ID)
	h.aliases[alias.ID] = alias
	for _, task := range alias.Tasks {
		h.catalog[task.ID] = task
	}
	h.logger.Debug("alias registered", "alias", alias.ID, "target", alias.Target)
	return nil
}

// Alias registers name as an alias of target running additional tasks
func (h *Hub) Alias(name, target string, tasks ...*graph.Task) error {
	return h.RegisterAlias(&model.Alias{ID: name, Target: target, Tasks: tasks})
}

func (h *Hub) ensureFree(id string, opts *registerOptions) error {
	if opts.replace {
		return nil
	}
	if _, ok := h.actions[id]; ok {
		return fmt.Errorf("%w: action %v already registered", types.ErrRegistration, id)
	}
	if _, ok := h.aliases[id]; ok {
		return fmt.Errorf("%w: alias %v already registered", types.ErrRegistration, id)
	}
	return nil
}

func applyRegisterOptions(options []RegisterOption) *registerOptions {
	ret := &registerOptions{}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Unregister removes an action or alias with its connected tasks
func (h *Hub) Unregister(id string) bool {
	h.mux.Lock()
	defer h.mux.Unlock()
	_, isAction := h.actions[id]
	_, isAlias := h.aliases[id]
	delete(h.actions, id)
	delete(h.aliases, id)
	delete(h.connected, id)
	return isAction || isAlias
}

// Clear removes every registration
func (h *Hub) Clear() {
	h.mux.Lock()
	defer h.mux.Unlock()
	h.actions = map[string]*model.Action{}
	h.aliases = map[string]*model.Alias{}
	h.connected = map[string][]*graph.Task{}
	h.catalog = map[string]*graph.Task{}
}

// Connect appends a task to every invocation of id
func (h *Hub) Connect(id string, task *graph.Task) error {
	if !model.IsIdentifier(id) {
		return fmt.Errorf("%w: %q", types.ErrInvalidIdentifier, id)
	}
	if task == nil || task.ID == "" || task.Fn == nil {
		return fmt.Errorf("%w: invalid task connected to %v", types.ErrConnect, id)
	}
	h.mux.Lock()
	defer h.mux.Unlock()
	for _, candidate := range h.connected[id] {
		if candidate.ID == task.ID {
			return fmt.Errorf("%w: task %v already connected to %v", types.ErrConnect, task.ID, id)
		}
	}
	h.connected[id] = append(h.connected[id], task)
	h.catalog[task.ID] = task
	return nil
}

// Disconnect removes a connected task
func (h *Hub) Disconnect(id, taskID string) bool {
	h.mux.Lock()
	defer h.mux.Unlock()
	tasks := h.connected[id]
	for i, candidate := range tasks {
		if candidate.ID == taskID {
			h.connected[id] = append(tasks[:i:i], tasks[i+1:]...)
			return true
		}
	}
	return false
}

// LookupTask returns a registered or connected task by ID
func (h *Hub) LookupTask(taskID string) (*graph.Task, bool) {
	h.mux.RLock()
	defer h.mux.RUnlock()
	ret, ok := h.catalog[taskID]
	return ret, ok
}

// IDs returns sorted identifiers of actions and aliases
func (h *Hub) IDs() []string {
	h.mux.RLock()
	defer h.mux.RUnlock()
	ret := make([]string, 0, len(h.actions)+len(h.aliases))
	for id := range h.actions {
		ret = append(ret, id)
	}
	for id := range h.aliases {
		ret = append(ret, id)
	}
	sort.Strings(ret)
	return ret
}

// Tasks returns the resolved task list of id
func (h *Hub) Tasks(id string) ([]*graph.Task, error) {
	action, err := h.resolve(id)
	if err != nil {
		return nil, err
	}
	return action.Tasks, nil
}

// GetAction resolves id, following aliases, into a runnable copy of an
// action available in ctx
func (h *Hub) GetAction(id string, ctx *pipeline.Context) (*model.Action, error) {
	action, err := h.resolve(id)
	if err != nil {
		return nil, err
	}
	if !action.IsAvailable(ctx) {
		path := ""
		if ctx != nil {
			path = ctx.Path()
		}
		return nil, fmt.Errorf("%w: %v in %q", types.ErrActionUnavailable, id, path)
	}
	return action, nil
}

// GetActions returns every resolvable action available in ctx, sorted by ID
func (h *Hub) GetActions(ctx *pipeline.Context) []*model.Action {
	var ret []*model.Action
	for _, id := range h.IDs() {
		action, err := h.GetAction(id, ctx)
		if err != nil {
			continue
		}
		ret = append(ret, action)
	}
	return ret
}

func (h *Hub) resolve(id string) (*model.Action, error) {
	h.mux.RLock()
	ret, err := h.resolveLocked(id, map[string]bool{})
	h.mux.RUnlock()
	if err != nil {
		return nil, err
	}
	if issues := ret.Validate(); len(issues) > 0 {
		return nil, errors.Join(issues...)
	}
	return ret, nil
}

// resolveLocked returns target tasks, then alias tasks, then tasks connected to id
func (h *Hub) resolveLocked(id string, visited map[string]bool) (*model.Action, error) {
	if visited[id] {
		return nil, fmt.Errorf("%w: alias cycle at %v", types.ErrInvalidIdentifier, id)
	}
	visited[id] = true
	var ret *model.Action
	if action, ok := h.actions[id]; ok {
		ret = action.Clone()
	} else if alias, ok := h.aliases[id]; ok {
		target, err := h.resolveLocked(alias.Target, visited)
		if err != nil {
			return nil, fmt.Errorf("alias %v: %w", id, err)
		}
		ret = target
		ret.ID = alias.ID
		for _, task := range alias.Tasks {
			ret.Tasks = append(ret.Tasks, task.Clone())
		}
	} else {
		return nil, fmt.Errorf("%w: %q is not registered", types.ErrInvalidIdentifier, id)
	}
	for _, task := range h.connected[id] {
		ret.Tasks = append(ret.Tasks, task.Clone())
	}
	return ret, nil
}
