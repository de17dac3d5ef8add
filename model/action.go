package model

import (
	"fmt"
	"regexp"

	"github.com/viant/construct/model/graph"
	"github.com/viant/construct/model/param"
	"github.com/viant/construct/model/pipeline"
	"github.com/viant/construct/model/types"
)

var identifierExpr = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// IsIdentifier returns true if id is a dotted lower case identifier, e.g. "render.submit"
func IsIdentifier(id string) bool {
	return identifierExpr.MatchString(id)
}

// Action is a named, parameterized unit of work composed of ordered tasks
type Action struct {
	ID          string                           `json:"id" yaml:"id"`
	Label       string                           `json:"label,omitempty" yaml:"label,omitempty"`
	Description string                           `json:"description,omitempty" yaml:"description,omitempty"`
	Params      param.Specs                      `json:"-" yaml:"-"`
	Available   func(ctx *pipeline.Context) bool `json:"-" yaml:"-"`
	Tasks       []*graph.Task                    `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}

// Alias binds an alternate identifier to an action plus connected tasks
type Alias struct {
	ID     string        `json:"id" yaml:"id"`
	Target string        `json:"target" yaml:"target"`
	Tasks  []*graph.Task `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}

// NewAction creates an action
func NewAction(id string, tasks ...*graph.Task) *Action {
	return &Action{ID: id, Tasks: tasks}
}

// WithLabel sets label
func (a *Action) WithLabel(label string) *Action {
	a.Label = label
	return a
}

// WithDescription sets description
func (a *Action) WithDescription(description string) *Action {
	a.Description = description
	return a
}

// WithParams sets action parameter specs
func (a *Action) WithParams(specs ...*param.Spec) *Action {
	a.Params = append(a.Params, specs...)
	return a
}

// WithAvailable sets availability predicate
func (a *Action) WithAvailable(predicate func(ctx *pipeline.Context) bool) *Action {
	a.Available = predicate
	return a
}

// WithTasks appends tasks
func (a *Action) WithTasks(tasks ...*graph.Task) *Action {
	a.Tasks = append(a.Tasks, tasks...)
	return a
}

// IsAvailable returns true when no predicate is set or it holds for ctx
func (a *Action) IsAvailable(ctx *pipeline.Context) bool {
	if a.Available == nil {
		return true
	}
	if ctx == nil {
		ctx = pipeline.New()
	}
	return a.Available(ctx)
}

// LookupTask returns task by ID
func (a *Action) LookupTask(id string) *graph.Task {
	for _, task := range a.Tasks {
		if task.ID == id {
			return task
		}
	}
	return nil
}

// Clone returns a copy with cloned tasks
func (a *Action) Clone() *Action {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Params = append(param.Specs(nil), a.Params...)
	clone.Tasks = make([]*graph.Task, len(a.Tasks))
	for i, task := range a.Tasks {
		clone.Tasks[i] = task.Clone()
	}
	return &clone
}

// Validate performs static validation of the action. The returned slice is
// empty when the action is sound.
func (a *Action) Validate() []error {
	var issues []error
	if !IsIdentifier(a.ID) {
		issues = append(issues, fmt.Errorf("%w: %q", types.ErrInvalidIdentifier, a.ID))
	}
	if err := a.Params.Check(); err != nil {
		issues = append(issues, err)
	}
	tasks := map[string]*graph.Task{}
	for _, task := range a.Tasks {
		if task == nil {
			issues = append(issues, fmt.Errorf("%w: action %v has nil task", types.ErrRegistration, a.ID))
			continue
		}
		if task.ID == "" {
			issues = append(issues, fmt.Errorf("%w: action %v has task without id", types.ErrRegistration, a.ID))
		}
		if _, ok := tasks[task.ID]; ok {
			issues = append(issues, fmt.Errorf("%w: duplicate task id %v", types.ErrRegistration, task.ID))
		}
		if task.Fn == nil {
			issues = append(issues, fmt.Errorf("%w: task %v has no function", types.ErrRegistration, task.ID))
		}
		if err := task.Params.Check(); err != nil {
			issues = append(issues, fmt.Errorf("task %v: %w", task.ID, err))
		}
		tasks[task.ID] = task
	}
	for _, task := range a.Tasks {
		if task == nil {
			continue
		}
		for _, dep := range task.DependsOn {
			depTask, ok := tasks[dep]
			switch {
			case dep == task.ID:
				issues = append(issues, fmt.Errorf("%w: task %v depends on itself", types.ErrRegistration, task.ID))
			case !ok:
				issues = append(issues, fmt.Errorf("%w: task %v depends on unknown task %v", types.ErrRegistration, task.ID, dep))
			case depTask.Priority > task.Priority:
				issues = append(issues, fmt.Errorf("%w: task %v depends on later group task %v", types.ErrRegistration, task.ID, dep))
			}
		}
	}
	if hasCycle(tasks) {
		issues = append(issues, fmt.Errorf("%w: action %v contains cyclic dependencies", types.ErrRegistration, a.ID))
	}
	return issues
}

// hasCycle detects dependsOn back edges with white/grey/black colouring
func hasCycle(tasks map[string]*graph.Task) bool {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	state := map[string]int{}
	var dfs func(string) bool
	dfs = func(id string) bool {
		switch state[id] {
		case grey:
			return true
		case black:
			return false
		}
		state[id] = grey
		if task, ok := tasks[id]; ok {
			for _, dep := range task.DependsOn {
				if dep != id && dfs(dep) {
					return true
				}
			}
		}
		state[id] = black
		return false
	}
	for id := range tasks {
		if state[id] == white && dfs(id) {
			return true
		}
	}
	return false
}

// Validate checks alias identifiers and connected tasks
func (a *Alias) Validate() []error {
	var issues []error
	if !IsIdentifier(a.ID) {
		issues = append(issues, fmt.Errorf("%w: alias %q", types.ErrInvalidIdentifier, a.ID))
	}
	if !IsIdentifier(a.Target) {
		issues = append(issues, fmt.Errorf("%w: alias %v target %q", types.ErrInvalidIdentifier, a.ID, a.Target))
	}
	if a.ID == a.Target {
		issues = append(issues, fmt.Errorf("%w: alias %v targets itself", types.ErrInvalidIdentifier, a.ID))
	}
	for _, task := range a.Tasks {
		if task == nil || task.Fn == nil {
			issues = append(issues, fmt.Errorf("%w: alias %v has invalid connected task", types.ErrRegistration, a.ID))
		}
	}
	return issues
}
