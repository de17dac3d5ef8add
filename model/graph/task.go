package graph

import (
	"context"
	"time"

	"github.com/viant/construct/model/param"
	"github.com/viant/construct/model/pipeline"
	"github.com/viant/construct/runtime/scope"
	"github.com/viant/construct/service/request"
)

type (
	// Func is the work of a task
	Func func(ctx context.Context, call *Call) (interface{}, error)

	// Predicate evaluates against current scope
	Predicate func(s *scope.Scope) bool

	// Availability evaluates against pipeline context
	Availability func(ctx *pipeline.Context) bool

	// Extractor derives additional arguments before a task runs
	Extractor func(ctx context.Context, call *Call) (map[string]interface{}, error)

	// Injector maps a task result to named outputs
	Injector func(ctx context.Context, call *Call, result interface{}) (map[string]interface{}, error)

	// Task declares one step of an action
	Task struct {
		ID          string                 `json:"id,omitempty" yaml:"id,omitempty"`
		Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
		Requires    []string               `json:"requires,omitempty" yaml:"requires,omitempty"`
		Returns     []string               `json:"returns,omitempty" yaml:"returns,omitempty"`
		DependsOn   []string               `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
		Defaults    map[string]interface{} `json:"defaults,omitempty" yaml:"defaults,omitempty"`
		Params      param.Specs            `json:"-" yaml:"-"`
		Priority    int                    `json:"priority,omitempty" yaml:"priority,omitempty"`
		Async       bool                   `json:"async,omitempty" yaml:"async,omitempty"`
		Blocking    bool                   `json:"blocking,omitempty" yaml:"blocking,omitempty"`
		Timeout     time.Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
		Retry       *Retry                 `json:"retry,omitempty" yaml:"retry,omitempty"`
		Skip        Predicate              `json:"-" yaml:"-"`
		ReadyWhen   Predicate              `json:"-" yaml:"-"`
		Available   Availability           `json:"-" yaml:"-"`
		Extract     Extractor              `json:"-" yaml:"-"`
		Inject      Injector               `json:"-" yaml:"-"`
		Fn          Func                   `json:"-" yaml:"-"`
	}

	// Call carries a single task invocation
	Call struct {
		Task    *Task
		Args    map[string]interface{}
		Scope   *scope.Scope
		Request *request.Request
	}
)

// NewTask creates a task
func NewTask(id string, fn Func) *Task {
	return &Task{ID: id, Fn: fn}
}

// WithDescription sets description
func (t *Task) WithDescription(description string) *Task {
	t.Description = description
	return t
}

// WithRequires adds required input names
func (t *Task) WithRequires(names ...string) *Task {
	t.Requires = append(t.Requires, names...)
	return t
}

// WithReturns adds produced output names
func (t *Task) WithReturns(names ...string) *Task {
	t.Returns = append(t.Returns, names...)
	return t
}

// WithDependsOn adds completion only dependencies
func (t *Task) WithDependsOn(taskIDs ...string) *Task {
	t.DependsOn = append(t.DependsOn, taskIDs...)
	return t
}

// WithDefault sets a fallback value for a required input
func (t *Task) WithDefault(name string, value interface{}) *Task {
	if t.Defaults == nil {
		t.Defaults = make(map[string]interface{})
	}
	t.Defaults[name] = value
	return t
}

// WithParams sets task parameter specs, checked at dispatch time
func (t *Task) WithParams(specs ...*param.Spec) *Task {
	t.Params = append(t.Params, specs...)
	return t
}

// WithPriority sets priority; lower priorities run in earlier groups
func (t *Task) WithPriority(priority int) *Task {
	t.Priority = priority
	return t
}

// WithAsync runs the task on its own worker; a blocking task is awaited
// up to timeout, a non blocking one is polled
func (t *Task) WithAsync(blocking bool, timeout time.Duration) *Task {
	t.Async = true
	t.Blocking = blocking
	t.Timeout = timeout
	return t
}

// WithRetry sets in-thread retry policy of an async task
func (t *Task) WithRetry(retry *Retry) *Task {
	t.Retry = retry
	return t
}

// WithSkip sets skip predicate
func (t *Task) WithSkip(predicate Predicate) *Task {
	t.Skip = predicate
	return t
}

// WithReadyWhen sets readiness predicate
func (t *Task) WithReadyWhen(predicate Predicate) *Task {
	t.ReadyWhen = predicate
	return t
}

// WithAvailable sets availability predicate
func (t *Task) WithAvailable(predicate Availability) *Task {
	t.Available = predicate
	return t
}

// WithExtract sets argument extractor
func (t *Task) WithExtract(extractor Extractor) *Task {
	t.Extract = extractor
	return t
}

// WithInject sets output injector
func (t *Task) WithInject(injector Injector) *Task {
	t.Inject = injector
	return t
}

// IsAvailable returns true when no availability predicate is set or it holds
func (t *Task) IsAvailable(ctx *pipeline.Context) bool {
	return t.Available == nil || t.Available(ctx)
}

// Clone creates a copy of a task, predicates and functions are shared
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Requires = append([]string(nil), t.Requires...)
	clone.Returns = append([]string(nil), t.Returns...)
	clone.DependsOn = append([]string(nil), t.DependsOn...)
	clone.Params = append(param.Specs(nil), t.Params...)
	if t.Defaults != nil {
		clone.Defaults = make(map[string]interface{}, len(t.Defaults))
		for k, v := range t.Defaults {
			clone.Defaults[k] = v
		}
	}
	if t.Retry != nil {
		retry := *t.Retry
		clone.Retry = &retry
	}
	return &clone
}

// Arg returns call argument
func (c *Call) Arg(name string) (interface{}, bool) {
	value, ok := c.Args[name]
	return value, ok
}

// Emit pushes a partial result onto the request queue
func (c *Call) Emit(value interface{}) {
	if c.Request != nil {
		c.Request.Push(value)
	}
}
