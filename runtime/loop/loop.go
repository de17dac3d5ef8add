// Package loop drives the tasks of one action invocation. Tasks are
// partitioned into groups by priority; within a group the loop repeatedly
// dispatches the first ready task in declaration order on the calling
// goroutine, while async tasks run on their own request thread.
package loop

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/viant/construct/internal/idgen"
	"github.com/viant/construct/internal/logging"
	"github.com/viant/construct/model"
	"github.com/viant/construct/model/graph"
	"github.com/viant/construct/model/pipeline"
	"github.com/viant/construct/model/types"
	"github.com/viant/construct/policy"
	"github.com/viant/construct/progress"
	"github.com/viant/construct/runtime/scope"
	"github.com/viant/construct/service/request"
	"github.com/viant/construct/service/signal"
	"github.com/viant/construct/tracing"
)

// Lifecycle signal names sent on the loop channel with a single *Event argument
const (
	SignalActionBefore = "action.before"
	SignalActionAfter  = "action.after"
	SignalGroupBefore  = "group.before"
	SignalGroupAfter   = "group.after"
	SignalGroupStatus  = "group.status"
	SignalTaskBefore   = "task.before"
	SignalTaskAfter    = "task.after"
	SignalTaskSkipped  = "task.skipped"
)

// Event describes a lifecycle change
type Event struct {
	Name     string
	RunID    string
	Action   string
	Priority int
	Task     string
	Status   types.Status
	Attempts int
	Skipped  bool
	Err      error
	Elapsed  time.Duration
}

type waitReason int

const (
	waitNone waitReason = iota
	waitDependency
	waitRequire
	waitReady
)

func (r waitReason) String() string {
	switch r {
	case waitDependency:
		return "dependency"
	case waitRequire:
		return "required input"
	case waitReady:
		return "readiness"
	}
	return "nothing"
}

type decisionKind int

const (
	decideWait decisionKind = iota
	decideRun
	decideSkip
	decideFail
)

type decision struct {
	kind   decisionKind
	reason waitReason
	args   map[string]interface{}
	err    error
}

// Loop executes one action invocation; it is not safe for concurrent use
type Loop struct {
	runID      string
	action     *model.Action
	kwargs     map[string]interface{}
	context    *pipeline.Context
	channel    *signal.Channel
	logger     logging.Logger
	scope      *scope.Scope
	groups     []*Group
	byTask     map[string]*Execution
	running    types.Stack[*Execution]
	prepared   bool
	prepareErr error
	started    bool
	finished   bool
}

// Option customises a loop
type Option func(l *Loop)

// WithContext sets pipeline context used for availability and value resolution
func WithContext(ctx *pipeline.Context) Option {
	return func(l *Loop) {
		l.context = ctx
	}
}

// WithChannel sets channel receiving lifecycle signals
func WithChannel(channel *signal.Channel) Option {
	return func(l *Loop) {
		l.channel = channel
	}
}

// WithLogger sets logger
func WithLogger(logger logging.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRunID overrides generated run ID
func WithRunID(runID string) Option {
	return func(l *Loop) {
		l.runID = runID
	}
}

// New creates a loop for action invoked with kwargs
func New(action *model.Action, kwargs map[string]interface{}, options ...Option) *Loop {
	ret := &Loop{
		runID:  idgen.New(),
		action: action,
		kwargs: map[string]interface{}{},
		logger: logging.Nop(),
		byTask: map[string]*Execution{},
	}
	for k, v := range kwargs {
		ret.kwargs[k] = v
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.context == nil {
		ret.context = pipeline.New()
	}
	groups := map[int]*Group{}
	for _, task := range action.Tasks {
		group, ok := groups[task.Priority]
		if !ok {
			group = newGroup(task.Priority)
			groups[task.Priority] = group
			ret.groups = append(ret.groups, group)
		}
		ret.byTask[task.ID] = group.add(task)
	}
	sort.SliceStable(ret.groups, func(i, j int) bool {
		return ret.groups[i].Priority < ret.groups[j].Priority
	})
	return ret
}

// RunID returns run identifier
func (l *Loop) RunID() string {
	return l.runID
}

// Action returns executed action
func (l *Loop) Action() *model.Action {
	return l.action
}

// Groups returns groups in ascending priority
func (l *Loop) Groups() []*Group {
	return append([]*Group(nil), l.groups...)
}

// Group returns group by priority
func (l *Loop) Group(priority int) (*Group, bool) {
	for _, group := range l.groups {
		if group.Priority == priority {
			return group, true
		}
	}
	return nil, false
}

// Request returns the latest request of a task, nil if unknown
func (l *Loop) Request(taskID string) *request.Request {
	if execution, ok := l.byTask[taskID]; ok {
		return execution.Request
	}
	return nil
}

// Scope returns value scope, nil before the loop started
func (l *Loop) Scope() *scope.Scope {
	return l.scope
}

// Outputs returns bound task outputs
func (l *Loop) Outputs() map[string]interface{} {
	if l.scope == nil {
		return map[string]interface{}{}
	}
	return l.scope.Outputs()
}

// Err returns the first failed group error
func (l *Loop) Err() error {
	for _, group := range l.groups {
		if err := group.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Run executes every group in ascending priority. A failed group does not
// stop later groups; the first group error is returned.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.prepare(ctx); err != nil {
		return err
	}
	ctx, span := tracing.StartAction(ctx, l.runID, l.action.ID)
	l.begin(ctx)
	var first error
	for _, group := range l.groups {
		err := l.runGroup(ctx, group)
		if ctxErr := ctx.Err(); ctxErr != nil {
			l.end(context.WithoutCancel(ctx), ctxErr)
			tracing.EndSpan(span, ctxErr)
			return ctxErr
		}
		if err != nil && first == nil {
			first = err
		}
	}
	l.end(ctx, first)
	tracing.EndSpan(span, first)
	return first
}

// RunGroup executes the group of the given priority to completion
func (l *Loop) RunGroup(ctx context.Context, priority int) error {
	if err := l.prepare(ctx); err != nil {
		return err
	}
	group, ok := l.Group(priority)
	if !ok {
		return fmt.Errorf("%w: action %v has no group with priority %v", types.ErrConstruct, l.action.ID, priority)
	}
	return l.runGroup(ctx, group)
}

// RunNext performs a single step: dispatching, skipping or failing one task,
// or settling finished async work. It returns false once nothing is left.
func (l *Loop) RunNext(ctx context.Context) (bool, error) {
	if err := l.prepare(ctx); err != nil {
		return false, err
	}
	l.begin(ctx)
	for _, group := range l.groups {
		if isComplete(group) {
			continue
		}
		if !group.started {
			l.groupBegin(ctx, group)
		}
		progressed, err := l.step(ctx, group)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				l.end(context.WithoutCancel(ctx), ctxErr)
			}
			return false, err
		}
		if isComplete(group) {
			l.groupEnd(ctx, group)
		}
		if progressed {
			return true, nil
		}
	}
	l.end(ctx, l.Err())
	return false, nil
}

// RetryGroup re-dispatches failed tasks of group until they succeed or were
// executed maxAttempts times in total; succeeded tasks are left untouched
func (l *Loop) RetryGroup(ctx context.Context, group *Group, maxAttempts int) error {
	if err := l.prepare(ctx); err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("%w: nil group", types.ErrConstruct)
	}
	for {
		var candidates []*Execution
		for _, execution := range group.executions {
			if execution.Request.Status() == types.StatusFailed && execution.Request.Attempts() < maxAttempts {
				candidates = append(candidates, execution)
			}
		}
		if len(candidates) == 0 {
			break
		}
		before := attemptsOf(candidates)
		for _, execution := range candidates {
			execution.reset()
		}
		progress.UpdateCtx(ctx, progress.Delta{Failed: -len(candidates), Pending: len(candidates)})
		l.logger.Info("retrying group", "action", l.action.ID, "priority", group.Priority, "tasks", len(candidates))
		_ = l.runGroup(ctx, group)
		if err := ctx.Err(); err != nil {
			return err
		}
		if attemptsOf(candidates) == before {
			break
		}
	}
	return group.Err()
}

// Stop cancels running async tasks and waits for their threads to exit
func (l *Loop) Stop() {
	for _, execution := range l.running.Items() {
		if execution.thread != nil {
			execution.thread.Stop()
		}
	}
}

func attemptsOf(executions []*Execution) int {
	ret := 0
	for _, execution := range executions {
		ret += execution.Request.Attempts()
	}
	return ret
}

func isComplete(group *Group) bool {
	for _, execution := range group.executions {
		if !execution.settled {
			return false
		}
	}
	return true
}

func (l *Loop) prepare(ctx context.Context) error {
	if l.prepared {
		return l.prepareErr
	}
	l.prepared = true
	if !l.action.IsAvailable(l.context) {
		l.prepareErr = fmt.Errorf("%w: %v in %v", types.ErrActionUnavailable, l.action.ID, l.context.Path())
		return l.prepareErr
	}
	values := l.kwargs
	if len(l.action.Params) > 0 {
		validated, err := l.action.Params.Validate(l.kwargs)
		if err != nil {
			l.prepareErr = fmt.Errorf("action %v: %w", l.action.ID, err)
			return l.prepareErr
		}
		values = validated
	}
	l.scope = scope.New(l.context, values)
	total := len(l.byTask)
	progress.UpdateCtx(ctx, progress.Delta{Total: total, Pending: total})
	return nil
}

func (l *Loop) runGroup(ctx context.Context, group *Group) error {
	ctx, span := tracing.StartGroup(ctx, l.action.ID, group.Priority)
	l.groupBegin(ctx, group)
	for {
		progressed, err := l.step(ctx, group)
		if err != nil {
			tracing.EndSpan(span, err)
			return err
		}
		if !progressed {
			break
		}
	}
	err := group.Err()
	l.groupEnd(ctx, group)
	tracing.EndSpan(span, err)
	return err
}

func (l *Loop) step(ctx context.Context, group *Group) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for _, execution := range group.executions {
		if execution.thread != nil && !execution.settled && execution.Request.IsDone() {
			l.settle(ctx, group, execution)
			return true, nil
		}
	}
	for _, execution := range group.executions {
		if execution.Request.Status() != types.StatusPending {
			continue
		}
		next := l.evaluate(group, execution)
		switch next.kind {
		case decideWait:
			execution.waiting = next.reason
		case decideSkip:
			l.skip(ctx, group, execution)
			return true, nil
		case decideFail:
			l.fail(ctx, group, execution, next.err)
			return true, nil
		case decideRun:
			l.dispatch(ctx, group, execution, next.args)
			return true, nil
		}
	}
	if execution := l.firstRunning(group); execution != nil {
		select {
		case <-execution.Request.Done():
		case <-ctx.Done():
			return false, ctx.Err()
		}
		return true, nil
	}
	return l.resolveStall(ctx, group), nil
}

func (l *Loop) firstRunning(group *Group) *Execution {
	for _, execution := range l.running.Items() {
		if group.index[execution.Task.ID] == execution && !execution.settled {
			return execution
		}
	}
	return nil
}

// resolveStall skips tasks waiting for readiness first, then fails tasks
// whose inputs or dependencies can no longer be satisfied
func (l *Loop) resolveStall(ctx context.Context, group *Group) bool {
	var stalled []*Execution
	for _, execution := range group.executions {
		if execution.Request.Status() == types.StatusPending {
			stalled = append(stalled, execution)
		}
	}
	if len(stalled) == 0 {
		return false
	}
	skipped := false
	for _, execution := range stalled {
		if execution.waiting == waitReady {
			l.skip(ctx, group, execution)
			skipped = true
		}
	}
	if skipped {
		return true
	}
	for _, execution := range stalled {
		l.fail(ctx, group, execution, fmt.Errorf("%w: task %v blocked on %v", types.ErrParameter, execution.Task.ID, execution.waiting))
	}
	return true
}

func (l *Loop) evaluate(group *Group, execution *Execution) decision {
	task := execution.Task
	if !execution.Request.Enabled() || !task.IsAvailable(l.scope.Context()) {
		return decision{kind: decideSkip}
	}
	if !execution.Request.Ready() {
		return decision{kind: decideWait, reason: waitReady}
	}
	for _, dep := range task.DependsOn {
		depExecution, ok := l.byTask[dep]
		if !ok {
			return decision{kind: decideFail, err: fmt.Errorf("%w: task %v depends on unknown task %v", types.ErrParameter, task.ID, dep)}
		}
		if !depExecution.settled {
			return decision{kind: decideWait, reason: waitDependency}
		}
		if depExecution.Request.Status() == types.StatusFailed {
			return decision{kind: decideFail, err: fmt.Errorf("%w: task %v dependency %v failed", types.ErrParameter, task.ID, dep)}
		}
	}
	args := map[string]interface{}{}
	for _, name := range task.Requires {
		if value, ok := l.scope.Lookup(name); ok {
			args[name] = value
			continue
		}
		if value, ok := task.Defaults[name]; ok {
			args[name] = value
			continue
		}
		if hasPendingProducer(group, name, execution) {
			return decision{kind: decideWait, reason: waitRequire}
		}
		return decision{kind: decideFail, err: fmt.Errorf("%w: task %v requires %q which is unavailable", types.ErrParameter, task.ID, name)}
	}
	if task.ReadyWhen != nil && !task.ReadyWhen(l.scope) {
		return decision{kind: decideWait, reason: waitReady}
	}
	if task.Skip != nil && task.Skip(l.scope) {
		return decision{kind: decideSkip}
	}
	return decision{kind: decideRun, args: args}
}

func hasPendingProducer(group *Group, name string, self *Execution) bool {
	for _, candidate := range group.executions {
		if candidate == self || candidate.settled {
			continue
		}
		for _, output := range candidate.Task.Returns {
			if output == name {
				return true
			}
		}
	}
	return false
}

func (l *Loop) dispatch(ctx context.Context, group *Group, execution *Execution, args map[string]interface{}) {
	task := execution.Task
	if len(task.Params) > 0 {
		values := map[string]interface{}{}
		for _, spec := range task.Params {
			if value, ok := args[spec.Name]; ok {
				values[spec.Name] = value
			} else if value, ok := l.scope.Lookup(spec.Name); ok {
				values[spec.Name] = value
			}
		}
		validated, err := task.Params.Validate(values)
		if err != nil {
			l.fail(ctx, group, execution, fmt.Errorf("task %v: %w", task.ID, err))
			return
		}
		for k, v := range validated {
			args[k] = v
		}
	}
	call := &graph.Call{Task: task, Args: args, Scope: l.scope, Request: execution.Request}
	execution.call = call
	if task.Extract != nil {
		extra, err := task.Extract(ctx, call)
		if err != nil {
			l.fail(ctx, group, execution, fmt.Errorf("%w: task %v: %w", types.ErrExtractor, task.ID, err))
			return
		}
		for k, v := range extra {
			args[k] = v
		}
	}
	qualified := l.action.ID + "." + task.ID
	if !policy.FromContext(ctx).Approve(ctx, qualified, args) {
		l.fail(ctx, group, execution, fmt.Errorf("%w: %v denied by policy", types.ErrActionUnavailable, qualified))
		return
	}
	l.emit(ctx, l.event(SignalTaskBefore, group, execution))
	progress.UpdateCtx(ctx, progress.Delta{Pending: -1, Running: 1})
	l.logger.Debug("task dispatched", "action", l.action.ID, "task", task.ID, "async", task.Async)
	work := l.work(execution)
	if !task.Async {
		if err := execution.Request.Execute(ctx, work); err != nil {
			l.logger.Error("task outcome not recorded", "action", l.action.ID, "task", task.ID, "error", err)
			if !execution.Request.IsDone() {
				_ = execution.Request.SetException(err)
			}
		}
		l.settle(ctx, group, execution)
		return
	}
	thread := request.NewThread(ctx, execution.Request, work,
		request.WithBackoff(task.Retry.Backoff),
		request.WithLogger(l.logger))
	execution.thread = thread
	if err := thread.Start(); err != nil {
		_ = execution.Request.SetException(err)
		l.settle(ctx, group, execution)
		return
	}
	l.running.Push(execution)
	if !task.Blocking {
		return
	}
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = request.NoTimeout
	}
	_, _ = execution.Request.Get(timeout)
	if !execution.Request.IsDone() {
		l.logger.Debug("async task still running", "action", l.action.ID, "task", task.ID, "timeout", timeout)
		return
	}
	l.settle(ctx, group, execution)
}

func (l *Loop) work(execution *Execution) request.Work {
	task, call := execution.Task, execution.call
	return func(ctx context.Context, req *request.Request) (interface{}, error) {
		ctx, span := tracing.StartTask(ctx, l.action.ID, task.ID, req.Attempts())
		value, err := task.Fn(ctx, call)
		if err == nil {
			execution.outputs, err = outputsOf(ctx, call, value)
			if err != nil {
				value = nil
			}
		}
		tracing.EndSpan(span, err)
		return value, err
	}
}

// outputsOf maps a result to the task's declared return names
func outputsOf(ctx context.Context, call *graph.Call, value interface{}) (map[string]interface{}, error) {
	task := call.Task
	if task.Inject != nil {
		ret, err := task.Inject(ctx, call, value)
		if err != nil {
			return nil, fmt.Errorf("%w: task %v: %w", types.ErrInjector, task.ID, err)
		}
		for _, name := range task.Returns {
			if _, ok := ret[name]; !ok {
				return nil, fmt.Errorf("%w: task %v did not inject %q", types.ErrInjector, task.ID, name)
			}
		}
		return ret, nil
	}
	switch len(task.Returns) {
	case 0:
		return nil, nil
	case 1:
		return map[string]interface{}{task.Returns[0]: value}, nil
	}
	values, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: task %v returned %T, expected map with %v", types.ErrInjector, task.ID, value, task.Returns)
	}
	ret := make(map[string]interface{}, len(task.Returns))
	for _, name := range task.Returns {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%w: task %v result has no %q", types.ErrInjector, task.ID, name)
		}
		ret[name] = v
	}
	return ret, nil
}

func (l *Loop) settle(ctx context.Context, group *Group, execution *Execution) {
	if execution.settled {
		return
	}
	execution.settled = true
	l.running.Remove(execution)
	delta := progress.Delta{Running: -1}
	if execution.Request.Status() == types.StatusSuccess {
		for name, value := range execution.outputs {
			l.scope.Bind(name, value)
		}
		delta.Completed = 1
	} else {
		delta.Failed = 1
		l.logger.Warn("task failed", "action", l.action.ID, "task", execution.Task.ID,
			"attempts", execution.Request.Attempts(), "error", execution.Request.Exception())
	}
	progress.UpdateCtx(ctx, delta)
	l.emit(ctx, l.event(SignalTaskAfter, group, execution))
}

func (l *Loop) skip(ctx context.Context, group *Group, execution *Execution) {
	if err := execution.Request.Skip(); err != nil {
		l.logger.Error("task could not be skipped", "action", l.action.ID, "task", execution.Task.ID, "error", err)
	}
	execution.settled = true
	progress.UpdateCtx(ctx, progress.Delta{Pending: -1, Skipped: 1})
	l.logger.Debug("task skipped", "action", l.action.ID, "task", execution.Task.ID)
	l.emit(ctx, l.event(SignalTaskSkipped, group, execution))
}

// fail fails a task that was never dispatched
func (l *Loop) fail(ctx context.Context, group *Group, execution *Execution, err error) {
	if sErr := execution.Request.SetException(err); sErr != nil {
		l.logger.Error("task could not be failed", "action", l.action.ID, "task", execution.Task.ID, "error", sErr)
	}
	execution.settled = true
	progress.UpdateCtx(ctx, progress.Delta{Pending: -1, Failed: 1})
	l.logger.Warn("task not dispatched", "action", l.action.ID, "task", execution.Task.ID, "error", err)
	l.emit(ctx, l.event(SignalTaskAfter, group, execution))
}

func (l *Loop) begin(ctx context.Context) {
	if l.started {
		return
	}
	l.started = true
	l.emit(ctx, &Event{Name: SignalActionBefore, RunID: l.runID, Action: l.action.ID, Status: types.StatusRunning})
}

func (l *Loop) end(ctx context.Context, err error) {
	if l.finished {
		return
	}
	l.finished = true
	status := types.StatusSuccess
	if err != nil {
		status = types.StatusFailed
	}
	l.emit(ctx, &Event{Name: SignalActionAfter, RunID: l.runID, Action: l.action.ID, Status: status, Err: err})
}

func (l *Loop) groupBegin(ctx context.Context, group *Group) {
	group.started = true
	l.emit(ctx, l.event(SignalGroupBefore, group, nil))
}

func (l *Loop) groupEnd(ctx context.Context, group *Group) {
	group.started = false
	l.emit(ctx, l.event(SignalGroupStatus, group, nil))
	l.emit(ctx, l.event(SignalGroupAfter, group, nil))
}

func (l *Loop) event(name string, group *Group, execution *Execution) *Event {
	ret := &Event{Name: name, RunID: l.runID, Action: l.action.ID, Priority: group.Priority}
	if execution == nil {
		ret.Status = group.Status()
		ret.Err = group.Err()
		return ret
	}
	req := execution.Request
	ret.Task = execution.Task.ID
	ret.Status = req.Status()
	ret.Attempts = req.Attempts()
	ret.Skipped = req.Skipped()
	ret.Err = req.Exception()
	if startedAt, completedAt := req.StartedAt(), req.CompletedAt(); startedAt != nil && completedAt != nil {
		ret.Elapsed = completedAt.Sub(*startedAt)
	}
	return ret
}

func (l *Loop) emit(ctx context.Context, event *Event) {
	if l.channel == nil {
		return
	}
	if _, err := l.channel.Send(ctx, event.Name, event); err != nil {
		l.logger.Warn("signal subscriber failed", "signal", event.Name, "error", err)
	}
}
