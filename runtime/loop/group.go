package loop

import (
	"errors"
	"fmt"

	"github.com/viant/construct/model/graph"
	"github.com/viant/construct/model/types"
	"github.com/viant/construct/service/request"
)

// Execution binds a task to the request of its latest attempt
type Execution struct {
	Task    *graph.Task
	Request *request.Request
	thread  *request.Thread
	call    *graph.Call
	outputs map[string]interface{}
	settled bool
	waiting waitReason
}

// Group is the runtime aggregate of tasks sharing one priority
type Group struct {
	Priority   int
	executions []*Execution
	index      map[string]*Execution
	started    bool
}

func newGroup(priority int) *Group {
	return &Group{Priority: priority, index: map[string]*Execution{}}
}

func (g *Group) add(task *graph.Task) *Execution {
	ret := &Execution{Task: task, Request: request.New()}
	g.executions = append(g.executions, ret)
	g.index[task.ID] = ret
	return ret
}

// Executions returns executions in declaration order
func (g *Group) Executions() []*Execution {
	return append([]*Execution(nil), g.executions...)
}

// Lookup returns execution by task ID
func (g *Group) Lookup(taskID string) *Execution {
	return g.index[taskID]
}

// Status derives aggregate status from member requests: failed, success,
// waiting or running. Done is not a status of its own; use Done to check
// whether every member reached a terminal state, failed ones included.
func (g *Group) Status() types.Status {
	var success, pending int
	for _, execution := range g.executions {
		switch execution.Request.Status() {
		case types.StatusFailed:
			return types.StatusFailed
		case types.StatusSuccess:
			success++
		case types.StatusPending:
			pending++
		}
	}
	switch {
	case success == len(g.executions):
		return types.StatusSuccess
	case pending == len(g.executions):
		return types.StatusWaiting
	}
	return types.StatusRunning
}

// Waiting returns true when no member request has started
func (g *Group) Waiting() bool {
	return g.Status() == types.StatusWaiting
}

// Running returns true when some request started and none failed yet
func (g *Group) Running() bool {
	return g.Status() == types.StatusRunning
}

// Success returns true iff every member request succeeded
func (g *Group) Success() bool {
	return g.Status() == types.StatusSuccess
}

// Failed returns true iff at least one member request failed
func (g *Group) Failed() bool {
	return g.Status() == types.StatusFailed
}

// Done returns true iff every member request reached a terminal state
func (g *Group) Done() bool {
	for _, execution := range g.executions {
		if !execution.Request.IsDone() {
			return false
		}
	}
	return true
}

// Err joins failures of member requests in declaration order
func (g *Group) Err() error {
	var errs []error
	for _, execution := range g.executions {
		if err := execution.Request.Exception(); err != nil {
			errs = append(errs, fmt.Errorf("task %v: %w", execution.Task.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Reset replaces failed requests with fresh pending ones that carry over
// the attempt count, returning the reset executions
func (g *Group) Reset() []*Execution {
	var ret []*Execution
	for _, execution := range g.executions {
		if execution.Request.Status() != types.StatusFailed {
			continue
		}
		execution.reset()
		ret = append(ret, execution)
	}
	return ret
}

func (e *Execution) reset() {
	e.Request = request.New(request.WithAttempts(e.Request.Attempts()))
	e.thread = nil
	e.call = nil
	e.outputs = nil
	e.settled = false
	e.waiting = waitNone
}
