// Package metrics exposes Prometheus collectors fed from loop lifecycle signals.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/construct/runtime/loop"
	"github.com/viant/construct/service/signal"
)

const namespace = "construct"

// Collector counts task and action outcomes
type Collector struct {
	tasks        *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	actions      *prometheus.CounterVec
	mux          sync.Mutex
	handles      map[*signal.Channel][]signal.Handle
}

// New creates a collector and registers it with registerer, prometheus.DefaultRegisterer when nil
func New(registerer prometheus.Registerer) (*Collector, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	ret := &Collector{
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "tasks_total", Help: "Total number of settled tasks by final status."},
			[]string{"action", "task", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "task_duration_seconds", Help: "Duration of task executions in seconds.", Buckets: prometheus.DefBuckets},
			[]string{"action", "task"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "actions_total", Help: "Total number of action runs by final status."},
			[]string{"action", "status"},
		),
		handles: map[*signal.Channel][]signal.Handle{},
	}
	var err error
	if ret.tasks, err = register(registerer, ret.tasks); err != nil {
		return nil, err
	}
	if ret.taskDuration, err = register(registerer, ret.taskDuration); err != nil {
		return nil, err
	}
	if ret.actions, err = register(registerer, ret.actions); err != nil {
		return nil, err
	}
	return ret, nil
}

// register registers collector or returns the equivalent one already registered
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) (T, error) {
	err := registerer.Register(collector)
	if err == nil {
		return collector, nil
	}
	var registered prometheus.AlreadyRegisteredError
	if errors.As(err, &registered) {
		if existing, ok := registered.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return collector, fmt.Errorf("failed to register metrics: %w", err)
}

// Tasks returns task counter
func (c *Collector) Tasks() *prometheus.CounterVec {
	return c.tasks
}

// TaskDuration returns task duration histogram
func (c *Collector) TaskDuration() *prometheus.HistogramVec {
	return c.taskDuration
}

// Actions returns action counter
func (c *Collector) Actions() *prometheus.CounterVec {
	return c.actions
}

// Attach subscribes the collector to lifecycle signals of channel
func (c *Collector) Attach(channel *signal.Channel) error {
	var handles []signal.Handle
	for _, name := range []string{loop.SignalTaskAfter, loop.SignalTaskSkipped, loop.SignalActionAfter} {
		handle, err := channel.Connect(name, signal.Listener(c.observe))
		if err != nil {
			for _, handle := range handles {
				channel.Disconnect(handle)
			}
			return err
		}
		handles = append(handles, handle)
	}
	c.mux.Lock()
	c.handles[channel] = append(c.handles[channel], handles...)
	c.mux.Unlock()
	return nil
}

// Detach removes the collector subscriptions from channel
func (c *Collector) Detach(channel *signal.Channel) {
	c.mux.Lock()
	handles := c.handles[channel]
	delete(c.handles, channel)
	c.mux.Unlock()
	for _, handle := range handles {
		channel.Disconnect(handle)
	}
}

func (c *Collector) observe(_ context.Context, args ...interface{}) {
	if len(args) != 1 {
		return
	}
	event, ok := args[0].(*loop.Event)
	if !ok {
		return
	}
	switch event.Name {
	case loop.SignalActionAfter:
		c.actions.WithLabelValues(event.Action, event.Status.String()).Inc()
	case loop.SignalTaskSkipped:
		c.tasks.WithLabelValues(event.Action, event.Task, "skipped").Inc()
	case loop.SignalTaskAfter:
		c.tasks.WithLabelValues(event.Action, event.Task, event.Status.String()).Inc()
		c.taskDuration.WithLabelValues(event.Action, event.Task).Observe(event.Elapsed.Seconds())
	}
}
