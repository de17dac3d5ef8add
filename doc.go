// Package construct provides an in-process action engine for pipeline tools.
//
// Actions are named sets of tasks registered in a hub and resolved against a
// pipeline context (project, sequence, shot, ...). Running an action drives
// its tasks through a loop that groups them by priority, resolves required
// inputs, retries async work and reports lifecycle signals on a channel.
//
//	srv, _ := construct.New()
//	_ = srv.Hub().Register(model.NewAction("render", tasks...))
//	ctx, _ := pipeline.FromPath("/show/sq010/sh0040")
//	outputs, err := srv.Run(context.Background(), "render", ctx, nil)
//
// Observers such as Prometheus metrics, an event relay and tracing are
// enabled through Config or options.
package construct
