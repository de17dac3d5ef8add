package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/construct/internal/idgen"
	"github.com/viant/construct/model"
	"github.com/viant/construct/model/graph"
	"github.com/viant/construct/model/param"
	"github.com/viant/construct/model/pipeline"
	"github.com/viant/construct/model/types"
	"github.com/viant/construct/policy"
	"github.com/viant/construct/progress"
	"github.com/viant/construct/runtime/scope"
	"github.com/viant/construct/service/signal"
)

func value(v interface{}) graph.Func {
	return func(ctx context.Context, call *graph.Call) (interface{}, error) {
		return v, nil
	}
}

func failing(err error) graph.Func {
	return func(ctx context.Context, call *graph.Call) (interface{}, error) {
		return nil, err
	}
}

type recorder struct {
	mux   sync.Mutex
	order []string
}

func (r *recorder) task(id string, result interface{}) graph.Func {
	return func(ctx context.Context, call *graph.Call) (interface{}, error) {
		r.mux.Lock()
		r.order = append(r.order, id)
		r.mux.Unlock()
		return result, nil
	}
}

func TestLoop_Run_BuildScenario(t *testing.T) {
	t.Run("compile fails", func(t *testing.T) {
		linked := false
		action := model.NewAction("build",
			graph.NewTask("compile", failing(errors.New("syntax error"))).WithReturns("binary"),
			graph.NewTask("link", func(ctx context.Context, call *graph.Call) (interface{}, error) {
				linked = true
				return "exe", nil
			}).WithRequires("binary"),
		)
		aLoop := New(action, nil)
		err := aLoop.Run(context.Background())
		require.Error(t, err)
		assert.ErrorContains(t, err, "syntax error")

		compile := aLoop.Request("compile")
		assert.Equal(t, types.StatusFailed, compile.Status())
		assert.Equal(t, 1, compile.Attempts())

		link := aLoop.Request("link")
		assert.False(t, linked)
		assert.Equal(t, types.StatusFailed, link.Status())
		assert.Equal(t, 0, link.Attempts())
		assert.ErrorIs(t, link.Exception(), types.ErrParameter)

		group, ok := aLoop.Group(0)
		require.True(t, ok)
		assert.True(t, group.Failed())
		assert.True(t, group.Done())
		assert.False(t, group.Success())
	})

	t.Run("compile succeeds", func(t *testing.T) {
		var received interface{}
		action := model.NewAction("build",
			graph.NewTask("compile", value("a.out")).WithReturns("binary"),
			graph.NewTask("link", func(ctx context.Context, call *graph.Call) (interface{}, error) {
				received = call.Args["binary"]
				return "exe", nil
			}).WithRequires("binary").WithReturns("executable"),
		)
		aLoop := New(action, nil)
		require.NoError(t, aLoop.Run(context.Background()))
		assert.Equal(t, "a.out", received)
		assert.Equal(t, map[string]interface{}{"binary": "a.out", "executable": "exe"}, aLoop.Outputs())
		group, _ := aLoop.Group(0)
		assert.True(t, group.Success())
		assert.NoError(t, aLoop.Err())
	})
}

func TestLoop_RetryGroup(t *testing.T) {
	t.Run("always failing task", func(t *testing.T) {
		var calls, siblingCalls int32
		action := model.NewAction("publish",
			graph.NewTask("upload", func(ctx context.Context, call *graph.Call) (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				return nil, errors.New("network down")
			}),
			graph.NewTask("thumbnail", func(ctx context.Context, call *graph.Call) (interface{}, error) {
				atomic.AddInt32(&siblingCalls, 1)
				return "thumb.png", nil
			}),
		)
		aLoop := New(action, nil)
		require.Error(t, aLoop.Run(context.Background()))
		group := aLoop.Groups()[0]

		err := aLoop.RetryGroup(context.Background(), group, 3)
		require.Error(t, err)
		assert.ErrorContains(t, err, "network down")
		assert.Equal(t, 3, aLoop.Request("upload").Attempts())
		assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
		assert.EqualValues(t, 1, atomic.LoadInt32(&siblingCalls))
		assert.True(t, group.Failed())
		assert.Equal(t, types.StatusSuccess, aLoop.Request("thumbnail").Status())
	})

	t.Run("recovering task unblocks dependent", func(t *testing.T) {
		var calls int32
		action := model.NewAction("publish",
			graph.NewTask("upload", func(ctx context.Context, call *graph.Call) (interface{}, error) {
				if atomic.AddInt32(&calls, 1) < 3 {
					return nil, errors.New("transient")
				}
				return "s3://bucket/key", nil
			}).WithReturns("location"),
			graph.NewTask("notify", value(true)).WithRequires("location"),
		)
		aLoop := New(action, nil)
		require.Error(t, aLoop.Run(context.Background()))
		assert.Equal(t, 0, aLoop.Request("notify").Attempts())

		group := aLoop.Groups()[0]
		require.NoError(t, aLoop.RetryGroup(context.Background(), group, 5))
		assert.Equal(t, 3, aLoop.Request("upload").Attempts())
		assert.Equal(t, types.StatusSuccess, aLoop.Request("notify").Status())
		assert.True(t, group.Success())
	})

	t.Run("nil group", func(t *testing.T) {
		aLoop := New(model.NewAction("empty"), nil)
		assert.ErrorIs(t, aLoop.RetryGroup(context.Background(), nil, 3), types.ErrConstruct)
	})
}

func TestLoop_Skip(t *testing.T) {
	action := model.NewAction("encode",
		graph.NewTask("render", value("frames")).WithReturns("frames").
			WithSkip(func(s *scope.Scope) bool { return true }),
		graph.NewTask("encode", value("movie")).WithRequires("frames"),
		graph.NewTask("preview", func(ctx context.Context, call *graph.Call) (interface{}, error) {
			return call.Args["frames"], nil
		}).WithRequires("frames").WithDefault("frames", 0),
		graph.NewTask("notify", value("sent")).WithDependsOn("render"),
	)
	aLoop := New(action, nil)
	err := aLoop.Run(context.Background())
	require.Error(t, err)

	render := aLoop.Request("render")
	assert.Equal(t, types.StatusSuccess, render.Status())
	assert.True(t, render.Skipped())
	assert.Nil(t, render.Value())

	encode := aLoop.Request("encode")
	assert.Equal(t, types.StatusFailed, encode.Status())
	assert.ErrorIs(t, encode.Exception(), types.ErrParameter)

	assert.Equal(t, 0, aLoop.Request("preview").Value())
	assert.Equal(t, "sent", aLoop.Request("notify").Value())
	_, ok := aLoop.Outputs()["frames"]
	assert.False(t, ok)
}

func TestLoop_DependsOnFailed(t *testing.T) {
	action := model.NewAction("deploy",
		graph.NewTask("build", failing(errors.New("boom"))),
		graph.NewTask("ship", value("ok")).WithDependsOn("build"),
	)
	aLoop := New(action, nil)
	require.Error(t, aLoop.Run(context.Background()))
	assert.ErrorIs(t, aLoop.Request("ship").Exception(), types.ErrParameter)
	assert.Equal(t, 0, aLoop.Request("ship").Attempts())
}

func TestLoop_ReadyWhen(t *testing.T) {
	rec := &recorder{}
	action := model.NewAction("gate",
		graph.NewTask("wait", rec.task("wait", nil)).
			WithReadyWhen(func(s *scope.Scope) bool { return s.Has("flag") }),
		graph.NewTask("set", rec.task("set", true)).WithReturns("flag"),
		graph.NewTask("never", rec.task("never", nil)).
			WithReadyWhen(func(s *scope.Scope) bool { return false }),
	)
	aLoop := New(action, nil)
	require.NoError(t, aLoop.Run(context.Background()))
	assert.Equal(t, []string{"set", "wait"}, rec.order)
	assert.True(t, aLoop.Request("never").Skipped())
}

func TestLoop_RequestNotReady(t *testing.T) {
	rec := &recorder{}
	action := model.NewAction("build",
		graph.NewTask("compile", rec.task("compile", "a.out")),
		graph.NewTask("lint", rec.task("lint", nil)),
	)
	aLoop := New(action, nil)
	aLoop.Request("compile").SetReady(false)
	done := make(chan error, 1)
	go func() {
		done <- aLoop.Run(context.Background())
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish with a request that is not ready")
	}
	assert.Equal(t, []string{"lint"}, rec.order)
	assert.True(t, aLoop.Request("compile").Skipped())
	assert.Equal(t, 0, aLoop.Request("compile").Attempts())
}

func TestLoop_PriorityGroups(t *testing.T) {
	rec := &recorder{}
	action := model.NewAction("pipeline",
		graph.NewTask("publish", rec.task("publish", nil)).WithPriority(2).WithRequires("movie"),
		graph.NewTask("encode", rec.task("encode", "movie.mov")).WithPriority(1).WithReturns("movie"),
		graph.NewTask("prepare", rec.task("prepare", nil)),
		graph.NewTask("cleanup", rec.task("cleanup", nil)),
	)
	aLoop := New(action, nil)
	require.NoError(t, aLoop.Run(context.Background()))
	assert.Equal(t, []string{"prepare", "cleanup", "encode", "publish"}, rec.order)
	var priorities []int
	for _, group := range aLoop.Groups() {
		priorities = append(priorities, group.Priority)
	}
	assert.Equal(t, []int{0, 1, 2}, priorities)

	assert.ErrorIs(t, aLoop.RunGroup(context.Background(), 7), types.ErrConstruct)
}

func TestLoop_RunNext(t *testing.T) {
	action := model.NewAction("steps",
		graph.NewTask("first", value(1)),
		graph.NewTask("second", value(2)),
	)
	aLoop := New(action, nil)
	ctx := context.Background()

	more, err := aLoop.RunNext(ctx)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, types.StatusSuccess, aLoop.Request("first").Status())
	assert.Equal(t, types.StatusPending, aLoop.Request("second").Status())
	assert.True(t, aLoop.Groups()[0].Running())

	more, err = aLoop.RunNext(ctx)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, types.StatusSuccess, aLoop.Request("second").Status())

	more, err = aLoop.RunNext(ctx)
	require.NoError(t, err)
	assert.False(t, more)
}

func TestLoop_Async(t *testing.T) {
	slow := func(ctx context.Context, call *graph.Call) (interface{}, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var testCases = []struct {
		description string
		task        *graph.Task
	}{
		{description: "fire and forget", task: graph.NewTask("slow", slow).WithAsync(false, 0)},
		{description: "blocking without timeout", task: graph.NewTask("slow", slow).WithAsync(true, 0)},
		{description: "blocking with short timeout", task: graph.NewTask("slow", slow).WithAsync(true, 5*time.Millisecond)},
	}
	for _, testCase := range testCases {
		action := model.NewAction("async",
			testCase.task.WithReturns("result"),
			graph.NewTask("use", func(ctx context.Context, call *graph.Call) (interface{}, error) {
				return call.Args["result"], nil
			}).WithRequires("result"),
		)
		aLoop := New(action, nil)
		require.NoError(t, aLoop.Run(context.Background()), testCase.description)
		assert.Equal(t, "done", aLoop.Request("use").Value(), testCase.description)
		assert.Equal(t, 1, aLoop.Request("slow").Attempts(), testCase.description)
	}
}

func TestLoop_AsyncRetry(t *testing.T) {
	var calls int32
	action := model.NewAction("flaky",
		graph.NewTask("fetch", func(ctx context.Context, call *graph.Call) (interface{}, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nil, errors.New("try again")
			}
			return "payload", nil
		}).WithAsync(true, 0).WithRetry(&graph.Retry{Type: graph.RetryFixed, MaxRetries: 3, Delay: "1ms"}),
	)
	aLoop := New(action, nil)
	require.NoError(t, aLoop.Run(context.Background()))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, 1, aLoop.Request("fetch").Attempts())
	assert.Equal(t, "payload", aLoop.Request("fetch").Value())
}

func TestLoop_Outputs(t *testing.T) {
	var testCases = []struct {
		description string
		task        *graph.Task
		expectErr   error
		expect      map[string]interface{}
	}{
		{
			description: "multiple returns",
			task:        graph.NewTask("size", value(map[string]interface{}{"width": 1920, "height": 1080})).WithReturns("width", "height"),
			expect:      map[string]interface{}{"width": 1920, "height": 1080},
		},
		{
			description: "missing return key",
			task:        graph.NewTask("size", value(map[string]interface{}{"width": 1920})).WithReturns("width", "height"),
			expectErr:   types.ErrInjector,
		},
		{
			description: "non map result",
			task:        graph.NewTask("size", value(1920)).WithReturns("width", "height"),
			expectErr:   types.ErrInjector,
		},
		{
			description: "custom injector",
			task: graph.NewTask("size", value("1920x1080")).WithReturns("resolution").
				WithInject(func(ctx context.Context, call *graph.Call, result interface{}) (map[string]interface{}, error) {
					return map[string]interface{}{"resolution": result}, nil
				}),
			expect: map[string]interface{}{"resolution": "1920x1080"},
		},
		{
			description: "extractor failure",
			task: graph.NewTask("size", value(1)).
				WithExtract(func(ctx context.Context, call *graph.Call) (map[string]interface{}, error) {
					return nil, errors.New("no metadata")
				}),
			expectErr: types.ErrExtractor,
		},
	}
	for _, testCase := range testCases {
		aLoop := New(model.NewAction("probe", testCase.task), nil)
		err := aLoop.Run(context.Background())
		if testCase.expectErr != nil {
			assert.ErrorIs(t, err, testCase.expectErr, testCase.description)
			assert.Empty(t, aLoop.Outputs(), testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, aLoop.Outputs(), testCase.description)
	}
}

func TestLoop_Parameters(t *testing.T) {
	t.Run("action parameters validated before run", func(t *testing.T) {
		action := model.NewAction("render", graph.NewTask("go", value(nil))).
			WithParams(param.New("frames", 0).WithRequired())
		aLoop := New(action, nil)
		err := aLoop.Run(context.Background())
		assert.ErrorIs(t, err, types.ErrValidation)
		assert.Equal(t, types.StatusPending, aLoop.Request("go").Status())
	})

	t.Run("action parameters visible to tasks", func(t *testing.T) {
		var frames interface{}
		action := model.NewAction("render", graph.NewTask("go", func(ctx context.Context, call *graph.Call) (interface{}, error) {
			frames, _ = call.Scope.Lookup("frames")
			return nil, nil
		})).WithParams(param.New("frames", 0).WithRequired())
		require.NoError(t, New(action, map[string]interface{}{"frames": 24}).Run(context.Background()))
		assert.Equal(t, 24, frames)
	})

	t.Run("task parameters fail only that task", func(t *testing.T) {
		action := model.NewAction("render",
			graph.NewTask("encode", value("ok")).WithParams(param.New("quality", "").WithOptions("low", "high")),
			graph.NewTask("upload", value("ok")),
		)
		aLoop := New(action, map[string]interface{}{"quality": "ultra"})
		err := aLoop.Run(context.Background())
		assert.ErrorIs(t, err, types.ErrValidation)
		assert.Equal(t, 0, aLoop.Request("encode").Attempts())
		assert.Equal(t, types.StatusSuccess, aLoop.Request("upload").Status())
	})
}

func TestLoop_Availability(t *testing.T) {
	action := model.NewAction("publish",
		graph.NewTask("shot_only", value(1)).WithAvailable(func(ctx *pipeline.Context) bool {
			_, ok := ctx.Get("shot")
			return ok
		}),
	).WithAvailable(func(ctx *pipeline.Context) bool {
		_, ok := ctx.Get("project")
		return ok
	})
	assert.ErrorIs(t, New(action, nil).Run(context.Background()), types.ErrActionUnavailable)

	ctx, err := pipeline.FromPath("/demo")
	require.NoError(t, err)
	aLoop := New(action, nil, WithContext(ctx))
	require.NoError(t, aLoop.Run(context.Background()))
	assert.True(t, aLoop.Request("shot_only").Skipped())
}

func TestLoop_Policy(t *testing.T) {
	action := model.NewAction("build",
		graph.NewTask("compile", value("a.out")),
		graph.NewTask("test", value("ok")),
	)
	ctx := policy.WithPolicy(context.Background(), &policy.Policy{BlockList: []string{"build.compile"}})
	aLoop := New(action, nil)
	err := aLoop.Run(ctx)
	assert.ErrorIs(t, err, types.ErrActionUnavailable)
	assert.Equal(t, 0, aLoop.Request("compile").Attempts())
	assert.Equal(t, types.StatusSuccess, aLoop.Request("test").Status())
}

func TestLoop_Signals(t *testing.T) {
	channel := signal.NewBus().Default()
	var names []string
	_, err := channel.Route("**", signal.Listener(func(ctx context.Context, args ...interface{}) {
		names = append(names, args[0].(*Event).Name)
	}))
	require.NoError(t, err)
	action := model.NewAction("build",
		graph.NewTask("compile", value("a.out")),
		graph.NewTask("lint", value(nil)).WithSkip(func(s *scope.Scope) bool { return true }),
	)
	require.NoError(t, New(action, nil, WithChannel(channel)).Run(context.Background()))
	assert.Equal(t, []string{
		SignalActionBefore,
		SignalGroupBefore,
		SignalTaskBefore,
		SignalTaskAfter,
		SignalTaskSkipped,
		SignalGroupStatus,
		SignalGroupAfter,
		SignalActionAfter,
	}, names)
}

func TestLoop_Progress(t *testing.T) {
	ctx, tracker := progress.WithNewTracker(context.Background(), "run", "build", nil)
	action := model.NewAction("build",
		graph.NewTask("compile", failing(errors.New("boom"))).WithReturns("binary"),
		graph.NewTask("link", value(nil)).WithRequires("binary"),
		graph.NewTask("docs", value(nil)).WithSkip(func(s *scope.Scope) bool { return true }),
		graph.NewTask("lint", value(nil)),
	)
	require.Error(t, New(action, nil).Run(ctx))
	snapshot := tracker.Snapshot()
	assert.Equal(t, 4, snapshot.TotalTasks)
	assert.Equal(t, 2, snapshot.FailedTasks)
	assert.Equal(t, 1, snapshot.SkippedTasks)
	assert.Equal(t, 1, snapshot.CompletedTasks)
	assert.True(t, snapshot.Done())
}

func TestLoop_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	aLoop := New(model.NewAction("build", graph.NewTask("compile", value(nil))), nil)
	assert.ErrorIs(t, aLoop.Run(ctx), context.Canceled)
	assert.Equal(t, types.StatusPending, aLoop.Request("compile").Status())
}

func TestLoop_CancelledSignalsActionAfter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	channel := signal.NewBus().Default()
	var events []*Event
	_, err := channel.Route("**", signal.Listener(func(ctx context.Context, args ...interface{}) {
		events = append(events, args[0].(*Event))
	}))
	require.NoError(t, err)
	action := model.NewAction("build",
		graph.NewTask("compile", func(ctx context.Context, call *graph.Call) (interface{}, error) {
			cancel()
			return "a.out", nil
		}),
		graph.NewTask("link", value("exe")),
	)
	aLoop := New(action, nil, WithChannel(channel))
	assert.ErrorIs(t, aLoop.Run(ctx), context.Canceled)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, SignalActionAfter, last.Name)
	assert.Equal(t, types.StatusFailed, last.Status)
	assert.ErrorIs(t, last.Err, context.Canceled)
	assert.Equal(t, types.StatusPending, aLoop.Request("link").Status())
}

func TestLoop_RunID(t *testing.T) {
	restore := idgen.Stub("run-42")
	aLoop := New(model.NewAction("build", graph.NewTask("compile", value("exe"))), nil)
	restore()
	assert.Equal(t, "run-42", aLoop.RunID())
	assert.Equal(t, "custom", New(aLoop.Action(), nil, WithRunID("custom")).RunID())
}
