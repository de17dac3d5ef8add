package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/construct/model/pipeline"
	"github.com/viant/construct/service/request"
)

func TestTask_Builder(t *testing.T) {
	task := NewTask("link", nil).
		WithDescription("links objects").
		WithRequires("binary").
		WithReturns("executable").
		WithDependsOn("compile").
		WithDefault("binary", "a.out").
		WithPriority(2).
		WithAsync(true, time.Second).
		WithRetry(&Retry{Type: RetryFixed, MaxRetries: 2})

	assert.Equal(t, []string{"binary"}, task.Requires)
	assert.Equal(t, []string{"executable"}, task.Returns)
	assert.Equal(t, []string{"compile"}, task.DependsOn)
	assert.Equal(t, "a.out", task.Defaults["binary"])
	assert.True(t, task.Async)
	assert.True(t, task.Blocking)
	assert.Equal(t, time.Second, task.Timeout)
	assert.True(t, task.IsAvailable(pipeline.New()))

	clone := task.Clone()
	clone.Requires[0] = "other"
	clone.Defaults["binary"] = "b.out"
	clone.Retry.MaxRetries = 5
	assert.Equal(t, "binary", task.Requires[0])
	assert.Equal(t, "a.out", task.Defaults["binary"])
	assert.Equal(t, 2, task.Retry.MaxRetries)

	var nilTask *Task
	assert.Nil(t, nilTask.Clone())
}

func TestTask_IsAvailable(t *testing.T) {
	task := NewTask("publish", nil).WithAvailable(func(ctx *pipeline.Context) bool {
		_, ok := ctx.Get("shot")
		return ok
	})
	ctx := pipeline.New()
	assert.False(t, task.IsAvailable(ctx))
	require.NoError(t, ctx.Push("shot", "sh010"))
	assert.True(t, task.IsAvailable(ctx))
}

func TestCall_Emit(t *testing.T) {
	req := request.New()
	call := &Call{Task: NewTask("stream", nil), Request: req, Args: map[string]interface{}{"n": 1}}
	fn := func(ctx context.Context, call *Call) (interface{}, error) {
		call.Emit("partial")
		return "final", nil
	}
	result, err := fn(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, "final", result)
	value, ok := req.Pop()
	assert.True(t, ok)
	assert.Equal(t, "partial", value)
	n, ok := call.Arg("n")
	assert.True(t, ok)
	assert.Equal(t, 1, n)
	(&Call{}).Emit("ignored")
}

func TestRetry_Backoff(t *testing.T) {
	var testCases = []struct {
		description string
		retry       *Retry
		expectNil   bool
		expectSteps []time.Duration
	}{
		{description: "nil policy", expectNil: true},
		{description: "none type", retry: &Retry{Type: RetryNone, MaxRetries: 3}, expectNil: true},
		{description: "zero retries", retry: &Retry{Type: RetryFixed}, expectNil: true},
		{
			description: "fixed",
			retry:       &Retry{Type: RetryFixed, MaxRetries: 2, Delay: "10ms"},
			expectSteps: []time.Duration{10 * time.Millisecond, 10 * time.Millisecond},
		},
		{
			description: "exponential with multiplier and cap",
			retry:       &Retry{Type: RetryExponential, MaxRetries: 4, Delay: "10ms", Multiplier: 3, MaxDelay: "50ms"},
			expectSteps: []time.Duration{10 * time.Millisecond, 30 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond},
		},
	}
	for _, testCase := range testCases {
		backoff := testCase.retry.Backoff()
		if testCase.expectNil {
			assert.Nil(t, backoff, testCase.description)
			continue
		}
		require.NotNil(t, backoff, testCase.description)
		var actual []time.Duration
		for {
			next, stop := backoff.Next()
			if stop {
				break
			}
			actual = append(actual, next)
		}
		assert.Equal(t, testCase.expectSteps, actual, testCase.description)
	}
}
