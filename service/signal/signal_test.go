package signal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/construct/model/types"
)

type recorder struct {
	name  string
	calls *[]string
}

func (r *recorder) Receive(ctx context.Context, args ...interface{}) (interface{}, error) {
	*r.calls = append(*r.calls, r.name)
	return r.name, nil
}

func TestSignal_Send(t *testing.T) {
	for _, count := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("%d subscribers", count), func(t *testing.T) {
			sig := New("build")
			var calls []string
			for i := 0; i < count; i++ {
				_, err := sig.Connect(&recorder{name: fmt.Sprintf("s%d", i), calls: &calls})
				require.NoError(t, err)
			}
			results, err := sig.Send(context.Background(), "arg")
			require.NoError(t, err)
			assert.Len(t, results, count)
			assert.Len(t, calls, count)
		})
	}
}

func TestSignal_Priority(t *testing.T) {
	sig := New("ordered")
	var calls []string
	_, _ = sig.Connect(&recorder{name: "late", calls: &calls}, WithPriority(10))
	_, _ = sig.Connect(&recorder{name: "first", calls: &calls}, WithPriority(-1))
	_, _ = sig.Connect(&recorder{name: "a", calls: &calls})
	_, _ = sig.Connect(&recorder{name: "b", calls: &calls})
	_, err := sig.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "a", "b", "late"}, calls)
}

func TestSignal_Connect(t *testing.T) {
	var testCases = []struct {
		description string
		connect     func(sig *Signal) error
		expectErr   bool
	}{
		{
			description: "same pointer twice",
			connect: func(sig *Signal) error {
				var calls []string
				sub := &recorder{name: "x", calls: &calls}
				if _, err := sig.Connect(sub); err != nil {
					return err
				}
				_, err := sig.Connect(sub)
				return err
			},
			expectErr: true,
		},
		{
			description: "same key twice",
			connect: func(sig *Signal) error {
				fn := SubscriberFunc(func(ctx context.Context, args ...interface{}) (interface{}, error) { return nil, nil })
				if _, err := sig.Connect(fn, WithKey("k")); err != nil {
					return err
				}
				_, err := sig.Connect(fn, WithKey("k"))
				return err
			},
			expectErr: true,
		},
		{
			description: "functions are distinct subscriptions",
			connect: func(sig *Signal) error {
				fn := SubscriberFunc(func(ctx context.Context, args ...interface{}) (interface{}, error) { return nil, nil })
				if _, err := sig.Connect(fn); err != nil {
					return err
				}
				_, err := sig.Connect(fn)
				return err
			},
		},
		{
			description: "signal subscribed to itself",
			connect: func(sig *Signal) error {
				_, err := sig.Connect(sig)
				return err
			},
			expectErr: true,
		},
		{
			description: "nil subscriber",
			connect: func(sig *Signal) error {
				_, err := sig.Connect(nil)
				return err
			},
			expectErr: true,
		},
	}
	for _, testCase := range testCases {
		err := testCase.connect(New("test"))
		if testCase.expectErr {
			assert.ErrorIs(t, err, types.ErrConnect, testCase.description)
			continue
		}
		assert.NoError(t, err, testCase.description)
	}
}

func TestSignal_Disconnect(t *testing.T) {
	sig := New("test")
	var calls []string
	handle, err := sig.Connect(&recorder{name: "x", calls: &calls})
	require.NoError(t, err)
	assert.True(t, sig.Disconnect(handle))
	assert.False(t, sig.Disconnect(handle))
	_, err = sig.Send(context.Background())
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestSignal_SelfDisconnect(t *testing.T) {
	sig := New("test")
	var calls []string
	var handle Handle
	var err error
	handle, err = sig.Connect(SubscriberFunc(func(ctx context.Context, args ...interface{}) (interface{}, error) {
		calls = append(calls, "once")
		assert.True(t, sig.Disconnect(handle))
		return nil, nil
	}))
	require.NoError(t, err)
	_, err = sig.Connect(&recorder{name: "after", calls: &calls})
	require.NoError(t, err)

	_, err = sig.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"once", "after"}, calls)
	assert.Equal(t, 1, sig.Len())

	calls = nil
	_, err = sig.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, calls)
}

func TestSignal_AggregatesErrors(t *testing.T) {
	sig := New("failing")
	boom := errors.New("boom")
	var calls []string
	_, _ = sig.Connect(SubscriberFunc(func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return nil, boom
	}))
	_, _ = sig.Connect(&recorder{name: "after", calls: &calls})
	results, err := sig.Send(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, "failing", dispatchErr.Signal)
	assert.Equal(t, []string{"after"}, calls)
	assert.Equal(t, []interface{}{"after"}, results)
}

func TestSignal_Chain(t *testing.T) {
	a, b, c := New("a"), New("b"), New("c")
	var calls []string
	_, _ = c.Connect(&recorder{name: "c", calls: &calls})
	_, err := a.Chain(b)
	require.NoError(t, err)
	_, err = b.Chain(c)
	require.NoError(t, err)
	_, err = c.Chain(a)
	assert.ErrorIs(t, err, types.ErrConnect)
	_, err = a.Chain(a)
	assert.ErrorIs(t, err, types.ErrConnect)

	_, err = a.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, calls)
}

func TestNameOf(t *testing.T) {
	channel := NewBus().Default()
	var names []string
	_, err := channel.Route("task.*", Listener(func(ctx context.Context, args ...interface{}) {
		names = append(names, NameOf(ctx))
	}))
	require.NoError(t, err)
	_, err = channel.Send(context.Background(), "task.before")
	require.NoError(t, err)
	_, err = channel.Signal("task.after").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"task.before", "task.after"}, names)
	assert.Equal(t, "", NameOf(context.Background()))
}

func TestSignal_Pipe(t *testing.T) {
	sig := New("pipe")
	_, _ = sig.Connect(SubscriberFunc(func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return args[0].(int) + 1, nil
	}))
	_, _ = sig.Connect(SubscriberFunc(func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return args[0].(int) * 10, nil
	}))
	result, err := sig.Pipe(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 20, result)

	empty, err := New("empty").Pipe(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, empty)
}
