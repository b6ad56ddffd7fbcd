package cronrunner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type ctxKey struct{}

func TestRunnerPassesBaseContext(t *testing.T) {
	base := context.WithValue(context.Background(), ctxKey{}, "base")
	r := New(zap.NewNop(), base)

	got := make(chan any, 1)
	_, err := r.Add("* * * * * *", func(ctx context.Context) {
		select {
		case got <- ctx.Value(ctxKey{}):
		default:
		}
	})
	require.NoError(t, err)
	r.Start()
	defer r.Stop()

	select {
	case v := <-got:
		assert.Equal(t, "base", v)
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestRunnerRejectsBadSpec(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Add("*/5 * * * *", func(context.Context) {})
	assert.Error(t, err)
	assert.Empty(t, r.Entries())
}

func TestRunnerSkipsOverlappingRuns(t *testing.T) {
	r := New(zap.NewNop(), context.Background())

	var running, maxRunning, runs atomic.Int32
	_, err := r.Add("* * * * * *", func(context.Context) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			cur := maxRunning.Load()
			if n <= cur || maxRunning.CompareAndSwap(cur, n) {
				break
			}
		}
		runs.Add(1)
		time.Sleep(2500 * time.Millisecond)
	})
	require.NoError(t, err)
	r.Start()
	time.Sleep(4 * time.Second)
	r.Stop()

	assert.GreaterOrEqual(t, runs.Load(), int32(1))
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestRunnerRecoversPanics(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := New(zap.New(core), context.Background())

	var calls atomic.Int32
	_, err := r.Add("* * * * * *", func(context.Context) {
		calls.Add(1)
		panic(errors.New("boom"))
	})
	require.NoError(t, err)
	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	assert.NotZero(t, logs.FilterMessage("panic").Len())
}

func TestRunnerKeepsFiringAfterPanic(t *testing.T) {
	r := New(zap.NewNop(), context.Background())

	var calls atomic.Int32
	_, err := r.Add("* * * * * *", func(context.Context) {
		if calls.Add(1) == 1 {
			panic("first tick fails")
		}
	})
	require.NoError(t, err)
	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 6*time.Second, 50*time.Millisecond)
}
