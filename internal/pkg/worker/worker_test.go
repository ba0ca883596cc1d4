package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerRunsJobsUntilCancelled(t *testing.T) {
	var fast, failing atomic.Int32
	r := NewRunner(nil,
		Job{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) (int, error) {
			fast.Add(1)
			return 1, nil
		}},
		Job{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) (int, error) {
			failing.Add(1)
			return 0, errors.New("boom")
		}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	assert.Greater(t, fast.Load(), int32(2))
	assert.Greater(t, failing.Load(), int32(2), "a failing pass does not stop the job")
}

func TestWakeTriggersImmediatePass(t *testing.T) {
	ran := make(chan struct{}, 1)
	r := NewRunner(nil, Job{Name: "slow", Interval: time.Hour, Run: func(context.Context) (int, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return 0, nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Wake()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run after Wake")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestNotifyWithoutRedis(t *testing.T) {
	assert.NotPanics(t, func() { Notify(context.Background(), nil) })
}
