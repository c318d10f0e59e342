package task_test

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandasAtHome/TimeTask/internal/config"
	"github.com/pandasAtHome/TimeTask/internal/logging"
	"github.com/pandasAtHome/TimeTask/internal/task"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newRunner(t *testing.T, concurrency int, tasks ...task.Task) (*task.Runner, *syncBuffer) {
	t.Helper()
	r := task.NewRegistry()
	require.NoError(t, r.Register(tasks...))

	out := &syncBuffer{}
	cfg := &config.Config{Run: config.RunConfig{Concurrency: concurrency}}
	return task.NewRunner(r, cfg, task.WithOutput(out), task.WithLogger(logging.Discard())), out
}

func TestRunner_Run(t *testing.T) {
	var seen *task.RunContext
	runner, _ := newRunner(t, 1, task.Task{
		Path: "test/capture",
		Handler: func(_ context.Context, rc *task.RunContext) error {
			seen = rc
			return nil
		},
	})

	outcome := runner.Run(context.Background(), task.Invocation{
		Path:   "/Test/capture",
		Params: url.Values{"a": {"1"}},
	})
	require.NoError(t, outcome.Err)

	require.NotNil(t, seen)
	assert.Equal(t, "test/capture", seen.Path)
	assert.Equal(t, "1", seen.Param("a", ""))
	assert.Equal(t, outcome.RequestID, seen.RequestID)
	assert.NotNil(t, seen.Container)
	assert.NotNil(t, seen.Logger)
	assert.False(t, seen.CreatedAt.IsZero())
}

func TestRunner_Errors(t *testing.T) {
	boom := errors.New("boom")
	runner, _ := newRunner(t, 1,
		task.Task{Path: "fail/error", Handler: func(context.Context, *task.RunContext) error { return boom }},
		task.Task{Path: "fail/panic", Handler: func(context.Context, *task.RunContext) error { panic("kaput") }},
	)
	ctx := context.Background()

	outcome := runner.Run(ctx, task.Invocation{Path: "fail/error"})
	assert.ErrorIs(t, outcome.Err, boom)

	outcome = runner.Run(ctx, task.Invocation{Path: "fail/panic"})
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "kaput")

	outcome = runner.Run(ctx, task.Invocation{Path: "nope/x"})
	assert.ErrorIs(t, outcome.Err, task.ErrNotFound)
}

func TestRunner_Chain(t *testing.T) {
	var order []string
	runner, _ := newRunner(t, 1,
		task.Task{Path: "test/first", Handler: func(_ context.Context, rc *task.RunContext) error {
			order = append(order, rc.Path)
			rc.Chain("/Test/second", url.Values{"from": {rc.Path}})
			return nil
		}},
		task.Task{Path: "test/second", Handler: func(_ context.Context, rc *task.RunContext) error {
			order = append(order, rc.Path+"<-"+rc.Param("from", ""))
			return nil
		}},
		task.Task{Path: "test/loop", Handler: func(_ context.Context, rc *task.RunContext) error {
			rc.Chain("test/loop", nil)
			return nil
		}},
	)

	outcome := runner.Run(context.Background(), task.Invocation{Path: "test/first"})
	require.NoError(t, outcome.Err)
	assert.Equal(t, []string{"test/first", "test/second<-test/first"}, order)

	outcome = runner.Run(context.Background(), task.Invocation{Path: "test/loop"})
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "chain deeper than")
}

func TestRunner_RunAll(t *testing.T) {
	var running, peak atomic.Int32
	slow := func(_ context.Context, rc *task.RunContext) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		if rc.Param("fail", "") != "" {
			return errors.New("failed on purpose")
		}
		return nil
	}
	runner, _ := newRunner(t, 2, task.Task{Path: "test/slow", Handler: slow})

	invs := []task.Invocation{
		{Path: "test/slow"},
		{Path: "test/slow", Params: url.Values{"fail": {"1"}}},
		{Path: "test/slow"},
		{Path: "test/slow"},
	}
	outcomes, err := runner.RunAll(context.Background(), invs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed on purpose")

	require.Len(t, outcomes, 4)
	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
	assert.NoError(t, outcomes[3].Err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.NotEqual(t, outcomes[0].RequestID, outcomes[2].RequestID)
}

func TestRunner_RunAllValidatesFirst(t *testing.T) {
	var calls atomic.Int32
	runner, _ := newRunner(t, 4, task.Task{Path: "test/count", Handler: func(context.Context, *task.RunContext) error {
		calls.Add(1)
		return nil
	}})

	_, err := runner.RunAll(context.Background(), []task.Invocation{{Path: "test/count"}, {Path: "missing/task"}})
	assert.ErrorIs(t, err, task.ErrNotFound)
	assert.Zero(t, calls.Load())
}
