package task_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandasAtHome/TimeTask/internal/task"
)

func noop(context.Context, *task.RunContext) error { return nil }

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "/Test/print_params", want: "test/print_params"},
		{input: "mysql/count", want: "mysql/count"},
		{input: " /Mongo/count/ ", want: "mongo/count"},
		{input: "/onlyclass", wantErr: true},
		{input: "/a/b/c", wantErr: true},
		{input: "/ /method", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := task.NormalizePath(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, task.ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParams(t *testing.T) {
	params, positional, err := task.ParseParams([]string{"a=1&b=2", "c=x%20y", "verbose", "a=3"})
	require.NoError(t, err)

	assert.Equal(t, url.Values{"a": {"1", "3"}, "b": {"2"}, "c": {"x y"}}, params)
	assert.Equal(t, []string{"verbose"}, positional)

	_, _, err = task.ParseParams([]string{"bad=%zz"})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := task.NewRegistry()
	require.NoError(t, r.Register(
		task.Task{Path: "/Test/params", Handler: noop},
		task.Task{Path: "mysql/count", Handler: noop},
	))

	got, err := r.Resolve("/TEST/params")
	require.NoError(t, err)
	assert.Equal(t, "test/params", got.Path)

	_, err = r.Resolve("nope/x")
	assert.ErrorIs(t, err, task.ErrNotFound)

	_, err = r.Resolve("nope")
	assert.ErrorIs(t, err, task.ErrInvalidPath)

	paths := []string{}
	for _, tk := range r.List() {
		paths = append(paths, tk.Path)
	}
	assert.Equal(t, []string{"mysql/count", "test/params"}, paths)
}

func TestRegistry_RejectsBadTasks(t *testing.T) {
	r := task.NewRegistry()
	require.NoError(t, r.Register(task.Task{Path: "a/b", Handler: noop}))

	assert.Error(t, r.Register(task.Task{Path: "a/b", Handler: noop}), "duplicate")
	assert.Error(t, r.Register(task.Task{Path: "c/d"}), "missing handler")
	assert.ErrorIs(t, r.Register(task.Task{Path: "bad", Handler: noop}), task.ErrInvalidPath)
}

func TestRunContext_Params(t *testing.T) {
	rc := &task.RunContext{Path: "mysql/count", Params: url.Values{"table": {"orders"}}}

	assert.Equal(t, "orders", rc.Param("table", "x"))
	assert.Equal(t, "x", rc.Param("missing", "x"))

	v, err := rc.Require("table")
	require.NoError(t, err)
	assert.Equal(t, "orders", v)

	_, err = rc.Require("key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"key"`)
}
