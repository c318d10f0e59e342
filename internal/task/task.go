// Package task holds the task registry and the runner that dispatches
// "class/method" paths to registered handlers.
package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pandasAtHome/TimeTask/internal/container"
	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

var (
	// ErrNotFound is returned when no task is registered under a path.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidPath is returned for paths not of the form "class/method".
	ErrInvalidPath = errors.New("invalid task path")
)

// Handler runs a task.
type Handler func(ctx context.Context, rc *RunContext) error

// Task is a registered unit of work.
type Task struct {
	// Path is the "class/method" name the task is invoked by.
	Path string
	// Summary is a one-line description shown in listings.
	Summary string
	// Description is Markdown shown by "tasks describe".
	Description string
	Handler     Handler
}

// Invocation is a request to run the task at Path.
type Invocation struct {
	Path   string
	Params url.Values
	// Args holds positional arguments that are not key=value pairs.
	Args []string
}

// RunContext carries everything a task run needs. Each run gets its own.
type RunContext struct {
	RequestID uuid.UUID
	CreatedAt time.Time
	Path      string
	Params    url.Values
	Args      []string
	Logger    *slog.Logger
	Container *container.Container
	Out       io.Writer

	next []Invocation
}

// Param returns the first value of key, or def.
func (rc *RunContext) Param(key, def string) string {
	if v := rc.Params.Get(key); v != "" {
		return v
	}
	return def
}

// DryRun reports whether the dry_run parameter is set.
func (rc *RunContext) DryRun() bool {
	dry, _ := strconv.ParseBool(rc.Param("dry_run", "false"))
	return dry
}

// Require returns the first value of key, or a validation error naming it.
func (rc *RunContext) Require(key string) (string, error) {
	if v := strings.TrimSpace(rc.Params.Get(key)); v != "" {
		return v, nil
	}
	return "", domain.NewValidationError(rc.Path, "missing parameter %q", key)
}

// Chain schedules path to run after the current task succeeds.
func (rc *RunContext) Chain(path string, params url.Values) {
	rc.next = append(rc.next, Invocation{Path: path, Params: params})
}

// NormalizePath turns "/Class/method" or "class/method" into the registry
// key "class/method". The class is case-insensitive.
func NormalizePath(path string) (string, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(path), "/"), "/")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w %q: must be /class/method", ErrInvalidPath, path)
	}
	class, method := strings.ToLower(strings.TrimSpace(parts[0])), strings.TrimSpace(parts[1])
	if class == "" || method == "" {
		return "", fmt.Errorf("%w %q: must be /class/method", ErrInvalidPath, path)
	}
	return class + "/" + method, nil
}

// ParseParams decodes key=value arguments. Each argument may itself be a
// query string such as "a=1&b=2". Other arguments are returned as
// positional.
func ParseParams(args []string) (url.Values, []string, error) {
	params := url.Values{}
	var positional []string
	for _, arg := range args {
		if !strings.Contains(arg, "=") {
			positional = append(positional, arg)
			continue
		}
		values, err := url.ParseQuery(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid parameter %q: %w", arg, err)
		}
		for k, vs := range values {
			params[k] = append(params[k], vs...)
		}
	}
	return params, positional, nil
}

// Registry maps task paths to tasks.
type Registry struct {
	tasks map[string]Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Register validates and adds tasks.
func (r *Registry) Register(tasks ...Task) error {
	for _, t := range tasks {
		key, err := NormalizePath(t.Path)
		if err != nil {
			return err
		}
		if t.Handler == nil {
			return fmt.Errorf("task %s has no handler", key)
		}
		if _, exists := r.tasks[key]; exists {
			return fmt.Errorf("task %s already registered", key)
		}
		t.Path = key
		r.tasks[key] = t
	}
	return nil
}

// Resolve returns the task registered under path.
func (r *Registry) Resolve(path string) (Task, error) {
	key, err := NormalizePath(path)
	if err != nil {
		return Task{}, err
	}
	t, ok := r.tasks[key]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return t, nil
}

// List returns every task sorted by path.
func (r *Registry) List() []Task {
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
