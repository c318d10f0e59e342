package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pandasAtHome/TimeTask/internal/config"
	"github.com/pandasAtHome/TimeTask/internal/container"
	"github.com/pandasAtHome/TimeTask/internal/logging"
	"github.com/pandasAtHome/TimeTask/internal/metrics"
)

// MaxChainDepth bounds how many follow-up tasks one invocation may chain.
const MaxChainDepth = 16

// Outcome reports one finished invocation.
type Outcome struct {
	Invocation
	RequestID uuid.UUID
	Duration  time.Duration
	Err       error
}

// Hook runs after every invocation, before its adapters are released. err
// is the handler's error. A failing hook is logged and never changes the
// outcome.
type Hook func(ctx context.Context, rc *RunContext, err error) error

// Runner executes invocations against a registry. Every invocation gets its
// own RunContext and container, so runs never share adapters.
type Runner struct {
	registry      *Registry
	config        *config.Config
	logger        *slog.Logger
	recorder      metrics.Recorder
	out           io.Writer
	containerOpts []container.Option
	hooks         []Hook
	now           func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRecorder sets the recorder handed to adapters.
func WithRecorder(recorder metrics.Recorder) RunnerOption {
	return func(r *Runner) {
		r.recorder = recorder
	}
}

// WithOutput sets where tasks write their output.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) {
		r.out = w
	}
}

// WithContainerOptions adds options to every container the runner builds.
func WithContainerOptions(opts ...container.Option) RunnerOption {
	return func(r *Runner) {
		r.containerOpts = append(r.containerOpts, opts...)
	}
}

// WithHook adds a hook run after every invocation.
func WithHook(h Hook) RunnerOption {
	return func(r *Runner) {
		r.hooks = append(r.hooks, h)
	}
}

// NewRunner creates a runner.
func NewRunner(registry *Registry, cfg *config.Config, opts ...RunnerOption) *Runner {
	if cfg == nil {
		cfg = &config.Config{}
	}
	r := &Runner{
		registry: registry,
		config:   cfg,
		recorder: metrics.Noop{},
		out:      os.Stdout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

// Run runs inv and then any tasks it chained, in order.
func (r *Runner) Run(ctx context.Context, inv Invocation) Outcome {
	return r.run(ctx, inv, 0)
}

// RunAll resolves every path up front, then runs the invocations
// concurrently, at most run.concurrency at a time. One failure does not stop
// the others. The returned error joins all failures.
func (r *Runner) RunAll(ctx context.Context, invs []Invocation) ([]Outcome, error) {
	for _, inv := range invs {
		if _, err := r.registry.Resolve(inv.Path); err != nil {
			return nil, err
		}
	}

	outcomes := make([]Outcome, len(invs))
	g := new(errgroup.Group)
	g.SetLimit(max(r.config.Run.Concurrency, 1))
	for i, inv := range invs {
		i, inv := i, inv
		g.Go(func() error {
			outcomes[i] = r.run(ctx, inv, 0)
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return outcomes, errors.Join(errs...)
}

func (r *Runner) run(ctx context.Context, inv Invocation, depth int) Outcome {
	rc := &RunContext{
		RequestID: uuid.New(),
		CreatedAt: r.now(),
		Params:    inv.Params,
		Args:      inv.Args,
		Out:       r.out,
	}
	outcome := Outcome{Invocation: inv, RequestID: rc.RequestID}
	if rc.Params == nil {
		rc.Params = map[string][]string{}
	}

	t, err := r.registry.Resolve(inv.Path)
	if err != nil {
		outcome.Err = err
		r.logger.ErrorContext(ctx, "task rejected", "path", inv.Path, "error", err)
		return outcome
	}
	rc.Path = t.Path
	rc.Logger = r.logger.With(
		"task", t.Path,
		"request_id", rc.RequestID.String(),
	)

	opts := append([]container.Option{
		container.WithLogger(rc.Logger),
		container.WithRecorder(r.recorder),
	}, r.containerOpts...)
	rc.Container = container.New(r.config, opts...)

	rc.Logger.DebugContext(ctx, "task started", "params", rc.Params.Encode())
	start := time.Now()
	err = r.invoke(ctx, t, rc)
	for _, hook := range r.hooks {
		if herr := hook(ctx, rc, err); herr != nil {
			rc.Logger.WarnContext(ctx, "hook failed", "error", herr)
		}
	}
	if cerr := rc.Container.Close(ctx); cerr != nil {
		rc.Logger.WarnContext(ctx, "failed to release adapters", "error", cerr)
	}
	outcome.Duration = time.Since(start)

	if err != nil {
		outcome.Err = fmt.Errorf("task %s: %w", t.Path, err)
		rc.Logger.ErrorContext(ctx, "task failed",
			"params", rc.Params.Encode(),
			"duration", outcome.Duration,
			"error", err,
		)
		return outcome
	}
	rc.Logger.InfoContext(ctx, "task finished", "duration", outcome.Duration)

	for _, next := range rc.next {
		if depth+1 > MaxChainDepth {
			outcome.Err = fmt.Errorf("task %s: chain deeper than %d", t.Path, MaxChainDepth)
			return outcome
		}
		if chained := r.run(ctx, next, depth+1); chained.Err != nil {
			outcome.Err = chained.Err
			return outcome
		}
	}
	return outcome
}

// invoke calls the handler, converting a panic into an error.
func (r *Runner) invoke(ctx context.Context, t Task, rc *RunContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return t.Handler(ctx, rc)
}
