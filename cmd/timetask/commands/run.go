package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pandasAtHome/TimeTask/internal/metrics"
	"github.com/pandasAtHome/TimeTask/internal/task"
)

func newRunCommand(a *app) *cobra.Command {
	var (
		parallel bool
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "run <path> [key=value ...]",
		Short: "Run a task",
		Long: `Run the task registered under path.

Parameters are key=value pairs or query strings such as 'a=1&b=2'.
With --parallel every argument is a task, optionally carrying its
parameters as a query string:

    timetask run --parallel '/mysql/count?table=orders' /test/params`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invs, err := invocations(args, parallel)
			if err != nil {
				return err
			}
			if dryRun {
				for i := range invs {
					invs[i].Params.Set("dry_run", "true")
				}
			}
			return runTasks(cmd, a, invs)
		},
	}

	cmd.Flags().BoolVarP(&parallel, "parallel", "p", false, "Treat every argument as a task and run them concurrently")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print statements instead of executing them")

	return cmd
}

func runTasks(cmd *cobra.Command, a *app, invs []task.Invocation) error {
	recorder := metrics.NewPrometheus()
	opts := []task.RunnerOption{
		task.WithLogger(a.logger),
		task.WithRecorder(recorder),
		task.WithOutput(cmd.OutOrStdout()),
	}
	if table := a.cfg.Run.RequestLog; table != "" {
		opts = append(opts, task.WithHook(task.RequestLog(table)))
	}
	if table := a.cfg.Run.ErrorLog; table != "" {
		opts = append(opts, task.WithHook(task.ErrorLog(table)))
	}
	runner := task.NewRunner(a.registry, a.cfg, opts...)

	outcomes, err := runner.RunAll(cmd.Context(), invs)
	for _, o := range outcomes {
		a.printer.Outcome(o.Path, o.RequestID.String(), o.Duration, o.Err)
	}

	if path := a.cfg.Metrics.Textfile; path != "" && outcomes != nil {
		if werr := recorder.WriteTextfile(path); werr != nil {
			a.logger.Warn("failed to write metrics", "path", path, "error", werr)
		}
	}
	return err
}

// invocations turns command line arguments into task invocations.
func invocations(args []string, parallel bool) ([]task.Invocation, error) {
	if !parallel {
		params, positional, err := task.ParseParams(args[1:])
		if err != nil {
			return nil, err
		}
		return []task.Invocation{{Path: args[0], Params: params, Args: positional}}, nil
	}

	invs := make([]task.Invocation, 0, len(args))
	for _, arg := range args {
		path, query, _ := strings.Cut(arg, "?")
		params, err := url.ParseQuery(query)
		if err != nil {
			return nil, fmt.Errorf("invalid parameters for %s: %w", path, err)
		}
		invs = append(invs, task.Invocation{Path: path, Params: params})
	}
	return invs, nil
}
