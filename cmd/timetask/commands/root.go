// Package commands implements CLI commands.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pandasAtHome/TimeTask/internal/config"
	"github.com/pandasAtHome/TimeTask/internal/logging"
	"github.com/pandasAtHome/TimeTask/internal/task"
	"github.com/pandasAtHome/TimeTask/internal/task/builtin"
	"github.com/pandasAtHome/TimeTask/internal/ui"
	"github.com/pandasAtHome/TimeTask/internal/version"
)

// app is the state shared by every command of one invocation.
type app struct {
	configFile string
	logLevel   string
	logFormat  string
	noColor    bool

	cfg      *config.Config
	logger   *slog.Logger
	printer  *ui.Printer
	registry *task.Registry
}

// Execute is the main entry point for the CLI
func Execute() error {
	return NewRootCommand(os.Stdout, os.Stderr).Execute()
}

// NewRootCommand creates the root command writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "timetask",
		Short: "Run scheduled data tasks against MySQL and MongoDB",
		Long: `timetask runs named tasks, typically from cron, against MySQL and MongoDB.

Tasks are addressed as /class/method and receive key=value parameters:

    timetask run /mysql/count table=orders 'where=status = "paid"'`,
		Version:       version.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to config file (default .timetask.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newRunCommand(a))
	rootCmd.AddCommand(newTasksCommand(a))
	rootCmd.AddCommand(newCompileCommand(a))
	rootCmd.AddCommand(newConfigCommand(a))
	rootCmd.AddCommand(newVersionCommand(a))

	return rootCmd
}

func (a *app) init(cmd *cobra.Command, out, errOut io.Writer) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}

	a.cfg = cfg
	a.logger = logging.New(cfg.Log, errOut)
	a.printer = ui.New(out, errOut, a.noColor)
	a.registry = task.NewRegistry()
	return builtin.Register(a.registry)
}
