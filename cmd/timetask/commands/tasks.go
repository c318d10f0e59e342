package commands

import (
	"github.com/spf13/cobra"
)

func newTasksCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List registered tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := a.registry.List()
			rows := make([][]string, 0, len(list))
			for _, t := range list {
				rows = append(rows, []string{"/" + t.Path, t.Summary})
			}
			return a.printer.Table([]string{"PATH", "SUMMARY"}, rows)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "describe <path>",
		Short: "Show the documentation of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.registry.Resolve(args[0])
			if err != nil {
				return err
			}
			a.printer.Header("/"+t.Path, t.Summary)
			return a.printer.Markdown(t.Description)
		},
	})

	return cmd
}
