package cli

import (
	"github.com/spf13/cobra"

	"cycletrack/internal/sprint"
	"cycletrack/internal/timeparse"
)

type reportOptions struct {
	sprintEnd string
	sprints   int
	exclude   string
	include   string
	events    bool
}

func newReportCommand(app *App) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show finished stories and metrics for one or more sprints",
		Long: `Show finished stories and team metrics for the sprints ending at --sprint-end.

Stories can be left out with --exclude or restricted with --include, using
comma-separated attribute=value pairs. Attributes: type, area, iteration,
developer, title.

Examples:
  ctf report --sprint-end 2016-04-22
  ctf report --sprints 3 --exclude area=Firmware,developer=Person2
  ctf report --include iteration=Sprint42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, app, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.sprintEnd, "sprint-end", "s", "", "end of the last sprint (default now)")
	cmd.Flags().IntVarP(&opts.sprints, "sprints", "n", 1, "number of sprints in the period")
	cmd.Flags().StringVarP(&opts.exclude, "exclude", "x", "", "leave out stories matching attr=value[,attr=value]")
	cmd.Flags().StringVarP(&opts.include, "include", "i", "", "count only stories matching attr=value[,attr=value]")
	cmd.Flags().BoolVar(&opts.events, "events", false, "also list every event in the period")
	cmd.MarkFlagsMutuallyExclusive("exclude", "include")

	return cmd
}

func runReport(cmd *cobra.Command, app *App, opts *reportOptions) error {
	ctx := cmd.Context()

	end, err := timeparse.ParseOrNow(opts.sprintEnd, app.clock())
	if err != nil {
		return err
	}
	w, err := sprint.NewWindow(end, opts.sprints, app.Config.SprintLength())
	if err != nil {
		return err
	}

	mode, expr := sprint.Exclude, opts.exclude
	if opts.include != "" {
		mode, expr = sprint.Include, opts.include
	}
	f, err := sprint.ParseFilter(mode, expr)
	if err != nil {
		return err
	}

	agg, err := app.aggregator(ctx)
	if err != nil {
		return err
	}
	r, err := agg.Build(ctx, w, f)
	if err != nil {
		return err
	}

	app.Printer.Report(r, opts.events)
	return nil
}
