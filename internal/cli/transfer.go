package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cycletrack/internal/event"
	"cycletrack/internal/eventlog"
	"cycletrack/internal/timeparse"
)

func newImportCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Append events from a CSV file to the log",
		Long: `Append events from a CSV file to the log, in file order.

The header must name the columns; tracker_id, event and created_at are
required, dev_name, points, reason and extended_reason are optional.
created_at is epoch seconds or "2006-01-02 15:04:05" local time.

Events are appended as they are. Transition rules are not checked, so
histories can be migrated from another log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := eventlog.ReadCSVFile(args[0], event.Default)
			if err != nil {
				return err
			}
			s, err := app.store(cmd.Context())
			if err != nil {
				return err
			}
			n, err := eventlog.Import(cmd.Context(), s, events)
			if err != nil {
				return fmt.Errorf("imported %d of %d events: %w", n, len(events), err)
			}
			app.Printer.Success(fmt.Sprintf("Imported %d events", n))
			return nil
		},
	}
}

func newExportCommand(app *App) *cobra.Command {
	var since, until string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write events to stdout as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := app.clock()
			q := eventlog.Query{StartAt: time.Unix(0, 0), EndAt: now}

			if since != "" {
				t, err := timeparse.Parse(since, now)
				if err != nil {
					return err
				}
				q.StartAt = t
			}
			if until != "" {
				t, err := timeparse.Parse(until, now)
				if err != nil {
					return err
				}
				q.EndAt = t
			}

			s, err := app.store(cmd.Context())
			if err != nil {
				return err
			}
			events, err := s.Query(cmd.Context(), q)
			if err != nil {
				return err
			}
			return eventlog.WriteCSV(cmd.OutOrStdout(), events)
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "first event time (default the beginning of the log)")
	cmd.Flags().StringVar(&until, "until", "", "last event time (default now)")
	return cmd
}
