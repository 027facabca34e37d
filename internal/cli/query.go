package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cycletrack/internal/eventlog"
	"cycletrack/internal/story"
	"cycletrack/internal/timeparse"
)

func newNextCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "next <tracker-id>",
		Short: "Show which events may be recorded next for a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := app.recorder(cmd.Context())
			if err != nil {
				return err
			}
			kinds, last, err := rec.NextKinds(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			app.Printer.NextKinds(args[0], last, kinds)
			return nil
		},
	}
}

func newFindCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "find <tracker-id>",
		Short: "Show a story's work item and event history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			trackerID := args[0]

			if app.Boards != nil {
				d, err := app.Boards.Fetch(ctx, trackerID)
				switch {
				case errors.Is(err, story.ErrNotFound):
					app.Printer.Warning(fmt.Sprintf("#%s not found on the board", trackerID))
				case err != nil:
					app.Printer.Warning(fmt.Sprintf("board lookup failed: %v", err))
				default:
					app.Printer.Story(d)
				}
			}

			rec, err := app.recorder(ctx)
			if err != nil {
				return err
			}
			history, err := rec.History(ctx, trackerID)
			if err != nil {
				return err
			}
			app.Printer.Events(fmt.Sprintf("Events for #%s:", trackerID), history)
			return nil
		},
	}
}

func newLastCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "last <n>",
		Short: "Show the most recent n events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return &ExitError{Code: exitInvalid, Err: fmt.Errorf("n must be a positive number, got %q", args[0])}
			}
			s, err := app.store(cmd.Context())
			if err != nil {
				return err
			}
			events, err := s.Query(cmd.Context(), eventlog.Query{Last: n})
			if err != nil {
				return err
			}
			app.Printer.Events(fmt.Sprintf("Last %d events:", n), events)
			return nil
		},
	}
}

func newSinceCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "since <time>",
		Short: "Show events recorded since a time",
		Long: `Show events recorded since a time.

Examples:
  ctf since 2016-04-12
  ctf since -3d
  ctf since "last monday"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := app.clock()
			start, err := timeparse.Parse(args[0], now)
			if err != nil {
				return err
			}
			s, err := app.store(cmd.Context())
			if err != nil {
				return err
			}
			events, err := s.Query(cmd.Context(), eventlog.Query{StartAt: start, EndAt: now})
			if err != nil {
				return err
			}
			app.Printer.Events(fmt.Sprintf("Events since %s:", start.Format(timeLayout)), events)
			return nil
		},
	}
}

const timeLayout = "2006-01-02 15:04:05"
