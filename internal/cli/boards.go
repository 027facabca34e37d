package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cycletrack/internal/event"
)

func newCommentCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <tracker-id> <text>...",
		Short: "Add a comment to a work item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := app.boards()
			if err != nil {
				return err
			}
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if text == "" {
				return &ExitError{Code: exitInvalid, Err: fmt.Errorf("comment text is empty")}
			}
			if err := b.AddComment(cmd.Context(), args[0], text); err != nil {
				return err
			}
			app.Printer.Success(fmt.Sprintf("Commented on #%s", args[0]))
			return nil
		},
	}
}

func newOpenCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "open <tracker-id>",
		Short: "Open a work item in the browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := app.boards()
			if err != nil {
				return err
			}
			return b.Open(cmd.Context(), args[0])
		},
	}
}

func newEventsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List event kinds, their allowed successors and reason codes",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			app.Printer.Catalog(event.Default)
			app.Printer.Reasons()
		},
	}
}
