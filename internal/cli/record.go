package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cycletrack/internal/event"
	"cycletrack/internal/recorder"
	"cycletrack/internal/timeparse"
	"cycletrack/internal/transition"
)

var kindSummaries = map[event.Kind]string{
	event.KindStart:      "Start work on a story",
	event.KindStop:       "Stop work on a story (requires a reason)",
	event.KindBlock:      "Mark a story blocked (requires a reason)",
	event.KindResume:     "Resume a stopped or blocked story",
	event.KindQAReady:    "Hand a story to QA",
	event.KindQAComplete: "Mark QA complete",
	event.KindFinish:     "Finish a story",
	event.KindReject:     "Reject a story back to development (requires a reason)",
	event.KindRestart:    "Restart a rejected story",
}

type recordOptions struct {
	points    string
	reason    string
	detail    string
	at        string
	developer string
	dryRun    bool
}

// newRecordCommands returns one command per registered event kind.
func newRecordCommands(app *App) []*cobra.Command {
	kinds := event.Default.Kinds()
	cmds := make([]*cobra.Command, 0, len(kinds))
	for _, k := range kinds {
		cmds = append(cmds, newRecordCommand(app, k))
	}
	return cmds
}

func newRecordCommand(app *App, kind event.Kind) *cobra.Command {
	opts := &recordOptions{}

	short := kindSummaries[kind]
	if short == "" {
		short = fmt.Sprintf("Record a %s event", kind)
	}

	cmd := &cobra.Command{
		Use:   string(kind) + " <tracker-id>",
		Short: short,
		Long: short + `.

The event is checked against the story's history before it is written, then
mirrored onto the work item board. --at accepts "2016-04-12 14:01:00",
offsets such as -2h, or phrases such as "yesterday 5pm".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, app, kind, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.at, "at", "", "event time (default now)")
	cmd.Flags().StringVar(&opts.developer, "dev", "", "developer name (default dev_name from settings)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate without recording")
	if kind == event.KindStart {
		cmd.Flags().StringVarP(&opts.points, "points", "p", "", "story points (default the board estimate)")
	}
	if event.Default.RequiresReason(kind) {
		cmd.Flags().StringVarP(&opts.reason, "reason", "r", "", "reason code or number (see 'ctf events')")
		cmd.Flags().StringVarP(&opts.detail, "detail", "d", "", "free-text detail added to the reason")
	}
	return cmd
}

func runRecord(cmd *cobra.Command, app *App, kind event.Kind, trackerID string, opts *recordOptions) error {
	ctx := cmd.Context()

	developer := opts.developer
	if developer == "" {
		if err := app.Config.Validate(true); err != nil {
			return err
		}
		developer = app.Config.DevName
	}

	points, err := parsePoints(opts.points)
	if err != nil {
		return err
	}

	now := app.clock()
	at, err := timeparse.ParseOrNow(opts.at, now)
	if err != nil {
		return err
	}

	rec, err := app.recorder(ctx)
	if err != nil {
		return err
	}

	req := recorder.Request{
		TrackerID:      trackerID,
		Developer:      developer,
		Kind:           kind,
		Points:         points,
		Reason:         opts.reason,
		ExtendedReason: opts.detail,
		At:             at,
	}

	if opts.dryRun {
		if err := rec.Check(ctx, req); err != nil {
			return explainRecordError(app, err)
		}
		app.Printer.Success(fmt.Sprintf("%s is valid for #%s", kind, trackerID))
		return nil
	}

	e, err := rec.Record(ctx, req)
	if err != nil {
		return explainRecordError(app, err)
	}
	app.Printer.Recorded(e)
	return nil
}

// explainRecordError prints the choices that would have been accepted
// before returning err.
func explainRecordError(app *App, err error) error {
	if errors.Is(err, transition.ErrMissingReason) || errors.Is(err, event.ErrUnknownReason) {
		app.Printer.Reasons()
	}
	return err
}
