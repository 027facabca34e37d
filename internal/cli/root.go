// Package cli implements the ctf command line.
//
// Commands are built by [NewRootCommand] around an [App] holding every
// dependency, so tests can drive the full command tree against an
// in-memory store and mock boards. [Execute] is the production entry point.
//
// Key types:
//   - [App] - Dependency container shared by all commands
//   - [Boards] - Work item board used for lookups, sync and comments
//   - [ExitError] - Carries an exit code out of a command
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cycletrack/internal/config"
	"cycletrack/internal/logging"
	"cycletrack/internal/output"
)

// NewRootCommand creates the ctf command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ctf",
		Short: "Track story lifecycle events and sprint metrics",
		Long: `ctf records lifecycle events (start, block, finish, ...) for work items,
keeps them in an append-only event log, and computes sprint metrics such as
finished points and average cycle time.

Record an event:
  ctf start 1234567 --points 2
  ctf block 1234567 --reason BUG --detail "login test flaky"

Report on the sprint ending today:
  ctf report`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: groupRecord, Title: "Record events:"},
		&cobra.Group{ID: groupQuery, Title: "Query the log:"},
	)

	for _, cmd := range newRecordCommands(app) {
		cmd.GroupID = groupRecord
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{
		newNextCommand(app),
		newFindCommand(app),
		newLastCommand(app),
		newSinceCommand(app),
		newReportCommand(app),
		newExportCommand(app),
	} {
		cmd.GroupID = groupQuery
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(
		newEventsCommand(app),
		newCommentCommand(app),
		newOpenCommand(app),
		newImportCommand(app),
		newSetupCommand(app),
	)

	return rootCmd
}

const (
	groupRecord = "record"
	groupQuery  = "query"
)

// ExecuteResult is the outcome of running the command tree.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// RunWithConfig builds an [App] from cfg and runs the command tree with the
// process arguments.
func RunWithConfig(ctx context.Context, cfg *config.Config) ExecuteResult {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return ExecuteResult{ExitCode: exitFailure, Err: err}
	}

	app := NewApp(cfg, log)
	defer func() {
		if err := app.Close(); err != nil {
			log.WithError(err).Warn("failed to close event log")
		}
	}()

	rootCmd := NewRootCommand(app)
	err = rootCmd.ExecuteContext(ctx)
	return ExecuteResult{ExitCode: exitCode(err), Err: err}
}

// Execute loads configuration, runs ctf, and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := output.NewPrinter()

	cfg, err := config.NewLoader().Load()
	if err != nil {
		printer.Error(err)
		return exitFailure
	}

	result := RunWithConfig(ctx, cfg)
	if result.Err != nil {
		printer.Error(result.Err)
	}
	return result.ExitCode
}
