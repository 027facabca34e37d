package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cycletrack/internal/config"
	"cycletrack/internal/eventlog"
	"cycletrack/internal/eventlog/firebase"
	"cycletrack/internal/eventlog/sqlite"
	"cycletrack/internal/output"
	"cycletrack/internal/recorder"
	"cycletrack/internal/sprint"
	"cycletrack/internal/story"
)

// errBoardsDisabled is returned by commands that need the board when
// boards.enabled is false.
var errBoardsDisabled = errors.New("boards integration is disabled (set boards.enabled in ctf_settings.yml)")

// Boards is the work item board as the CLI uses it.
//
// [story.AzureBoards] implements this interface.
type Boards interface {
	recorder.Board

	// AddComment adds text to the work item discussion.
	AddComment(ctx context.Context, trackerID, text string) error

	// Open shows the work item in a browser.
	Open(ctx context.Context, trackerID string) error
}

// App is the main application container holding all dependencies.
//
// Create with [NewApp] for production use. Tests construct it directly with
// a Store and mock Boards; the Recorder and Aggregator are built on first use
// from whatever is set.
type App struct {
	Config  *config.Config
	Printer *output.Printer
	Log     *logrus.Entry

	// Store is the event log. When nil it is opened from Config on first use.
	Store eventlog.Store

	// Boards is nil when boards integration is disabled.
	Boards Boards

	Recorder   *recorder.Recorder
	Aggregator *sprint.Aggregator

	// Now is the clock used for default timestamps.
	Now func() time.Time

	closer io.Closer
}

// NewApp creates an [App] from cfg. The store is opened lazily so that
// commands which never touch it (setup, events) work with an incomplete
// configuration.
func NewApp(cfg *config.Config, log *logrus.Entry) *App {
	app := &App{
		Config:  cfg,
		Printer: output.NewPrinter(),
		Log:     log,
		Now:     time.Now,
	}
	if cfg.Boards.Enabled {
		app.Boards = story.NewAzureBoards(story.NewCommandRunner(cfg.Boards.BinaryPath), log)
	}
	return app
}

func (a *App) logger() *logrus.Entry {
	if a.Log == nil {
		a.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return a.Log
}

func (a *App) clock() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// store returns the event log, opening it from Config if needed.
func (a *App) store(ctx context.Context) (eventlog.Store, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	s, closer, err := openStore(ctx, a.Config, a.logger())
	if err != nil {
		return nil, err
	}
	a.Store = s
	a.closer = closer
	return s, nil
}

// openStore opens the configured backend.
func openStore(ctx context.Context, cfg *config.Config, log *logrus.Entry) (eventlog.Store, io.Closer, error) {
	if err := cfg.Validate(false); err != nil {
		return nil, nil, err
	}
	switch cfg.Store.Backend {
	case config.BackendFirebase:
		s, err := firebase.New(firebase.Config{
			URI:        cfg.Store.Firebase.URI,
			Secret:     cfg.Store.Firebase.Secret,
			Timeout:    cfg.Store.Firebase.Timeout,
			MaxRetries: cfg.Store.Firebase.MaxRetries,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		s, err := sqlite.Open(ctx, cfg.Store.SQLite.Path, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

// recorder returns the Recorder, building it on first use.
func (a *App) recorder(ctx context.Context) (*recorder.Recorder, error) {
	if a.Recorder != nil {
		return a.Recorder, nil
	}
	s, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	r := recorder.NewRecorder(s, nil, a.logger())
	r.SetClock(a.clock)
	if a.Boards != nil {
		r.SetBoard(a.Boards)
	}
	a.Recorder = r
	return r, nil
}

// aggregator returns the Aggregator, building it on first use.
func (a *App) aggregator(ctx context.Context) (*sprint.Aggregator, error) {
	if a.Aggregator != nil {
		return a.Aggregator, nil
	}
	s, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	cfg := sprint.Config{
		Store:         s,
		UnplannedType: a.Config.Report.UnplannedType,
		Concurrency:   a.Config.Report.Concurrency,
		Log:           a.logger(),
	}
	if a.Boards != nil {
		cfg.Lookup = a.Boards
	}
	a.Aggregator = sprint.NewAggregator(cfg)
	return a.Aggregator, nil
}

func (a *App) boards() (Boards, error) {
	if a.Boards == nil {
		return nil, errBoardsDisabled
	}
	return a.Boards, nil
}

// Close releases the store if the App opened it.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

var errInvalidPoints = errors.New("invalid points")

func parsePoints(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %q", errInvalidPoints, s)
	}
	return decimal.NewNullDecimal(d), nil
}
