package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cycletrack/internal/config"
)

type setupOptions struct {
	path           string
	devName        string
	backend        string
	firebaseURI    string
	firebaseSecret string
	sqlitePath     string
	boards         bool
}

func newSetupCommand(app *App) *cobra.Command {
	opts := &setupOptions{}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write the settings file",
		Long: `Write ctf_settings.yml, starting from the current settings and applying
the given flags.

Example:
  ctf setup --dev-name "Person1" --backend firebase --firebase-uri https://project.firebaseio.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *app.Config
			flags := cmd.Flags()

			if flags.Changed("dev-name") {
				cfg.DevName = opts.devName
			}
			if flags.Changed("backend") {
				cfg.Store.Backend = opts.backend
			}
			if flags.Changed("firebase-uri") {
				cfg.Store.Firebase.URI = opts.firebaseURI
			}
			if flags.Changed("firebase-secret") {
				cfg.Store.Firebase.Secret = opts.firebaseSecret
			}
			if flags.Changed("sqlite-path") {
				cfg.Store.SQLite.Path = opts.sqlitePath
			}
			if flags.Changed("boards") {
				cfg.Boards.Enabled = opts.boards
			}

			if err := cfg.Validate(false); err != nil {
				return &ExitError{Code: exitInvalid, Err: err}
			}

			path := opts.path
			if path == "" {
				p, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			if err := config.Save(&cfg, path); err != nil {
				return err
			}
			app.Printer.Success(fmt.Sprintf("Settings written to %s", path))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.path, "path", "", "settings file (default the user config directory)")
	cmd.Flags().StringVar(&opts.devName, "dev-name", "", "your name as recorded on events")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "event log backend: firebase or sqlite")
	cmd.Flags().StringVar(&opts.firebaseURI, "firebase-uri", "", "Firebase database URI")
	cmd.Flags().StringVar(&opts.firebaseSecret, "firebase-secret", "", "Firebase database secret")
	cmd.Flags().StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite database file")
	cmd.Flags().BoolVar(&opts.boards, "boards", true, "enable Azure Boards integration")
	return cmd
}
