package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/target/healwright/config"
	"github.com/target/healwright/internal/bootstrap"
)

// cliEnv carries what every subcommand shares once the root has loaded configuration.
type cliEnv struct {
	cfg    config.AppConfig
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	env := &cliEnv{}
	var logLevel string

	root := &cobra.Command{
		Use:   "healwright-admin",
		Short: "Administrative tasks for healwright",
		Long: `Run one-off maintenance against a healwright deployment.

Configuration is read from the environment (and .env when present), the
same way the server reads it. Logs go to stderr; command output goes to stdout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			env.cfg = cfg
			env.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: bootstrap.ParseLevel(cfg.LogLevel),
			}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newMigrateCmd(env),
		newEnqueueCmd(env),
		newStatusCmd(env),
		newSuggestCmd(env),
		newReapCmd(env),
		newSealTokenCmd(env),
	)
	return root
}

// connectDB opens Postgres for commands that need it. Callers close the handle.
func (e *cliEnv) connectDB() (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig:    e.cfg.Postgres,
		RedisConfig: e.cfg.Redis,
		Logger:      e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func (e *cliEnv) closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		e.logger.Error("close database failed", "error", err)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
