// Package commands implements CLI commands.
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gandaldf/sqlbridge"
	"github.com/gandaldf/sqlbridge/internal/config"
	"github.com/gandaldf/sqlbridge/internal/driver"
)

// options is the state shared by every subcommand.
type options struct {
	v         *viper.Viper
	configDir string
	cfg       *config.Config
	logger    *slog.Logger
	openDB    func(d sqlbridge.Dialect, dsn string) (*sql.DB, error)
}

// NewRootCommand creates the sqlbridge command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{v: viper.New(), openDB: driver.Open})
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sqlbridge",
		Short:         "Rewrite and run SQL with named parameters",
		Long:          "sqlbridge turns :name placeholders into dialect markers and decodes result sets into typed values",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.v, opts.configDir)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = newLogger(cmd.ErrOrStderr(), cfg.Verbose)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("dialect", "postgresql", "Target dialect: postgresql, mysql, sqlite or sqlserver")
	flags.String("dsn", "", "Database connection string (defaults to DATABASE_URL)")
	flags.Int("max-params", 0, "Maximum placeholders per statement (0 uses the dialect limit, <0 disables it)")
	flags.Int("plan-cache", 0, "Number of rewrite plans to cache (0 disables the cache)")
	flags.BoolP("verbose", "v", false, "Log every placeholder replacement to stderr")
	flags.StringVar(&opts.configDir, "config-dir", ".", "Directory holding sqlbridge.yaml and .env files")

	_ = opts.v.BindPFlag(config.KeyDialect, flags.Lookup("dialect"))
	_ = opts.v.BindPFlag(config.KeyDatabaseURL, flags.Lookup("dsn"))
	_ = opts.v.BindPFlag(config.KeyMaxParams, flags.Lookup("max-params"))
	_ = opts.v.BindPFlag(config.KeyPlanCacheSize, flags.Lookup("plan-cache"))
	_ = opts.v.BindPFlag(config.KeyVerbose, flags.Lookup("verbose"))

	cmd.AddCommand(newRewriteCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newExecCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// Execute runs the CLI with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *options) bridge() (*sqlbridge.Bridge, error) {
	return o.cfg.Bridge(sqlbridge.Config{Logger: o.logger})
}

// open connects to the configured database.
func (o *options) open() (*sql.DB, sqlbridge.Dialect, error) {
	d, err := sqlbridge.ParseDialect(o.cfg.Dialect)
	if err != nil {
		return nil, 0, err
	}
	if o.cfg.DatabaseURL == "" {
		return nil, 0, fmt.Errorf("no database configured: pass --dsn or set DATABASE_URL")
	}
	db, err := o.openDB(d, o.cfg.DatabaseURL)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open database: %w", err)
	}
	return db, d, nil
}
