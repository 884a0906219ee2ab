package main

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"forest/internal/config"
	"forest/internal/repository"
	"forest/pkg/database"
	"forest/pkg/logging"
	"forest/pkg/metrics"
)

const version = "1.0.0"

type rootOptions struct {
	configPath string
	database   string
	logLevel   string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "forest",
		Short: "Index NetCDF forecast files and locate fields inside them",
		Long: `forest keeps a small SQL index of forecast files: which variables each
file holds, their reference and valid times, and their pressure levels.
Lookups return the file and array index holding a field.

Examples:

  forest migrate --database index.db
  forest index --database index.db data/*.nc
  forest locate --database index.db -v air_temperature \
      --initial-time "2019-01-01 00:00:00" --valid-time "2019-01-01 06:00:00" --pressure 850
  forest serve --config forest.yaml
`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&opts.database, "database", "d", "", "index location: SQLite file, :memory: or postgres:// URL")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newIndexCmd(opts),
		newLocateCmd(opts),
		newListCmd(opts),
		newFindCmd(opts),
		newStatsCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// app is what every command needs once the index is open.
type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	db      *database.DB
	repo    repository.ForecastRepository
	out     io.Writer
	json    bool
}

// loadConfig applies command line flags over the loaded configuration.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.database != "" {
		cfg.Database.Location = o.database
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, cfg.Validate()
}

// run opens the index, ensures its schema and hands it to fn. The index is
// closed when fn returns. Metrics register with reg.
func (o *rootOptions) run(cmd *cobra.Command, service string, reg prometheus.Registerer, fn func(ctx context.Context, a *app) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewStructuredLogger("forest-"+service, version, logging.ParseLevel(cfg.Logging.Level))
	logger.SetOutput(cmd.ErrOrStderr())
	collector := metrics.NewCollectorWithRegistry("forest", reg)

	dbConfig := &database.Config{
		Location:        cfg.Database.Location,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		BusyTimeout:     cfg.Database.BusyTimeout,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return database.WithDB(ctx, dbConfig, logger, collector, func(db *database.DB) error {
		repo := repository.NewForecastRepository(db, logger, collector)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		return fn(ctx, &app{
			cfg:     cfg,
			logger:  logger,
			metrics: collector,
			db:      db,
			repo:    repo,
			out:     cmd.OutOrStdout(),
			json:    o.jsonOutput,
		})
	})
}

// pattern expands a configured pattern name to its glob.
func (a *app) pattern(p string) string {
	if glob, ok := a.cfg.Patterns[p]; ok {
		return glob
	}
	return p
}
