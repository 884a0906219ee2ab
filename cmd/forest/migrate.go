package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"forest/pkg/logging"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the index tables if they do not exist",
		Long: `Create the index tables if they do not exist. Running it again is a no-op.

Examples:
  forest migrate --database index.db
  forest migrate --database postgres://forest@localhost/forest
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "migrate", prometheus.NewRegistry(), func(ctx context.Context, a *app) error {
				a.logger.Info(ctx, "[MIGRATE_COMPLETE] Index schema ready", logging.Fields{
					"dialect": string(a.db.Dialect()),
				})
				success.Fprintf(a.out, "schema ready (%s)\n", a.db.Dialect())
				return nil
			})
		},
	}
}
