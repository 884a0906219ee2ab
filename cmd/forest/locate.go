package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"forest/internal/models"
	"forest/internal/services"
)

func newLocateCmd(opts *rootOptions) *cobra.Command {
	var (
		variable    string
		initialTime string
		validTime   string
		pressure    float64
		pattern     string
	)

	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Find the file and array index holding a field",
		Long: `Find the file and array index holding a variable for one forecast run
and valid time. With --pressure the nearest stored level is used and the
index gains a pressure position when pressure has its own dimension.

Times are "YYYY-MM-DD HH:MM:SS" (UTC) or RFC 3339.

Examples:
  forest locate -v air_temperature --initial-time "2019-01-01 00:00:00" \
      --valid-time "2019-01-01 06:00:00" --pressure 850
  forest locate -v surface_temperature --initial-time 2019-01-01T00:00:00Z \
      --valid-time 2019-01-01T03:00:00Z --pattern ukv
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := models.ParseInputTime(initialTime)
			if err != nil {
				return fmt.Errorf("--initial-time: %w", err)
			}
			valid, err := models.ParseInputTime(validTime)
			if err != nil {
				return fmt.Errorf("--valid-time: %w", err)
			}

			return opts.run(cmd, "locate", prometheus.NewRegistry(), func(ctx context.Context, a *app) error {
				q := models.LocateQuery{
					Variable:    variable,
					InitialTime: initial,
					ValidTime:   valid,
					Pattern:     a.pattern(pattern),
				}
				if cmd.Flags().Changed("pressure") {
					q.Pressure = &pressure
				}

				location, err := services.NewCatalogService(a.repo, a.logger, a.metrics).Locate(ctx, q)
				if err != nil {
					return err
				}

				if a.json {
					return printJSON(a.out, location)
				}
				success.Fprint(a.out, location.Path)
				fmt.Fprintf(a.out, " %s\n", formatIndex(location.Index))
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&variable, "variable", "v", "", "variable name")
	flags.StringVar(&initialTime, "initial-time", "", "forecast reference time")
	flags.StringVar(&validTime, "valid-time", "", "forecast valid time")
	flags.Float64Var(&pressure, "pressure", 0, "target pressure level")
	flags.StringVarP(&pattern, "pattern", "p", "", "file glob or configured pattern name")
	cmd.MarkFlagRequired("variable")
	cmd.MarkFlagRequired("initial-time")
	cmd.MarkFlagRequired("valid-time")
	return cmd
}
