package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"forest/internal/models"
	"forest/internal/services"
)

func newFindCmd(opts *rootOptions) *cobra.Command {
	var (
		variable string
		at       string
		pressure float64
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find every file position holding a time or a pressure level",
		Long: `Print every (file, index) pair where a variable has the given time or
the given pressure level. Exactly one of --time and --pressure is required.

Examples:
  forest find -v air_temperature --time "2019-01-01 06:00:00"
  forest find -v air_temperature --pressure 850
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			byTime, byPressure := cmd.Flags().Changed("time"), cmd.Flags().Changed("pressure")
			if byTime == byPressure {
				return errors.New("exactly one of --time and --pressure is required")
			}

			var target time.Time
			if byTime {
				parsed, err := models.ParseInputTime(at)
				if err != nil {
					return fmt.Errorf("--time: %w", err)
				}
				target = parsed
			}

			return opts.run(cmd, "find", prometheus.NewRegistry(), func(ctx context.Context, a *app) error {
				catalog := services.NewCatalogService(a.repo, a.logger, a.metrics)

				var (
					matches []models.Match
					err     error
				)
				if byTime {
					matches, err = catalog.FindTime(ctx, variable, target)
				} else {
					matches, err = catalog.FindPressure(ctx, variable, pressure)
				}
				if err != nil {
					return err
				}

				if a.json {
					return printJSON(a.out, matches)
				}
				lines := make([]string, len(matches))
				for i, m := range matches {
					lines[i] = fmt.Sprintf("%s\t%d", m.Path, m.Index)
				}
				return a.printList(lines)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&variable, "variable", "v", "", "variable name")
	flags.StringVar(&at, "time", "", "valid time to find")
	flags.Float64Var(&pressure, "pressure", 0, "pressure level to find")
	cmd.MarkFlagRequired("variable")
	return cmd
}
