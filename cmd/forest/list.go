package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"forest/internal/models"
	"forest/internal/services"
)

type listOptions struct {
	variable string
	pattern  string
}

func newListCmd(opts *rootOptions) *cobra.Command {
	lo := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List what the index holds",
		Long: `List variables, files, times or pressure levels held by the index.
--variable and --pattern narrow the listings that support them.

Examples:
  forest list variables
  forest list files --pattern "ukv_*.nc"
  forest list initial-times --pattern ukv
  forest list valid-times --variable air_temperature
  forest list pressures --variable air_temperature
  forest list levels ukv_1.nc air_temperature
`,
	}
	cmd.PersistentFlags().StringVarP(&lo.variable, "variable", "v", "", "restrict to one variable name")
	cmd.PersistentFlags().StringVarP(&lo.pattern, "pattern", "p", "", "file glob or configured pattern name")

	list := func(use, short string, fn func(ctx context.Context, a *app, catalog *services.CatalogService, filter models.CatalogFilter) ([]string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.run(cmd, "list", prometheus.NewRegistry(), func(ctx context.Context, a *app) error {
					catalog := services.NewCatalogService(a.repo, a.logger, a.metrics)
					filter := models.CatalogFilter{Variable: lo.variable, Pattern: a.pattern(lo.pattern)}
					items, err := fn(ctx, a, catalog, filter)
					if err != nil {
						return err
					}
					return a.printList(items)
				})
			},
		}
	}

	cmd.AddCommand(
		list("variables", "List distinct variable names", func(ctx context.Context, _ *app, c *services.CatalogService, _ models.CatalogFilter) ([]string, error) {
			return c.ListVariables(ctx)
		}),
		list("files", "List indexed files", func(ctx context.Context, _ *app, c *services.CatalogService, f models.CatalogFilter) ([]string, error) {
			return c.ListFiles(ctx, f.Pattern)
		}),
		list("initial-times", "List forecast reference times", func(ctx context.Context, _ *app, c *services.CatalogService, f models.CatalogFilter) ([]string, error) {
			times, err := c.ListInitialTimes(ctx, f)
			return formatTimes(times), err
		}),
		list("valid-times", "List forecast valid times", func(ctx context.Context, _ *app, c *services.CatalogService, f models.CatalogFilter) ([]string, error) {
			times, err := c.ListValidTimes(ctx, f)
			return formatTimes(times), err
		}),
		list("pressures", "List pressure levels", func(ctx context.Context, _ *app, c *services.CatalogService, f models.CatalogFilter) ([]string, error) {
			levels, err := c.ListPressures(ctx, f)
			return formatLevels(levels), err
		}),
		list("patterns", "List configured file patterns", func(_ context.Context, a *app, _ *services.CatalogService, _ models.CatalogFilter) ([]string, error) {
			names := make([]string, 0, len(a.cfg.Patterns))
			for name := range a.cfg.Patterns {
				names = append(names, name)
			}
			sort.Strings(names)
			out := make([]string, len(names))
			for i, name := range names {
				out[i] = fmt.Sprintf("%s\t%s", name, a.cfg.Patterns[name])
			}
			return out, nil
		}),
		newTimesCmd(opts),
		newLevelsCmd(opts),
	)
	return cmd
}

// newTimesCmd lists the times of one variable of one file in index order.
func newTimesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "times FILE VARIABLE",
		Short: "List the times of a variable in one file, in array order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "list", prometheus.NewRegistry(), func(ctx context.Context, a *app) error {
				times, err := services.NewCatalogService(a.repo, a.logger, a.metrics).FetchTimes(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return a.printList(formatTimes(times))
			})
		},
	}
}

// newLevelsCmd lists the pressure levels of one variable of one file in
// index order.
func newLevelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "levels FILE VARIABLE",
		Short: "List the pressure levels of a variable in one file, in array order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "list", prometheus.NewRegistry(), func(ctx context.Context, a *app) error {
				levels, err := services.NewCatalogService(a.repo, a.logger, a.metrics).FetchPressures(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return a.printList(formatLevels(levels))
			})
		},
	}
}
