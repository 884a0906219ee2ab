package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"forest/internal/services"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index counts and per-variable coverage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "stats", prometheus.NewRegistry(), func(ctx context.Context, a *app) error {
				report, err := services.NewSummaryService(a.repo, a.logger, a.metrics).Report(ctx)
				if err != nil {
					return err
				}
				if a.json {
					return printJSON(a.out, report)
				}
				printReport(a, report)
				return nil
			})
		},
	}
}

func printReport(a *app, report *services.IndexReport) {
	s := report.Summary

	heading.Fprintln(a.out, "Index")
	fmt.Fprintf(a.out, "  files:              %d (%d forecast runs)\n", s.Files, s.DistinctReferences)
	fmt.Fprintf(a.out, "  variables:          %d (%d names)\n", s.Variables, s.DistinctVariables)
	fmt.Fprintf(a.out, "  time points:        %d (%d links)\n", s.Times, s.VariableTimes)
	fmt.Fprintf(a.out, "  pressure points:    %d (%d links)\n", s.Pressures, s.VariablePressures)

	if len(report.Variables) == 0 {
		return
	}

	fmt.Fprintln(a.out)
	heading.Fprintln(a.out, "Variables")
	for _, v := range report.Variables {
		success.Fprintf(a.out, "  %s", v.Name)
		fmt.Fprintf(a.out, "  runs=%d valid_times=%d", v.InitialTimes, v.ValidTimes)
		if v.Pressures > 0 {
			fmt.Fprintf(a.out, " levels=%d (%g-%g)", v.Pressures, v.MinPressure, v.MaxPressure)
		}
		fmt.Fprintln(a.out)
	}
}
