package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"forest/internal/services"
	"forest/internal/source"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var (
		dir     string
		pattern string
	)

	cmd := &cobra.Command{
		Use:   "index [FILE...]",
		Short: "Add forecast files to the index",
		Long: `Read the metadata of each NetCDF file and add it to the index. Files
already indexed are skipped row by row, so re-running is safe. A file
that cannot be read fails on its own; the rest of the batch continues.

With no FILE arguments every file in --dir matching --pattern is indexed
(defaults come from the indexing section of the configuration).

Examples:
  forest index --database index.db data/20190101T0000Z_*.nc
  forest index --database index.db --dir data --pattern "*_T+*.nc"
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "indexer", prometheus.NewRegistry(), func(ctx context.Context, a *app) error {
				indexer := services.NewIndexingService(a.repo, source.NewNetCDFReader(), a.logger, a.metrics)

				var result *services.IndexingResult
				if len(args) > 0 {
					result = indexer.IndexFiles(ctx, args)
				} else {
					d, p := dir, pattern
					if d == "" {
						d = a.cfg.Indexing.Directory
					}
					if p == "" {
						p = a.cfg.Indexing.FilePattern
					}
					var err error
					if result, err = indexer.IndexDirectory(ctx, d, p); err != nil {
						return err
					}
				}

				if err := a.printIndexingResult(result); err != nil {
					return err
				}
				if n := len(result.FailedFiles); n > 0 {
					return fmt.Errorf("%d of %d files failed to index", n, result.TotalFiles)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory to scan when no files are given")
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "file glob used with --dir")
	return cmd
}

func (a *app) printIndexingResult(result *services.IndexingResult) error {
	if a.json {
		return printJSON(a.out, result)
	}

	status := success
	if len(result.FailedFiles) > 0 {
		status = failure
	}
	status.Fprintf(a.out, "indexed %d of %d files", result.IndexedFiles, result.TotalFiles)
	muted.Fprintf(a.out, " in %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(a.out, "  variables:       %d\n", result.Variables)
	fmt.Fprintf(a.out, "  time points:     %d\n", result.TimePoints)
	fmt.Fprintf(a.out, "  pressure points: %d\n", result.PressurePoints)

	for _, msg := range result.Errors {
		failure.Fprintf(a.out, "  %s\n", msg)
	}
	return nil
}
