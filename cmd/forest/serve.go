package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"forest/internal/handlers"
	"forest/internal/services"
	"forest/pkg/logging"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over a JSON HTTP API",
		Long: `Serve catalog listings and lookups over HTTP. Prometheus metrics are on
/metrics and the API description on /api/docs.

Examples:
  forest serve --database index.db
  forest serve --config forest.yaml --port 9000
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "api", prometheus.DefaultRegisterer, func(ctx context.Context, a *app) error {
				if host != "" {
					a.cfg.Server.Host = host
				}
				if port != 0 {
					a.cfg.Server.Port = port
				}
				if err := a.cfg.Validate(); err != nil {
					return err
				}
				return serve(ctx, a)
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides configuration)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides configuration)")
	return cmd
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down
// within the configured timeout.
func serve(ctx context.Context, a *app) error {
	handler := handlers.NewForecastHandler(
		services.NewCatalogService(a.repo, a.logger, a.metrics),
		services.NewSummaryService(a.repo, a.logger, a.metrics),
		a.repo,
		a.cfg.Patterns,
		a.logger,
		a.metrics,
	)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address":  server.Addr,
			"dialect":  string(a.db.Dialect()),
			"patterns": len(a.cfg.Patterns),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info(context.Background(), "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
		return err
	}

	a.logger.Info(context.Background(), "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
	return nil
}
