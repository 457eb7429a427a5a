package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/framefold/groupshot/internal/config"
	"github.com/framefold/groupshot/internal/handlers"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portrait studio web server",
		Long: `Starts the Groupshot web interface on the specified port.

The web interface lets you upload reference photos, review the subjects
detected in them, and generate batches of group portrait variations.`,
		Example: `  # Start server on default port 8787
  groupshot serve

  # Start server on custom port
  groupshot serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			handler := handlers.New(cfg)

			// Set up routes
			mux := http.NewServeMux()
			mux.HandleFunc("/api/sessions", handler.HandleSessions)
			mux.HandleFunc("/api/sessions/", handler.HandleSessionDetail)
			mux.HandleFunc("/api/credential", handler.HandleCredential)
			mux.HandleFunc("/api/usage", handler.HandleUsage)
			mux.HandleFunc("/api/usage/export", handler.HandleUsageExport)
			mux.HandleFunc("/", handler.HandleStatic)
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Groupshot studio available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")

	return cmd
}
