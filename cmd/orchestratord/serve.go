package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cherryquant/orchestrator/internal/api"
	"github.com/cherryquant/orchestrator/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(buildApp func() (*App, error)) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler loop and HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			telemetry.Init()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.restoreAgents(ctx); err != nil {
				app.Log.Warn().Err(err).Msg("failed to restore persisted agents")
			}

			router := api.NewRouter(api.Deps{
				Manager:  app.Manager,
				Risk:     app.Risk,
				Logger:   app.Logger,
				Alerts:   app.Alerts,
				Health:   app.Health,
				Breakers: app.Breakers,
				Registry: telemetry.Registry,
			})
			srv := &http.Server{Addr: addr, Handler: router}
			go func() {
				app.Log.Info().Str("addr", addr).Msg("http api listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					app.Log.Error().Err(err).Msg("http api stopped unexpectedly")
				}
			}()

			app.Log.Info().Msg("orchestrator starting")
			app.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			if app.Store != nil {
				return app.Store.Close()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "HTTP API listen address")
	return cmd
}
