package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/stockpilot/backendfake"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMockBackendCmd(a *app) *cobra.Command {
	var addr, secret string
	var accessTTL time.Duration
	var empty bool
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve an in-memory StockPilot backend for local testing",
		Long: "mock-backend serves the StockPilot auth and inventory API from memory. " +
			"The user " + backendfake.DefaultUsername + " / " + backendfake.DefaultPassword + " is always registered.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []backendfake.Option{
				backendfake.WithEnv(a.cfg.GetEnv()),
				backendfake.WithAccessTTL(accessTTL),
			}
			if secret != "" {
				opts = append(opts, backendfake.WithSecret([]byte(secret)))
			}
			if empty {
				opts = append(opts, backendfake.WithoutSeedData())
			}

			displayAppname(a.cfg.GetAppName())
			server := &http.Server{Addr: addr, Handler: backendfake.New(opts...), ReadHeaderTimeout: 10 * time.Second}
			errs := make(chan error, 1)
			go func() { errs <- listenAndServe(server) }()

			select {
			case err := <-errs:
				return err
			case <-cmd.Context().Done():
			}
			return shutdown(server)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing key (defaults to the built-in development key)")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", 60*time.Minute, "access token lifetime")
	cmd.Flags().BoolVar(&empty, "empty", false, "start without sample products and orders")
	return cmd
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Mock backend listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("Mock backend stopped")
	return nil
}
