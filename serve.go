package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"strategic-advisor/internal/config"
	"strategic-advisor/internal/replay"
)

var serveMockCmd = &cobra.Command{
	Use:   "serve-mock",
	Short: "Serve a captured golden trace as a mock advisor backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromViper(viper.GetViper())
		if err != nil {
			return err
		}

		trace, err := replay.LoadFile(cfg.MockTrace)
		if err != nil {
			return err
		}
		payloads := trace.Payloads()

		logger := log.With().Str("component", "mock").Logger()
		srv := &http.Server{
			Addr:              cfg.MockAddr,
			Handler:           replay.NewMux(replay.NewHandler(payloads, cfg.MockDelay, logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			logger.Info().Str("addr", cfg.MockAddr).Int("events", len(payloads)).Msg("Serving golden trace")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "mock server failed")
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info().Msg("Shutting down mock server")
			return srv.Shutdown(shutdownCtx)
		})

		return eg.Wait()
	},
}
