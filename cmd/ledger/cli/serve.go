package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/app"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				slog.Default().Info("test mode detected, skipping runtime startup")
				return nil
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container, err := app.Bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer container.Close()

			server := &http.Server{
				Addr:         cfg.AppAddr,
				Handler:      container.Router(),
				ReadTimeout:  cfg.AppReadTimeout,
				WriteTimeout: cfg.AppWriteTimeout,
			}

			go func() {
				logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.LedgerStore))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server", slog.Any("error", err))
					stop()
				}
			}()

			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown", slog.Any("error", err))
				return err
			}
			return nil
		},
	}
}
