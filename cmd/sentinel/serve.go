package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/doc-sentinel/internal/cache"
	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/server"
	"github.com/raaihank/doc-sentinel/internal/summarize"
)

const shutdownTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review API server",
	Long: `Run the HTTP review API with the WebSocket event feed.

Changes to the configuration file are picked up without a restart for the
redaction settings and review defaults.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		server.Version = version
		log.Info("Starting doc-sentinel",
			zap.String("version", version),
			zap.String("commit", commit),
			zap.String("build_date", date),
			zap.Int("port", cfg.Server.Port),
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := cache.New(cfg.SessionStore, cfg.Review.SessionTTL, log)
		if err != nil {
			return fmt.Errorf("failed to create session store: %w", err)
		}
		defer store.Close()

		deps := server.Dependencies{Store: store}

		auditStore, err := openAudit(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		if auditStore != nil {
			defer auditStore.Close()
			deps.Auditor = auditStore
		}

		if summarizer, err := summarize.NewFromConfig(cfg.Summarizer, log); err != nil {
			log.Warn("Summarization disabled", zap.Error(err))
		} else {
			deps.Summarizer = summarizer
		}

		srv, err := server.New(cfg, log, deps)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		err = config.Watch(flagConfig,
			func(newCfg *config.Config) {
				if err := srv.Reload(newCfg); err != nil {
					log.Error("Failed to apply configuration", zap.Error(err))
				}
			},
			func(err error) {
				log.Warn("Ignoring configuration change", zap.Error(err))
			})
		if err != nil {
			log.Info("Configuration hot reload disabled", zap.Error(err))
		}

		serverErrors := make(chan error, 1)
		go func() {
			serverErrors <- srv.Start(ctx)
		}()

		select {
		case err := <-serverErrors:
			if err != nil {
				log.Error("Server error", zap.Error(err))
			}
			return err
		case <-ctx.Done():
			log.Info("Shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}

		log.Info("Server shutdown complete")
		return nil
	},
}
