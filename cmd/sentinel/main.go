package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/doc-sentinel/internal/audit"
	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Redact personal information from Japanese medical documents",
	Long: `doc-sentinel removes dates of birth, addresses, phone numbers, IDs and
personal names from Japanese medical records before they are handed to a
summarization service.

Examples:
  sentinel redact 診断書.txt
  sentinel redact --review --out output 紹介状.txt
  sentinel serve --config configs/config.yaml`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command shares
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// openAudit connects to and migrates the audit store, or returns nil when
// auditing is disabled
func openAudit(ctx context.Context, cfg *config.Config, log *logger.Logger) (*audit.Store, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	store, err := audit.NewStore(cfg.Audit, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("Audit trail enabled", zap.String("driver", cfg.Audit.Driver))
	return store, nil
}
