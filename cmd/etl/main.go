package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/doc-sentinel/internal/audit"
	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/etl"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/privacy"
)

var (
	flagConfig    string
	flagInput     string
	flagOutput    string
	flagBatchSize int
	flagWorkers   int
	flagNoAudit   bool
	flagMaxLength int
	flagStats     bool
)

var rootCmd = &cobra.Command{
	Use:   "etl",
	Short: "Redact a dataset of documents without review",
	Long: `Redact every document of a CSV (id,text), JSONL ({"id","text"}) or Parquet
dataset and write one JSON object per document with the redacted text and the
per-label counts. Documents are not reviewed; use sentinel redact --review for
anything that leaves the hospital.

Examples:
  etl --input records.csv --output redacted.jsonl
  etl --input records.parquet --workers 8 --batch-size 1000
  etl --stats`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to configuration file")
	rootCmd.Flags().StringVarP(&flagInput, "input", "i", "", "input dataset (CSV, JSONL or Parquet)")
	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output JSONL file, - for stdout (default <input>.redacted.jsonl)")
	rootCmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "records per batch (default from config)")
	rootCmd.Flags().IntVar(&flagWorkers, "workers", 0, "number of worker goroutines (default from config)")
	rootCmd.Flags().BoolVar(&flagNoAudit, "no-audit", false, "do not record audit entries")
	rootCmd.Flags().IntVar(&flagMaxLength, "max-length", 0, "fail records whose text exceeds this many bytes")
	rootCmd.Flags().BoolVar(&flagStats, "stats", false, "show audit totals and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagInput == "" && !flagStats {
		return errors.New("--input is required")
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flagStats {
		return showAuditStats(ctx, cfg, log, cmd.OutOrStdout())
	}

	log.Info("Starting doc-sentinel ETL pipeline", zap.String("input", flagInput))

	detector, err := privacy.New(cfg.Privacy, log.WithComponent("privacy"))
	if err != nil {
		return err
	}

	var auditor etl.Auditor
	recordAudit := cfg.ETL.RecordAudit && !flagNoAudit
	if recordAudit && cfg.Audit.Enabled {
		store, err := openAudit(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()
		auditor = store
	}

	out, closeOut, err := openOutput(flagInput, flagOutput, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut()

	etlConfig := etl.Config{
		BatchSize:      pick(flagBatchSize, cfg.ETL.BatchSize),
		WorkerCount:    pick(flagWorkers, cfg.ETL.WorkerCount),
		ProgressReport: cfg.ETL.ProgressReport,
		RecordAudit:    recordAudit,
		MaxTextLength:  flagMaxLength,
	}

	pipeline := etl.NewPipeline(detector, auditor, etlConfig, log)
	result, err := pipeline.ProcessFile(ctx, flagInput, out)
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	log.Info("Dataset processing completed",
		zap.String("file", flagInput),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("skipped", result.Skipped),
		zap.Float64("records_per_second", float64(result.TotalRecords)/result.Duration.Seconds()))

	if len(result.Errors) > 0 {
		log.Warn("Processing completed with errors", zap.Strings("errors", result.Errors))
	}
	return nil
}

func pick(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}

// openOutput resolves the output destination; the default sits next to the
// input file
func openOutput(input, output string, stdout io.Writer) (io.Writer, func(), error) {
	if output == "-" {
		return stdout, func() {}, nil
	}
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".redacted.jsonl"
	}
	if filepath.Clean(output) == filepath.Clean(input) {
		return nil, nil, fmt.Errorf("output would overwrite input: %s", output)
	}

	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

func openAudit(ctx context.Context, cfg *config.Config, log *logger.Logger) (*audit.Store, error) {
	store, err := audit.NewStore(cfg.Audit, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// showAuditStats prints the number of audited documents and per-label totals
func showAuditStats(ctx context.Context, cfg *config.Config, log *logger.Logger, out io.Writer) error {
	if !cfg.Audit.Enabled {
		return errors.New("audit store is disabled in configuration")
	}
	store, err := openAudit(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	totals, err := store.Totals(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "documents\t%d\n", totals.Documents)
	for _, lc := range totals.Labels {
		fmt.Fprintf(w, "%s\t%d\n", lc.Label, lc.Count)
	}
	return w.Flush()
}
