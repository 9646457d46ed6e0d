package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/doc-sentinel/internal/audit"
	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/ingest"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/privacy"
	"github.com/raaihank/doc-sentinel/internal/review"
	"github.com/raaihank/doc-sentinel/internal/summarize"
	"github.com/raaihank/doc-sentinel/internal/tui"
)

var (
	flagRedactOut       string
	flagRedactReview    bool
	flagRedactSummarize bool
	flagRedactTemplate  string
	flagRedactNoReport  bool
)

var errReviewAborted = errors.New("review aborted; nothing was written")

func init() {
	redactCmd.Flags().StringVarP(&flagRedactOut, "out", "o", "", "write timestamped redacted text and report files to this directory instead of stdout")
	redactCmd.Flags().BoolVarP(&flagRedactReview, "review", "r", false, "review the redacted text in the terminal before it is written")
	redactCmd.Flags().BoolVarP(&flagRedactSummarize, "summarize", "s", false, "send the confirmed text to the summarization service")
	redactCmd.Flags().StringVarP(&flagRedactTemplate, "template", "t", "", "summary template (disability_pension, mental_health_handbook, self_support_medical or a key from summarizer.custom_templates)")
	redactCmd.Flags().BoolVar(&flagRedactNoReport, "no-report", false, "do not print the redaction report")

	rootCmd.AddCommand(redactCmd)
}

var redactCmd = &cobra.Command{
	Use:   "redact [file...]",
	Short: "Redact documents and print or save the result",
	Long: `Read one or more documents (text in UTF-8, Shift_JIS, EUC-JP or
ISO-2022-JP, or PDF with a text layer), remove personal information and print
the redacted text to stdout and the report of removed values to stderr.
Without file arguments the document is read from stdin.

With --review the redacted text is opened in the terminal, where remaining
names can be searched for and deleted before confirming.

Examples:
  sentinel redact 診断書.txt > redacted.txt
  cat 紹介状.txt | sentinel redact --no-report
  sentinel redact --review --summarize --template mental_health_handbook --out output 記録1.txt 紹介状.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagRedactReview && len(args) == 0 {
			return errors.New("--review needs file arguments; stdin is used by the terminal")
		}

		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		detector, err := privacy.New(cfg.Privacy, log.WithComponent("privacy"))
		if err != nil {
			return err
		}

		reader := ingest.NewReader(cfg.Output.MaxFileSize, detector, log)
		var text string
		if len(args) == 0 {
			text, err = reader.ReadAll(cmd.InOrStdin())
		} else {
			text, err = reader.ReadFiles(args)
		}
		if err != nil {
			return err
		}

		wf := review.NewWorkflow(text, flagRedactReview)
		wf.SetContextWindow(cfg.Review.ContextWindow)
		result, err := wf.Redact(detector)
		if err != nil {
			return err
		}
		report := privacy.BuildReport(result.Events)

		if flagRedactReview {
			confirmed, err := tui.Run(wf, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			if !confirmed {
				return errReviewAborted
			}
		}

		ctx := cmd.Context()
		documentID := uuid.NewString()
		log.WithDocument(documentID).Info("Document redacted",
			zap.Int("chars", len([]rune(wf.Text()))),
			zap.Any("counts", wf.Counts()),
		)
		recordRedaction(ctx, cfg, log, documentID, wf.Counts())

		if err := writeRedacted(cmd, log, wf.Text(), report); err != nil {
			return err
		}

		if flagRedactSummarize {
			return summarizeText(ctx, cfg, log, wf.Text())
		}
		return nil
	},
}

// recordRedaction writes the audit entry when auditing is enabled. Failures
// are logged and do not fail the command.
func recordRedaction(ctx context.Context, cfg *config.Config, log *logger.Logger, documentID string, counts []privacy.LabelCount) {
	store, err := openAudit(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open audit store", zap.Error(err))
		return
	}
	if store == nil {
		return
	}
	defer store.Close()

	err = store.Record(ctx, audit.Entry{DocumentID: documentID, Source: "cli", Counts: counts, CreatedAt: time.Now()})
	if err != nil {
		log.Error("Failed to record audit entry", zap.Error(err))
	}
}

func writeRedacted(cmd *cobra.Command, log *logger.Logger, text, report string) error {
	if flagRedactOut != "" {
		saved, err := summarize.WriteRedacted(flagRedactOut, text, report, time.Now())
		if err != nil {
			return err
		}
		for key, path := range saved {
			log.Info("Saved", zap.String("file", key), zap.String("path", path))
		}
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), text)
	if !flagRedactNoReport {
		fmt.Fprintln(cmd.ErrOrStderr(), report)
	}
	return nil
}

func summarizeText(ctx context.Context, cfg *config.Config, log *logger.Logger, text string) error {
	summarizer, err := summarize.NewFromConfig(cfg.Summarizer, log)
	if err != nil {
		return fmt.Errorf("summarization unavailable: %w", err)
	}

	template := flagRedactTemplate
	if template == "" {
		template = cfg.Summarizer.Template
	}
	result, genErr := summarizer.Summarize(ctx, text, summarize.DefaultOptions(template))

	dir := flagRedactOut
	if dir == "" {
		dir = cfg.Output.Dir
	}
	return saveSummary(log, dir, result, genErr)
}

// saveSummary writes whatever sections were generated, including those
// produced before a provider failure, and returns the generation error.
func saveSummary(log *logger.Logger, dir string, result *summarize.Result, genErr error) error {
	if result.Empty() {
		return genErr
	}

	saved, err := summarize.SaveResults(dir, result, time.Now())
	if err != nil {
		return errors.Join(genErr, err)
	}
	for key, path := range saved {
		log.Info("Saved", zap.String("section", key), zap.String("path", path))
	}
	if genErr != nil {
		log.Warn("Summary incomplete; generated sections were saved", zap.Int("saved", len(saved)), zap.Error(genErr))
	}
	return genErr
}
