package summarize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
)

// Token budgets per section
const (
	historyMaxTokens  = 600
	symptomsMaxTokens = 600
	summaryMaxTokens  = 2048
)

// timestampLayout is used in every output file name
const timestampLayout = "20060102_150405"

// Options selects the template and which sections to generate
type Options struct {
	Template    string `json:"template"`
	History     bool   `json:"history"`
	Symptoms    bool   `json:"symptoms"`
	FullSummary bool   `json:"full_summary"`
}

// DefaultOptions generates every section with the given template
func DefaultOptions(template string) Options {
	return Options{Template: template, History: true, Symptoms: true, FullSummary: true}
}

// Result holds the generated sections; sections not requested are empty
type Result struct {
	Template    string `json:"template"`
	History     string `json:"history,omitempty"`
	Symptoms    string `json:"symptoms,omitempty"`
	FullSummary string `json:"full_summary,omitempty"`
}

// Empty reports whether no section was generated
func (r *Result) Empty() bool {
	return r == nil || r.History == "" && r.Symptoms == "" && r.FullSummary == ""
}

// Summarizer hands confirmed, redacted text to a Generator. It must never be
// given text that has not been through redaction and review.
type Summarizer struct {
	generator Generator
	templates *Registry
	logger    *logger.Logger
}

// New creates a summarizer over an existing generator with the built-in
// templates
func New(generator Generator, log *logger.Logger) *Summarizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Summarizer{generator: generator, templates: defaultRegistry, logger: log.WithComponent("summarizer")}
}

// WithTemplates replaces the template set
func (s *Summarizer) WithTemplates(r *Registry) *Summarizer {
	s.templates = r
	return s
}

// NewFromConfig builds the provider client, wraps it with rate limiting and a
// circuit breaker, and returns a summarizer over it with the built-in and
// configured custom templates.
func NewFromConfig(cfg config.SummarizerConfig, log *logger.Logger) (*Summarizer, error) {
	templates, err := NewRegistry(cfg.CustomTemplates)
	if err != nil {
		return nil, err
	}
	gen, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	guarded := NewGuardedGenerator(gen, GuardConfig{
		RequestsPerMin: cfg.RequestsPerMin,
		MaxFailures:    cfg.Breaker.MaxFailures,
		OpenTimeout:    cfg.Breaker.OpenTimeout,
	}, log)
	return New(guarded, log).WithTemplates(templates), nil
}

// TemplateKeys lists the templates this summarizer accepts
func (s *Summarizer) TemplateKeys() []string {
	return s.templates.Keys()
}

// State reports the provider circuit state, or "" when the generator is not
// guarded
func (s *Summarizer) State() string {
	if g, ok := s.generator.(*GuardedGenerator); ok {
		return g.State()
	}
	return ""
}

// Summarize generates the requested sections. It stops at the first failure
// and returns the sections generated so far along with the error.
func (s *Summarizer) Summarize(ctx context.Context, text string, opts Options) (*Result, error) {
	tmpl, err := s.templates.Lookup(opts.Template)
	if err != nil {
		return nil, err
	}

	result := &Result{Template: tmpl.Key}
	sections := []struct {
		name      string
		enabled   bool
		prompt    string
		maxTokens int
		out       *string
	}{
		{"history", opts.History, tmpl.History, historyMaxTokens, &result.History},
		{"symptoms", opts.Symptoms, tmpl.Symptoms, symptomsMaxTokens, &result.Symptoms},
		{"full_summary", opts.FullSummary, tmpl.Summary, summaryMaxTokens, &result.FullSummary},
	}

	for _, section := range sections {
		if !section.enabled {
			continue
		}

		start := time.Now()
		out, err := s.generator.Generate(ctx, Render(section.prompt, text), section.maxTokens)
		if err != nil {
			return result, fmt.Errorf("generating %s: %w", section.name, err)
		}
		*section.out = out

		s.logger.Info("Section generated",
			zap.String("section", section.name),
			zap.String("provider", s.generator.Name()),
			zap.Int("chars", utf8.RuneCountInString(out)),
			zap.Duration("duration", time.Since(start)),
		)
	}

	return result, nil
}

// SaveResults writes each generated section to its own timestamped file and
// returns the written paths keyed by section.
func SaveResults(dir string, result *Result, now time.Time) (map[string]string, error) {
	return writeFiles(dir, now, []outputFile{
		{"history", "病歴", result.History},
		{"symptoms", "症状の詳細", result.Symptoms},
		{"full_summary", "全期間サマリー", result.FullSummary},
	})
}

// WriteRedacted persists the confirmed text and its redaction report
func WriteRedacted(dir, text, report string, now time.Time) (map[string]string, error) {
	return writeFiles(dir, now, []outputFile{
		{"redacted", "匿名化済み", text},
		{"report", "削除レポート", report},
	})
}

type outputFile struct {
	key    string
	prefix string
	body   string
}

func writeFiles(dir string, now time.Time, files []outputFile) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	ts := now.Format(timestampLayout)
	saved := make(map[string]string)
	for _, f := range files {
		if f.body == "" {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.txt", f.prefix, ts))
		if err := os.WriteFile(path, []byte(f.body), 0o600); err != nil {
			return saved, fmt.Errorf("writing %s: %w", f.key, err)
		}
		saved[f.key] = path
	}
	return saved, nil
}
