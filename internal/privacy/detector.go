package privacy

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"go.uber.org/zap"
)

// Detector runs the redaction rules over a document. It holds no mutable
// state after construction and is safe for concurrent use.
type Detector struct {
	rules   []Rule
	enabled map[Category]bool
	logger  *logger.Logger
	config  config.PrivacyConfig
}

// New creates a detector from configuration
func New(cfg config.PrivacyConfig, log *logger.Logger) (*Detector, error) {
	if log == nil {
		log = logger.Nop()
	}

	detector := &Detector{
		rules:   DefaultRules(NewProtectedTerms(cfg.ExtraProtectedTerms), cfg.StrictNames),
		enabled: make(map[Category]bool),
		logger:  log,
		config:  cfg,
	}

	if err := ValidateOrder(detector.rules); err != nil {
		return nil, err
	}

	if err := detector.configureDetectors(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("Privacy detector initialized",
		zap.Int("total_rules", len(detector.rules)),
		zap.Strings("enabled_rules", detector.EnabledCategories()),
		zap.Bool("strict_names", cfg.StrictNames),
	)

	return detector, nil
}

// configureDetectors enables categories by name; "all" enables every rule
func (d *Detector) configureDetectors(detectors []string) error {
	for _, detector := range detectors {
		if detector == "all" {
			for _, rule := range d.rules {
				d.enabled[rule.Category] = true
			}
			continue
		}

		category, err := ParseCategory(detector)
		if err != nil {
			return err
		}
		d.enabled[category] = true
	}
	return nil
}

// Redact replaces every recognized identifier with its placeholder. Rules run
// in canonical order, each over the output of the previous one. Existing
// placeholders are never matched again, so redacting redacted text is a no-op.
func (d *Detector) Redact(text string) Result {
	if !d.config.Enabled {
		return Result{Text: text, Events: []Event{}}
	}

	result := applyRules(d.rules, d.enabled, text)

	if len(result.Events) > 0 {
		fields := make([]zap.Field, 0, len(result.Events))
		for _, lc := range Summarize(result.Events) {
			fields = append(fields, zap.Int(lc.Label, lc.Count))
		}
		d.logger.Debug("PII redacted", fields...)
	}

	return result
}

// EnabledCategories returns the enabled categories in canonical order
func (d *Detector) EnabledCategories() []string {
	enabled := make([]string, 0, len(d.enabled))
	for _, rule := range d.rules {
		if d.enabled[rule.Category] {
			enabled = append(enabled, rule.Category.String())
		}
	}
	return enabled
}

// applyRules is the pipeline proper. enabled == nil runs every rule. A rule
// is re-applied to its own output until it stops matching; every event turns
// at least one rune of free text into a placeholder, so this terminates.
func applyRules(rules []Rule, enabled map[Category]bool, text string) Result {
	segs := splitPlaceholders(text)
	events := make([]Event, 0)

	for _, rule := range rules {
		if enabled != nil && !enabled[rule.Category] {
			continue
		}
		for {
			before := len(events)
			for _, alt := range rule.Alternatives {
				segs = applyAlternative(segs, rule.Category, alt, &events)
			}
			if len(events) == before {
				break
			}
		}
	}

	return Result{Text: joinSegments(segs), Events: events}
}

// segment is a piece of the working buffer. Placeholder segments are opaque
// to every matcher.
type segment struct {
	text        string
	placeholder bool
}

var placeholderPattern = func() *regexp.Regexp {
	labels := []string{LabelDate, LabelPostalCode, LabelAddress, LabelPhone, LabelID, LabelName}
	quoted := make([]string, len(labels))
	for i, label := range labels {
		quoted[i] = regexp.QuoteMeta(label)
	}
	return regexp.MustCompile(`\[(?:` + strings.Join(quoted, "|") + `)\]`)
}()

func splitPlaceholders(text string) []segment {
	var segs []segment
	last := 0
	for _, loc := range placeholderPattern.FindAllStringIndex(text, -1) {
		segs = appendFree(segs, text[last:loc[0]])
		segs = append(segs, segment{text: text[loc[0]:loc[1]], placeholder: true})
		last = loc[1]
	}
	return appendFree(segs, text[last:])
}

func appendFree(segs []segment, text string) []segment {
	if text == "" {
		return segs
	}
	return append(segs, segment{text: text})
}

func joinSegments(segs []segment) string {
	var b strings.Builder
	for _, seg := range segs {
		b.WriteString(seg.text)
	}
	return b.String()
}

func applyAlternative(segs []segment, category Category, alt Alternative, events *[]Event) []segment {
	out := make([]segment, 0, len(segs))

	for i, seg := range segs {
		if seg.placeholder {
			out = append(out, seg)
			continue
		}

		spans := alt.match.find(seg.text)
		if len(spans) == 0 {
			out = append(out, seg)
			continue
		}

		last := 0
		for _, sp := range spans {
			value := seg.text[sp.cutStart:sp.cutEnd]
			if alt.guard != nil {
				c := candidate{
					Match:  seg.text[sp.start:sp.end],
					Value:  value,
					Before: runeBefore(segs, i, sp.start),
					After:  runeAfter(segs, i, sp.end),
				}
				if !alt.guard(c) {
					continue
				}
			}
			if value == "" {
				continue
			}

			out = appendFree(out, seg.text[last:sp.cutStart])
			out = append(out, segment{text: alt.Placeholder(), placeholder: true})
			*events = append(*events, Event{Category: category, Label: alt.Label, Value: value})
			last = sp.cutEnd
		}
		out = appendFree(out, seg.text[last:])
	}

	return out
}

func runeBefore(segs []segment, i, offset int) rune {
	if offset > 0 {
		r, _ := utf8.DecodeLastRuneInString(segs[i].text[:offset])
		return r
	}
	if i > 0 && segs[i-1].placeholder {
		return neighborPlaceholder
	}
	return 0
}

func runeAfter(segs []segment, i, offset int) rune {
	if offset < len(segs[i].text) {
		r, _ := utf8.DecodeRuneInString(segs[i].text[offset:])
		return r
	}
	if i+1 < len(segs) && segs[i+1].placeholder {
		return neighborPlaceholder
	}
	return 0
}
