package audit

import (
	"time"

	"github.com/raaihank/doc-sentinel/internal/privacy"
)

// Entry is one redacted document. It carries label counts only, never the
// removed values or the document text.
type Entry struct {
	DocumentID string
	Source     string // api, cli or etl
	Counts     []privacy.LabelCount
	CreatedAt  time.Time
}

// row is one audit_events record
type row struct {
	ID         int64  `db:"id"`
	DocumentID string `db:"document_id"`
	Source     string `db:"source"`
	Category   string `db:"category"`
	Label      string `db:"label"`
	Count      int    `db:"occurrences"`
	CreatedAt  int64  `db:"created_at"`
}

// Totals aggregates the whole audit trail
type Totals struct {
	Documents int64                `json:"documents"`
	Labels    []privacy.LabelCount `json:"labels"`
}
