package etl

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/doc-sentinel/internal/privacy"
)

// DataRecord is one document from the input dataset
type DataRecord struct {
	ID   string `parquet:"id" json:"id"`
	Text string `parquet:"text" json:"text"`
}

// OutputRecord is one redacted document. Counts carry labels only.
type OutputRecord struct {
	ID     string               `json:"id"`
	Text   string               `json:"text"`
	Counts []privacy.LabelCount `json:"counts"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64          `json:"total_records"`
	ProcessedOK     int64          `json:"processed_ok"`
	ProcessedFailed int64          `json:"processed_failed"`
	Skipped         int64          `json:"skipped"`
	Redactions      map[string]int `json:"redactions"`
	Duration        time.Duration  `json:"duration"`
	RedactionTime   time.Duration  `json:"redaction_time"`
	AuditTime       time.Duration  `json:"audit_time"`
	Errors          []string       `json:"errors,omitempty"`
}

// Config contains batch redaction configuration
type Config struct {
	BatchSize      int
	WorkerCount    int
	ProgressReport int
	RecordAudit    bool
	MaxTextLength  int // in bytes; 0 disables the check
}

// ProcessingStats tracks live processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	RecordsRead    int64     `json:"records_read"`
	RecordsWritten int64     `json:"records_written"`
	CurrentBatch   int64     `json:"current_batch"`
	ProcessingRate float64   `json:"processing_rate"` // records per second
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
	FormatUnknown FileFormat = ""
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	default:
		return FormatUnknown
	}
}
