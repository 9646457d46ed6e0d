package etl

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/doc-sentinel/internal/audit"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/review"
)

// Auditor records per-document label counts
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Pipeline redacts datasets of documents without human review
type Pipeline struct {
	redactor review.Redactor
	auditor  Auditor
	config   Config
	logger   *logger.Logger
	stats    *ProcessingStats
	mu       sync.RWMutex
}

// NewPipeline creates a batch pipeline. auditor may be nil.
func NewPipeline(redactor review.Redactor, auditor Auditor, config Config, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	return &Pipeline{
		redactor: redactor,
		auditor:  auditor,
		config:   config,
		logger:   log.WithComponent("etl"),
		stats:    &ProcessingStats{StartTime: time.Now()},
	}
}

type batchReader func() ([]*DataRecord, error)

// ProcessFile redacts every document in the dataset and writes one JSON
// object per document to out, in input order.
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string, out io.Writer) (*ProcessingResult, error) {
	format := DetectFileFormat(filePath)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unsupported file format: %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	p.logger.Info("Starting batch redaction",
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	var next batchReader
	switch format {
	case FormatCSV:
		next, err = p.csvBatches(file)
	case FormatParquet:
		reader := parquet.NewReader(file)
		defer reader.Close()
		next = p.parquetBatches(reader)
	case FormatJSONL:
		next = p.jsonBatches(file)
	}
	if err != nil {
		return nil, err
	}

	return p.run(ctx, next, out)
}

func (p *Pipeline) run(ctx context.Context, next batchReader, out io.Writer) (*ProcessingResult, error) {
	start := time.Now()
	p.resetStats()

	result := &ProcessingResult{Redactions: make(map[string]int)}
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)
	lastReport := int64(0)

	for {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		batch, err := next()
		if err != nil {
			return result, fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		p.updateStats(func(s *ProcessingStats) {
			s.CurrentBatch++
			s.RecordsRead += int64(len(batch))
		})

		records, err := p.processBatch(ctx, batch, result)
		for _, rec := range records {
			if rec == nil {
				continue
			}
			if err := encoder.Encode(rec); err != nil {
				return result, fmt.Errorf("failed to write output: %w", err)
			}
		}
		p.updateStats(func(s *ProcessingStats) {
			s.RecordsWritten = result.ProcessedOK
		})
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		if p.config.ProgressReport > 0 && result.TotalRecords-lastReport >= int64(p.config.ProgressReport) {
			lastReport = result.TotalRecords
			p.reportProgress(result)
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info("Batch redaction completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("skipped", result.Skipped),
		zap.Any("redactions", result.Redactions),
		zap.Duration("duration", result.Duration),
		zap.Duration("redaction_time", result.RedactionTime),
		zap.Duration("audit_time", result.AuditTime))

	return result, nil
}

// csvBatches reads a CSV with a header row holding at least id and text
func (p *Pipeline) csvBatches(src io.Reader) (batchReader, error) {
	reader := csv.NewReader(src)
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	idCol, textCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "id":
			idCol = i
		case "text":
			textCol = i
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("CSV header has no text column: %v", header)
	}

	return func() ([]*DataRecord, error) {
		var batch []*DataRecord
		for len(batch) < p.config.BatchSize {
			row, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				var parseErr *csv.ParseError
				if !errors.As(err, &parseErr) {
					return batch, fmt.Errorf("failed to read CSV record: %w", err)
				}
				p.logger.Warn("Skipping malformed CSV record", zap.Error(err))
				continue
			}
			record := &DataRecord{Text: row[textCol]}
			if idCol >= 0 {
				record.ID = strings.TrimSpace(row[idCol])
			}
			batch = append(batch, record)
		}
		return batch, nil
	}, nil
}

func (p *Pipeline) parquetBatches(reader *parquet.Reader) batchReader {
	return func() ([]*DataRecord, error) {
		var batch []*DataRecord
		for len(batch) < p.config.BatchSize {
			var record DataRecord
			err := reader.Read(&record)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return batch, fmt.Errorf("failed to read Parquet record: %w", err)
			}
			batch = append(batch, &record)
		}
		return batch, nil
	}
}

// jsonBatches reads one JSON object per line
func (p *Pipeline) jsonBatches(src io.Reader) batchReader {
	decoder := json.NewDecoder(src)
	return func() ([]*DataRecord, error) {
		var batch []*DataRecord
		for len(batch) < p.config.BatchSize {
			var record DataRecord
			err := decoder.Decode(&record)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				// the decoder cannot resynchronise after a syntax error
				return batch, fmt.Errorf("failed to decode JSON record: %w", err)
			}
			batch = append(batch, &record)
		}
		return batch, nil
	}
}

// processBatch redacts a batch on the worker pool. The returned slice is in
// input order; entries for skipped or failed records are nil.
func (p *Pipeline) processBatch(ctx context.Context, batch []*DataRecord, result *ProcessingResult) ([]*OutputRecord, error) {
	records := make([]*OutputRecord, len(batch))
	errs := make([]error, len(batch))
	auditTimes := make([]time.Duration, len(batch))

	jobs := make(chan int)
	var wg sync.WaitGroup
	redactStart := time.Now()

	for w := 0; w < min(p.config.WorkerCount, len(batch)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				records[i], auditTimes[i], errs[i] = p.processRecord(ctx, batch[i])
			}
		}()
	}

dispatch:
	for i := range batch {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(redactStart)

	var auditTime time.Duration
	for i, rec := range records {
		auditTime += auditTimes[i]
		switch {
		case errors.Is(errs[i], errSkipped):
			result.Skipped++
		case errs[i] != nil && rec == nil:
			result.ProcessedFailed++
			result.Errors = append(result.Errors, errs[i].Error())
		case rec != nil:
			if errs[i] != nil {
				result.Errors = append(result.Errors, errs[i].Error())
			}
			result.ProcessedOK++
			for _, lc := range rec.Counts {
				result.Redactions[lc.Label] += lc.Count
			}
		}
		if rec != nil || errs[i] != nil {
			result.TotalRecords++
		}
	}
	result.AuditTime += auditTime
	result.RedactionTime += elapsed

	return records, ctx.Err()
}

var errSkipped = errors.New("record skipped")

// processRecord takes one document through the non-interactive workflow. A
// failed audit write is reported but does not withhold the redacted record.
func (p *Pipeline) processRecord(ctx context.Context, record *DataRecord) (*OutputRecord, time.Duration, error) {
	if strings.TrimSpace(record.Text) == "" {
		return nil, 0, errSkipped
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if p.config.MaxTextLength > 0 && len(record.Text) > p.config.MaxTextLength {
		return nil, 0, fmt.Errorf("record %s: text too long (%d bytes)", record.ID, len(record.Text))
	}

	workflow := review.NewWorkflow(record.Text, false)
	if _, err := workflow.Redact(p.redactor); err != nil {
		return nil, 0, fmt.Errorf("record %s: %w", record.ID, err)
	}

	out := &OutputRecord{ID: record.ID, Text: workflow.Text(), Counts: workflow.Counts()}

	if !p.config.RecordAudit || p.auditor == nil {
		return out, 0, nil
	}
	start := time.Now()
	err := p.auditor.Record(ctx, audit.Entry{
		DocumentID: record.ID,
		Source:     "etl",
		Counts:     out.Counts,
		CreatedAt:  start,
	})
	if err != nil {
		p.logger.Warn("Failed to record audit entry", zap.String("document_id", record.ID), zap.Error(err))
		return out, time.Since(start), fmt.Errorf("record %s: audit: %w", record.ID, err)
	}
	return out, time.Since(start), nil
}

func (p *Pipeline) reportProgress(result *ProcessingResult) {
	stats := p.GetStats()
	elapsed := time.Since(stats.StartTime)
	rate := float64(result.TotalRecords) / elapsed.Seconds()
	p.updateStats(func(s *ProcessingStats) { s.ProcessingRate = rate })

	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}

func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = &ProcessingStats{StartTime: time.Now()}
}

func (p *Pipeline) updateStats(fn func(*ProcessingStats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.stats)
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	return &stats
}
