package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/privacy"
)

// Store persists the redaction audit trail in PostgreSQL or SQLite
type Store struct {
	db     *sqlx.DB
	driver string
	logger *logger.Logger
}

var schemas = map[string]string{
	"postgres": `
		CREATE TABLE IF NOT EXISTS audit_events (
			id          BIGSERIAL PRIMARY KEY,
			document_id TEXT NOT NULL,
			source      TEXT NOT NULL,
			category    TEXT NOT NULL,
			label       TEXT NOT NULL,
			occurrences INTEGER NOT NULL,
			created_at  BIGINT NOT NULL
		)`,
	"sqlite": `
		CREATE TABLE IF NOT EXISTS audit_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL,
			source      TEXT NOT NULL,
			category    TEXT NOT NULL,
			label       TEXT NOT NULL,
			occurrences INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		)`,
}

const indexDDL = `CREATE INDEX IF NOT EXISTS idx_audit_events_document ON audit_events (document_id)`

// NewStore opens the database and verifies the connection
func NewStore(cfg config.AuditConfig, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	if _, ok := schemas[cfg.Driver]; !ok {
		return nil, fmt.Errorf("unsupported audit driver: %s", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// one writer; also keeps an in-memory database alive
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit database ping failed: %w", err)
	}

	store := &Store{db: db, driver: cfg.Driver, logger: log.WithComponent("audit")}

	store.logger.Info("Audit store initialized",
		zap.String("driver", cfg.Driver),
		zap.String("dsn", maskDSN(cfg.DSN)))

	return store, nil
}

// Migrate creates the audit table if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemas[s.driver]); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, indexDDL); err != nil {
		return fmt.Errorf("failed to create audit index: %w", err)
	}
	return nil
}

// Record writes one row per label of the entry in a single transaction
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if len(entry.Counts) == 0 {
		return nil
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := tx.Rebind(`
		INSERT INTO audit_events (document_id, source, category, label, occurrences, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)

	for _, lc := range entry.Counts {
		if _, err := tx.ExecContext(ctx, query,
			entry.DocumentID,
			entry.Source,
			lc.Category.String(),
			lc.Label,
			lc.Count,
			createdAt.Unix(),
		); err != nil {
			s.logger.Error("Failed to record audit entry",
				zap.String("document_id", entry.DocumentID),
				zap.Error(err))
			return fmt.Errorf("failed to record audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit entry: %w", err)
	}

	s.logger.Debug("Audit entry recorded",
		zap.String("document_id", entry.DocumentID),
		zap.Int("labels", len(entry.Counts)))
	return nil
}

// Entries returns the rows recorded for one document
func (s *Store) Entries(ctx context.Context, documentID string) ([]privacy.LabelCount, error) {
	var rows []row
	query := s.db.Rebind(`
		SELECT id, document_id, source, category, label, occurrences, created_at
		FROM audit_events
		WHERE document_id = ?
		ORDER BY id`)
	if err := s.db.SelectContext(ctx, &rows, query, documentID); err != nil {
		return nil, fmt.Errorf("failed to load audit entries: %w", err)
	}

	counts := make([]privacy.LabelCount, 0, len(rows))
	for _, r := range rows {
		category, err := privacy.ParseCategory(r.Category)
		if err != nil {
			return nil, fmt.Errorf("corrupt audit row %d: %w", r.ID, err)
		}
		counts = append(counts, privacy.LabelCount{Category: category, Label: r.Label, Count: r.Count})
	}
	return counts, nil
}

// Totals sums counts per label across all documents, in canonical order
func (s *Store) Totals(ctx context.Context) (*Totals, error) {
	totals := &Totals{Labels: make([]privacy.LabelCount, 0)}

	if err := s.db.GetContext(ctx, &totals.Documents,
		"SELECT COUNT(DISTINCT document_id) FROM audit_events"); err != nil {
		return nil, fmt.Errorf("failed to count audited documents: %w", err)
	}

	var sums []struct {
		Category string `db:"category"`
		Label    string `db:"label"`
		Total    int64  `db:"total"`
	}
	query := `
		SELECT category, label, SUM(occurrences) AS total
		FROM audit_events
		GROUP BY category, label`
	if err := s.db.SelectContext(ctx, &sums, query); err != nil {
		return nil, fmt.Errorf("failed to sum audit entries: %w", err)
	}

	for _, sum := range sums {
		category, err := privacy.ParseCategory(sum.Category)
		if err != nil {
			s.logger.Warn("Skipping unknown audit category", zap.String("category", sum.Category))
			continue
		}
		totals.Labels = append(totals.Labels, privacy.LabelCount{
			Category: category,
			Label:    sum.Label,
			Count:    int(sum.Total),
		})
	}

	sort.SliceStable(totals.Labels, func(i, j int) bool {
		a, b := totals.Labels[i], totals.Labels[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Label < b.Label
	})

	return totals, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDSN hides the password in a connection string for logging
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	userPart := dsn[:at]
	colon := strings.LastIndex(userPart, ":")
	if colon <= strings.Index(userPart, "://") {
		return dsn
	}
	return userPart[:colon+1] + "***" + dsn[at:]
}
