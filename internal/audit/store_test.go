package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/privacy"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(config.AuditConfig{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestStore_RecordAndTotals(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Record(ctx, Entry{
		DocumentID: "doc-1",
		Source:     "api",
		Counts: []privacy.LabelCount{
			{Category: privacy.CategoryName, Label: "氏名", Count: 2},
			{Category: privacy.CategoryPhone, Label: "電話番号", Count: 1},
		},
		CreatedAt: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.Record(ctx, Entry{
		DocumentID: "doc-2",
		Source:     "etl",
		Counts:     []privacy.LabelCount{{Category: privacy.CategoryName, Label: "氏名", Count: 3}},
	}))
	// documents without findings leave no rows
	require.NoError(t, store.Record(ctx, Entry{DocumentID: "doc-3", Source: "etl"}))

	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Documents)
	assert.Equal(t, []privacy.LabelCount{
		{Category: privacy.CategoryPhone, Label: "電話番号", Count: 1},
		{Category: privacy.CategoryName, Label: "氏名", Count: 5},
	}, totals.Labels)

	entries, err := store.Entries(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "氏名", entries[0].Label)
}

func TestStore_MigrateIsRepeatable(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Migrate(context.Background()))
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	_, err := NewStore(config.AuditConfig{Driver: "mysql", DSN: "x"}, nil)
	assert.Error(t, err)
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://audit:***@db:5432/audit", maskDSN("postgres://audit:secret@db:5432/audit"))
	assert.Equal(t, "file:audit.db", maskDSN("file:audit.db"))
}
