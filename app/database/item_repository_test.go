package database

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return Wrap(sqlx.NewDb(mockDB, "postgres")), mock
}

func strPtr(s string) *string { return &s }

func TestFindIDBySourceItemID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM items WHERE source_item_id = $1`)).
		WithArgs("etsy:123").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("item-1"))

	id, err := repo.FindIDBySourceItemID(context.Background(), "etsy:123")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "item-1", *id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindIDBySourceItemIDMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM items WHERE source_item_id = $1`)).
		WithArgs("etsy:404").
		WillReturnError(sql.ErrNoRows)

	id, err := repo.FindIDBySourceItemID(context.Background(), "etsy:404")
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestInsertAggregatedCreated(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	vec := pgvector.NewVector([]float32{0.1, 0.2})
	item := &CatalogItem{
		Slug:         "teak-sideboard-abc12345",
		Title:        "Teak sideboard",
		Description:  "Mid-century teak sideboard",
		Price:        125000,
		Currency:     "USD",
		Images:       []string{"https://img/1.jpg"},
		Tags:         []string{"teak", "sideboard"},
		Embedding:    &vec,
		SourceURL:    strPtr("https://etsy.com/listing/1"),
		VendorName:   strPtr("etsy"),
		SourceItemID: strPtr("etsy:1"),
		SellerID:     "00000000-0000-0000-0000-000000000000",
	}

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (source_item_id) DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.InsertAggregated(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, ItemTypeAggregated, item.Type)
	assert.Equal(t, ItemStatusAvailable, item.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAggregatedConflictIsAbsorbed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (source_item_id) DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.InsertAggregated(context.Background(), &CatalogItem{
		Slug: "lamp-x", Title: "Lamp", SourceItemID: strPtr("etsy:1"),
		SourceURL: strPtr("https://x"), VendorName: strPtr("etsy"),
	})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSearchPassesQueryThrough(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "slug", "title", "description", "price", "currency", "type", "status",
		"images", "tags", "source_url", "vendor_name", "source_item_id", "seller_id",
		"created_at", "updated_at", "score", "total_count",
	}).AddRow("id-1", "lamp-1", "Brass lamp", "", 5000, "USD", "AGGREGATED", "AVAILABLE",
		"{https://img/1.jpg}", "{brass,lamp}", "https://x", "etsy", "etsy:1", "seller",
		now, now, 0.91, 1)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM items WHERE title ILIKE $1`)).
		WithArgs("%lamp%").
		WillReturnRows(rows)

	items, err := repo.Search(context.Background(), `SELECT * FROM items WHERE title ILIKE $1`, []any{"%lamp%"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Brass lamp", items[0].Title)
	assert.Equal(t, []string{"brass", "lamp"}, []string(items[0].Tags))
	assert.InDelta(t, 0.91, items[0].Score, 1e-9)
	assert.Equal(t, 1, items[0].TotalCount)
}

func TestListAvailable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM items`)).
		WithArgs("AGGREGATED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC`)).
		WithArgs("AGGREGATED", 20, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "slug", "title", "description", "price", "currency", "type", "status",
			"images", "tags", "source_url", "vendor_name", "source_item_id", "seller_id",
			"created_at", "updated_at",
		}).AddRow("id-2", "chair-2", "Chair", "", 0, "USD", "AGGREGATED", "AVAILABLE",
			"{}", "{}", nil, nil, nil, "seller", now, now))

	items, total, err := repo.ListAvailable(context.Background(), ItemTypeAggregated, 20, 20)
	require.NoError(t, err)
	assert.Equal(t, 42, total)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].SourceURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}
