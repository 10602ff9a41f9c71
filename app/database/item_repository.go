package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const itemColumns = `id, slug, title, description, price, currency, type, status,
	images, tags, source_url, vendor_name, source_item_id, seller_id, created_at, updated_at`

// itemRepository handles database operations for catalog items
type itemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) FindIDBySourceItemID(ctx context.Context, sourceItemID string) (*string, error) {
	var id string
	err := r.db.GetContext(ctx, &id, `SELECT id FROM items WHERE source_item_id = $1 LIMIT 1`, sourceItemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up source item %s: %w", sourceItemID, err)
	}
	return &id, nil
}

func (r *itemRepository) InsertAggregated(ctx context.Context, item *CatalogItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = ItemStatusAvailable
	}
	item.Type = ItemTypeAggregated

	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO items (
			id, slug, title, description, price, currency, type, status,
			images, tags, embedding, source_url, vendor_name, source_item_id, seller_id
		) VALUES (
			:id, :slug, :title, :description, :price, :currency, :type, :status,
			:images, :tags, :embedding, :source_url, :vendor_name, :source_item_id, :seller_id
		)
		ON CONFLICT (source_item_id) DO NOTHING
	`, item)
	if err != nil {
		return false, fmt.Errorf("failed to insert item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return affected > 0, nil
}

func (r *itemRepository) Search(ctx context.Context, query string, args []any) ([]ScoredItem, error) {
	var items []ScoredItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	return items, nil
}

// ListAvailable returns the newest AVAILABLE items, optionally restricted to
// one item type, plus the total number of matches.
func (r *itemRepository) ListAvailable(ctx context.Context, itemType ItemType, limit, offset int) ([]CatalogItem, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM items
		WHERE status = 'AVAILABLE' AND ($1 = '' OR type = $1)
	`, string(itemType))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	items := []CatalogItem{}
	err = r.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM items
		WHERE status = 'AVAILABLE' AND ($1 = '' OR type = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, string(itemType), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list items: %w", err)
	}

	return items, total, nil
}

func (r *itemRepository) GetItemCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM items"); err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}
