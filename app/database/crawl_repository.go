package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sourceColumns = `id, name, vendor_name, base_url, search_terms, strategy, config, status,
	last_crawl_at, created_at, updated_at`

const runColumns = `id, source_id, status, items_found, items_created, items_skipped,
	error_message, started_at, completed_at, created_at`

type crawlRepository struct {
	db *DB
}

func NewCrawlRepository(db *DB) CrawlRepository {
	return &crawlRepository{db: db}
}

func (r *crawlRepository) ListSources(ctx context.Context) ([]CrawlSource, error) {
	sources := []CrawlSource{}
	if err := r.db.SelectContext(ctx, &sources, `SELECT `+sourceColumns+` FROM crawl_sources ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list crawl sources: %w", err)
	}
	return sources, nil
}

func (r *crawlRepository) ListActiveSources(ctx context.Context) ([]CrawlSource, error) {
	sources := []CrawlSource{}
	err := r.db.SelectContext(ctx, &sources,
		`SELECT `+sourceColumns+` FROM crawl_sources WHERE status = 'ACTIVE' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active crawl sources: %w", err)
	}
	return sources, nil
}

func (r *crawlRepository) GetSource(ctx context.Context, id string) (*CrawlSource, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var source CrawlSource
	err := r.db.GetContext(ctx, &source, `SELECT `+sourceColumns+` FROM crawl_sources WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl source: %w", err)
	}
	return &source, nil
}

// UpsertSource inserts or updates a source keyed by its unique name and
// returns the database id.
func (r *crawlRepository) UpsertSource(ctx context.Context, source *CrawlSource) (string, error) {
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	if len(source.Config) == 0 {
		source.Config = []byte("{}")
	}

	rows, err := r.db.NamedQueryContext(ctx, `
		INSERT INTO crawl_sources (id, name, vendor_name, base_url, search_terms, strategy, config, status)
		VALUES (:id, :name, :vendor_name, :base_url, :search_terms, :strategy, :config, :status)
		ON CONFLICT (name) DO UPDATE SET
			vendor_name = EXCLUDED.vendor_name,
			base_url = EXCLUDED.base_url,
			search_terms = EXCLUDED.search_terms,
			strategy = EXCLUDED.strategy,
			config = EXCLUDED.config,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING id
	`, source)
	if err != nil {
		return "", fmt.Errorf("failed to upsert crawl source %s: %w", source.Name, err)
	}
	defer rows.Close()

	var id string
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan crawl source id: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating crawl source rows: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("upsert of crawl source %s returned no id", source.Name)
	}

	source.ID = id
	return id, nil
}

func (r *crawlRepository) TouchLastCrawl(ctx context.Context, sourceID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE crawl_sources SET last_crawl_at = $2, updated_at = NOW() WHERE id = $1`, sourceID, at)
	if err != nil {
		return fmt.Errorf("failed to update last crawl time: %w", err)
	}
	return nil
}

func (r *crawlRepository) CreateRun(ctx context.Context, sourceID string) (*CrawlRun, error) {
	var run CrawlRun
	err := r.db.GetContext(ctx, &run, `
		INSERT INTO crawl_runs (id, source_id, status)
		VALUES ($1, $2, 'PENDING')
		RETURNING `+runColumns, uuid.NewString(), sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to create crawl run: %w", err)
	}
	return &run, nil
}

func (r *crawlRepository) GetRun(ctx context.Context, id string) (*CrawlRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var run CrawlRun
	err := r.db.GetContext(ctx, &run, `SELECT `+runColumns+` FROM crawl_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}
	return &run, nil
}

// MarkRunning moves a PENDING run to RUNNING. It reports false when the run
// was not PENDING, which is the normal case for chained pages.
func (r *crawlRepository) MarkRunning(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crawl_runs SET status = 'RUNNING', started_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark crawl run running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return affected > 0, nil
}

// IncrementCounters adds a page's contribution in SQL so concurrent
// invocations for the same run never overwrite each other.
func (r *crawlRepository) IncrementCounters(ctx context.Context, id string, found, created, skipped int) error {
	if found < 0 || created < 0 || skipped < 0 {
		return fmt.Errorf("counter increments must be non-negative: found=%d created=%d skipped=%d", found, created, skipped)
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE crawl_runs SET
			items_found = items_found + $2,
			items_created = items_created + $3,
			items_skipped = items_skipped + $4
		WHERE id = $1
	`, id, found, created, skipped)
	if err != nil {
		return fmt.Errorf("failed to increment crawl run counters: %w", err)
	}
	return nil
}

func (r *crawlRepository) CompleteRun(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE crawl_runs SET status = 'COMPLETED', completed_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
	`, id)
	if err != nil {
		return fmt.Errorf("failed to complete crawl run: %w", err)
	}
	return nil
}

func (r *crawlRepository) FailRun(ctx context.Context, id string, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE crawl_runs SET status = 'FAILED', error_message = $2, completed_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
	`, id, message)
	if err != nil {
		return fmt.Errorf("failed to mark crawl run failed: %w", err)
	}
	return nil
}

func (r *crawlRepository) ListRuns(ctx context.Context, sourceID string, limit, offset int) ([]CrawlRun, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM crawl_runs WHERE ($1 = '' OR source_id::text = $1)`, sourceID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count crawl runs: %w", err)
	}

	runs := []CrawlRun{}
	err = r.db.SelectContext(ctx, &runs, `
		SELECT `+runColumns+` FROM crawl_runs
		WHERE ($1 = '' OR source_id::text = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, sourceID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list crawl runs: %w", err)
	}

	return runs, total, nil
}
