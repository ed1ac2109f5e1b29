// fetch_run_repository.go implements FetchRunRepository, providing database
// queries for bulk fetch history records.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ckan-monitor/ckan-monitor/internal/db/models"
)

// FetchRunRepository handles database operations for fetch history.
type FetchRunRepository struct {
	db *sqlx.DB
}

// NewFetchRunRepository creates a new fetch run repository.
func NewFetchRunRepository(db *sqlx.DB) *FetchRunRepository {
	return &FetchRunRepository{db: db}
}

// Create inserts a new fetch run record, normally in "running" status.
func (r *FetchRunRepository) Create(ctx context.Context, run *models.FetchRun) error {
	query := `
		INSERT INTO fetch_runs (
			id, trigger_source, started_at, completed_at, status,
			pages_fetched, datasets_fetched, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Trigger,
		run.StartedAt,
		run.CompletedAt,
		run.Status,
		run.PagesFetched,
		run.DatasetsFetched,
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to create fetch run: %w", err)
	}

	return nil
}

// Complete marks a run finished with its final status and counters.
func (r *FetchRunRepository) Complete(ctx context.Context, id uuid.UUID, status string, pages, datasets int, errorMessage *string) error {
	query := `
		UPDATE fetch_runs
		SET completed_at = $2, status = $3, pages_fetched = $4, datasets_fetched = $5, error_message = $6
		WHERE id = $1
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query, id, now, status, pages, datasets, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to complete fetch run: %w", err)
	}

	return nil
}

// ListRecent returns the most recent fetch runs, newest first.
func (r *FetchRunRepository) ListRecent(ctx context.Context, limit int) ([]models.FetchRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, trigger_source, started_at, completed_at, status,
		       pages_fetched, datasets_fetched, error_message
		FROM fetch_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	var runs []models.FetchRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list fetch runs: %w", err)
	}

	return runs, nil
}
