// Package models holds database record types for the catalog monitor.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Fetch run statuses. A run is "partial" when a page exhausted its retries
// and the fetch kept only the pages accumulated before it.
const (
	FetchStatusRunning = "running"
	FetchStatusSuccess = "success"
	FetchStatusPartial = "partial"
	FetchStatusFailed  = "failed"
)

// FetchRun records one bulk dataset fetch for operator history.
type FetchRun struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Trigger         string     `db:"trigger_source" json:"trigger"` // startup, manual, cli
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Status          string     `db:"status" json:"status"`
	PagesFetched    int        `db:"pages_fetched" json:"pages_fetched"`
	DatasetsFetched int        `db:"datasets_fetched" json:"datasets_fetched"`
	ErrorMessage    *string    `db:"error_message" json:"error_message,omitempty"`
}
