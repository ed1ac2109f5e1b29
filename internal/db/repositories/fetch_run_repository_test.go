package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ckan-monitor/ckan-monitor/internal/db/models"
)

func newMockRepo(t *testing.T) (*FetchRunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewFetchRunRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestFetchRunRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)

	run := &models.FetchRun{
		ID:        uuid.New(),
		Trigger:   "manual",
		StartedAt: time.Now(),
		Status:    models.FetchStatusRunning,
	}

	mock.ExpectExec("INSERT INTO fetch_runs").
		WithArgs(run.ID, run.Trigger, run.StartedAt, nil, run.Status, 0, 0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), run); err != nil {
		t.Errorf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFetchRunRepository_Complete(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	errMsg := "failed to fetch page 4 after 3 attempts"

	mock.ExpectExec("UPDATE fetch_runs").
		WithArgs(id, sqlmock.AnyArg(), models.FetchStatusPartial, 3, 3000, &errMsg).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Complete(context.Background(), id, models.FetchStatusPartial, 3, 3000, &errMsg); err != nil {
		t.Errorf("Complete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFetchRunRepository_ListRecent(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	started := time.Now().Add(-time.Hour)
	completed := started.Add(2 * time.Minute)

	rows := sqlmock.NewRows([]string{
		"id", "trigger_source", "started_at", "completed_at", "status",
		"pages_fetched", "datasets_fetched", "error_message",
	}).AddRow(id, "startup", started, completed, models.FetchStatusSuccess, 10, 9500, nil)

	mock.ExpectQuery("SELECT (.+) FROM fetch_runs").
		WithArgs(5).
		WillReturnRows(rows)

	runs, err := repo.ListRecent(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != id || runs[0].Status != models.FetchStatusSuccess || runs[0].DatasetsFetched != 9500 {
		t.Errorf("unexpected run: %+v", runs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFetchRunRepository_ListRecent_DefaultLimit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM fetch_runs").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.ListRecent(context.Background(), 0); err != nil {
		t.Errorf("ListRecent: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
