// Package cache persists the bulk-fetch result as a durable snapshot so the
// dashboard survives process restarts without re-crawling the catalog.
//
// The snapshot value is exactly the concatenated package_search results array
// — no wrapper envelope, no version tag, no checksum — so the artifact stays
// interchangeable with what the upstream search endpoint returns. Two store
// backends exist: the local file store (default, single-node) and a Redis
// store for deployments where several dashboard instances should share one
// snapshot. Concurrent writers are not coordinated in either backend; last
// writer wins. That is an accepted limitation of a single-operator tool, not
// a defect to paper over.
package cache

import (
	"context"
	"log/slog"

	"github.com/ckan-monitor/ckan-monitor/internal/ckan"
	"github.com/ckan-monitor/ckan-monitor/internal/telemetry"
)

// Store persists one dataset snapshot at a single fixed location.
type Store interface {
	// Read returns the stored snapshot. ok is false when no snapshot
	// exists; err is non-nil when a snapshot exists but cannot be decoded.
	Read(ctx context.Context) (datasets []ckan.Dataset, ok bool, err error)

	// Write replaces the snapshot. Callers may ignore the error: having
	// the data in memory for this run matters more than persisting it.
	Write(ctx context.Context, datasets []ckan.Dataset) error

	// Delete removes the snapshot. Deleting a missing snapshot is not an
	// error.
	Delete(ctx context.Context) error
}

// FetchFunc produces a fresh snapshot from the upstream API. A non-nil error
// with a non-empty result means the fetch terminated early and the result is
// partial (see fetch.PageError).
type FetchFunc func(ctx context.Context) ([]ckan.Dataset, error)

// Snapshot is the read-through/write-through loader over a Store.
type Snapshot struct {
	store Store
	memo  *ckan.Memo
}

// NewSnapshot creates a snapshot loader. memo may be nil; when set, a forced
// refresh also clears every memoized API call so all endpoint families are
// re-fetched, not just the bulk search.
func NewSnapshot(store Store, memo *ckan.Memo) *Snapshot {
	return &Snapshot{store: store, memo: memo}
}

// Load returns the dataset snapshot, fetching from upstream only when needed.
//
// forceRefresh deletes any stored snapshot and clears the memoized API calls
// before fetching. A stored snapshot that fails to decode is deleted and
// treated as absent. A fresh fetch result is written back best-effort: write
// failures are logged and swallowed.
//
// Load never fails because of the cache. The returned error is only the
// degradation signal from the fetch itself (a partial result after a page
// exhausted its retries); the dataset slice is usable — possibly empty — in
// every case.
func (s *Snapshot) Load(ctx context.Context, forceRefresh bool, fetch FetchFunc) ([]ckan.Dataset, error) {
	if forceRefresh {
		telemetry.SnapshotLoadsTotal.WithLabelValues("refresh").Inc()
		if err := s.store.Delete(ctx); err != nil {
			slog.Warn("failed to delete snapshot on refresh", "error", err)
		}
		if s.memo != nil {
			s.memo.InvalidateAll()
		}
	} else {
		datasets, ok, err := s.store.Read(ctx)
		if err != nil {
			telemetry.SnapshotLoadsTotal.WithLabelValues("corrupt").Inc()
			slog.Warn("snapshot unreadable, deleting and refetching", "error", err)
			if delErr := s.store.Delete(ctx); delErr != nil {
				slog.Warn("failed to delete corrupt snapshot", "error", delErr)
			}
		} else if ok {
			telemetry.SnapshotLoadsTotal.WithLabelValues("hit").Inc()
			slog.Info("loaded dataset snapshot from cache", "datasets", len(datasets))
			return datasets, nil
		} else {
			telemetry.SnapshotLoadsTotal.WithLabelValues("miss").Inc()
		}
	}

	datasets, fetchErr := fetch(ctx)
	if fetchErr == nil {
		if err := s.store.Write(ctx, datasets); err != nil {
			telemetry.SnapshotWriteFailuresTotal.Inc()
			slog.Warn("failed to persist dataset snapshot", "error", err)
		}
	}
	return datasets, fetchErr
}
