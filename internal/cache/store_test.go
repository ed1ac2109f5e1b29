package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ckan-monitor/ckan-monitor/internal/ckan"
)

// memStore is an in-memory Store with fault injection and call counters.
type memStore struct {
	datasets []ckan.Dataset
	present  bool
	readErr  error

	writes  int
	deletes int
}

func (s *memStore) Read(context.Context) ([]ckan.Dataset, bool, error) {
	if s.readErr != nil {
		return nil, true, s.readErr
	}
	if !s.present {
		return nil, false, nil
	}
	return s.datasets, true, nil
}

func (s *memStore) Write(_ context.Context, datasets []ckan.Dataset) error {
	s.writes++
	s.datasets = datasets
	s.present = true
	return nil
}

func (s *memStore) Delete(context.Context) error {
	s.deletes++
	s.datasets = nil
	s.present = false
	s.readErr = nil
	return nil
}

func fetchReturning(datasets []ckan.Dataset, err error, calls *int) FetchFunc {
	return func(context.Context) ([]ckan.Dataset, error) {
		if calls != nil {
			*calls++
		}
		return datasets, err
	}
}

// ---- hit / miss ----------------------------------------------------------------

func TestSnapshotLoad_HitSkipsFetch(t *testing.T) {
	store := &memStore{present: true, datasets: []ckan.Dataset{{Name: "cached"}}}
	snapshot := NewSnapshot(store, nil)

	fetchCalls := 0
	got, err := snapshot.Load(context.Background(), false, fetchReturning([]ckan.Dataset{{Name: "fresh"}}, nil, &fetchCalls))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetchCalls != 0 {
		t.Error("a cache hit must not reach upstream")
	}
	if len(got) != 1 || got[0].Name != "cached" {
		t.Errorf("expected cached datasets, got %+v", got)
	}
}

func TestSnapshotLoad_MissFetchesAndWritesBack(t *testing.T) {
	store := &memStore{}
	snapshot := NewSnapshot(store, nil)

	fresh := []ckan.Dataset{{Name: "fresh-1"}, {Name: "fresh-2"}}
	got, err := snapshot.Load(context.Background(), false, fetchReturning(fresh, nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected fetched datasets, got %d", len(got))
	}
	if store.writes != 1 {
		t.Errorf("expected one write-back, got %d", store.writes)
	}
}

// ---- corruption ----------------------------------------------------------------

func TestSnapshotLoad_CorruptSnapshotDeletedAndRefetched(t *testing.T) {
	store := &memStore{readErr: errors.New("unexpected end of JSON input")}
	snapshot := NewSnapshot(store, nil)

	fetchCalls := 0
	got, err := snapshot.Load(context.Background(), false, fetchReturning([]ckan.Dataset{{Name: "fresh"}}, nil, &fetchCalls))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.deletes != 1 {
		t.Errorf("corrupt snapshot should be deleted once, got %d deletes", store.deletes)
	}
	if fetchCalls != 1 {
		t.Errorf("expected one refetch, got %d", fetchCalls)
	}
	if len(got) != 1 || got[0].Name != "fresh" {
		t.Errorf("expected fresh datasets, got %+v", got)
	}
}

// ---- forced refresh ------------------------------------------------------------

func TestSnapshotLoad_RefreshDeletesAndInvalidatesMemo(t *testing.T) {
	store := &memStore{present: true, datasets: []ckan.Dataset{{Name: "stale"}}}
	memo := ckan.NewMemo()
	ckan.Memoize(memo, "test", "k", time.Minute, func() int { return 1 })

	snapshot := NewSnapshot(store, memo)

	got, err := snapshot.Load(context.Background(), true, fetchReturning([]ckan.Dataset{{Name: "fresh"}}, nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.deletes != 1 {
		t.Errorf("refresh must delete the stored snapshot, got %d deletes", store.deletes)
	}
	if memo.Len() != 0 {
		t.Error("refresh must clear memoized API calls")
	}
	if len(got) != 1 || got[0].Name != "fresh" {
		t.Errorf("expected fresh datasets, got %+v", got)
	}
}

// ---- degraded fetch ------------------------------------------------------------

func TestSnapshotLoad_PartialFetchNotPersisted(t *testing.T) {
	store := &memStore{}
	snapshot := NewSnapshot(store, nil)

	partial := []ckan.Dataset{{Name: "page-1-only"}}
	fetchErr := errors.New("failed to fetch page 2 after 3 attempts")

	got, err := snapshot.Load(context.Background(), false, fetchReturning(partial, fetchErr, nil))
	if err == nil {
		t.Fatal("degradation error must propagate to the caller")
	}
	if len(got) != 1 {
		t.Errorf("partial result must still be returned, got %d datasets", len(got))
	}
	if store.writes != 0 {
		t.Error("a partial fetch must not be written to the snapshot store")
	}
}
