package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ckan-monitor/ckan-monitor/internal/cache"
	"github.com/ckan-monitor/ckan-monitor/internal/ckan"
	"github.com/ckan-monitor/ckan-monitor/internal/fetch"
)

// fakeCatalog serves a small fixed catalog; failPage makes one search page
// fail every attempt so degraded fetches can be exercised.
type fakeCatalog struct {
	datasets []ckan.Dataset
	orgIDs   []string
	failPage int // 1-based page number that always fails, 0 for none
}

func (f *fakeCatalog) CountDatasets(context.Context) int { return len(f.datasets) }

func (f *fakeCatalog) SearchDatasets(_ context.Context, rows, start int) *ckan.SearchResult {
	page := start/rows + 1
	if page == f.failPage {
		return nil
	}
	end := start + rows
	if end > len(f.datasets) {
		end = len(f.datasets)
	}
	if start >= len(f.datasets) {
		return &ckan.SearchResult{Count: len(f.datasets)}
	}
	return &ckan.SearchResult{Count: len(f.datasets), Results: f.datasets[start:end]}
}

func (f *fakeCatalog) ListOrganizations(context.Context) []string { return f.orgIDs }

func (f *fakeCatalog) ListDatasets(context.Context) []string {
	ids := make([]string, len(f.datasets))
	for i, d := range f.datasets {
		ids[i] = d.Name
	}
	return ids
}

func (f *fakeCatalog) ShowDataset(context.Context, string) *ckan.Dataset { return nil }

func (f *fakeCatalog) ShowOrganization(_ context.Context, id string) *ckan.Organization {
	return &ckan.Organization{Name: id, Title: "Org " + id}
}

// memStore is a minimal in-memory snapshot store.
type memStore struct {
	datasets []ckan.Dataset
	present  bool
}

func (s *memStore) Read(context.Context) ([]ckan.Dataset, bool, error) {
	return s.datasets, s.present, nil
}

func (s *memStore) Write(_ context.Context, datasets []ckan.Dataset) error {
	s.datasets, s.present = datasets, true
	return nil
}

func (s *memStore) Delete(context.Context) error {
	s.datasets, s.present = nil, false
	return nil
}

func fixtureDatasets(n int) []ckan.Dataset {
	datasets := make([]ckan.Dataset, n)
	for i := range datasets {
		datasets[i] = ckan.Dataset{
			Name:            fmt.Sprintf("ds-%d", i),
			Title:           fmt.Sprintf("Dataset %d", i),
			Organization:    &ckan.DatasetOrg{Name: "ministry-a", Title: "Ministry A"},
			Tags:            []ckan.Tag{{Name: "open-data"}},
			TrackingSummary: &ckan.TrackingSummary{Total: 2},
		}
	}
	return datasets
}

func newTestDashboard(catalog ckan.Catalog, store cache.Store) (*Dashboard, *ckan.Memo) {
	memo := ckan.NewMemo()
	cached := ckan.NewCachedClient(catalog, memo)
	snapshot := cache.NewSnapshot(store, memo)
	return NewDashboard(cached, memo, snapshot, 4), memo
}

// ---- loading -------------------------------------------------------------------

func TestDashboardLoad(t *testing.T) {
	catalog := &fakeCatalog{datasets: fixtureDatasets(5), orgIDs: []string{"ministry-a"}}
	dash, _ := newTestDashboard(catalog, &memStore{})

	view, err := dash.Load(context.Background(), false, "test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(view.Rows) != 5 {
		t.Errorf("expected 5 rows, got %d", len(view.Rows))
	}
	if view.Degraded {
		t.Error("full fetch must not be degraded")
	}
	if view.OrgCounts["Ministry A"] != 5 {
		t.Errorf("unexpected org counts: %v", view.OrgCounts)
	}
	if view.TotalViews != 10 {
		t.Errorf("expected 10 total views, got %d", view.TotalViews)
	}
	if len(view.Organizations) != 1 || view.Organizations[0].Title != "Org ministry-a" {
		t.Errorf("unexpected organizations: %+v", view.Organizations)
	}
	if len(view.TopTags) != 1 || view.TopTags[0].Count != 5 {
		t.Errorf("unexpected top tags: %v", view.TopTags)
	}
}

func TestDashboardLoad_EmptyCatalog(t *testing.T) {
	catalog := &fakeCatalog{}
	dash, _ := newTestDashboard(catalog, &memStore{})

	_, err := dash.Load(context.Background(), false, "test")
	if !errors.Is(err, ErrNoDatasets) {
		t.Errorf("expected ErrNoDatasets, got %v", err)
	}
	if dash.Current() != nil {
		t.Error("a failed load must not install a view")
	}
}

func TestDashboardLoad_DegradedOnPartialFetch(t *testing.T) {
	// Page 2 always fails: page 1 survives as a partial, degraded view.
	catalog := &fakeCatalog{datasets: fixtureDatasets(fetch.PageSize + 100), failPage: 2, orgIDs: []string{"ministry-a"}}
	dash, _ := newTestDashboard(catalog, &memStore{})

	view, err := dash.Load(context.Background(), false, "test")
	if err != nil {
		t.Fatalf("a degraded load must still yield a view, got %v", err)
	}
	if !view.Degraded {
		t.Error("expected degraded view after partial fetch")
	}
	if view.DegradedReason == "" {
		t.Error("degraded view must carry a reason")
	}
	if len(view.Rows) != fetch.PageSize {
		t.Errorf("expected %d rows from the surviving page, got %d", fetch.PageSize, len(view.Rows))
	}
}

func TestDashboardLoad_UsesSnapshot(t *testing.T) {
	// Catalog is empty but the snapshot holds data: no ErrNoDatasets, no crawl.
	store := &memStore{datasets: fixtureDatasets(3), present: true}
	dash, _ := newTestDashboard(&fakeCatalog{orgIDs: []string{"ministry-a"}}, store)

	view, err := dash.Load(context.Background(), false, "test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(view.Rows) != 3 {
		t.Errorf("expected 3 rows from snapshot, got %d", len(view.Rows))
	}
}

func TestDashboardLoad_ForceRefreshBypassesSnapshot(t *testing.T) {
	store := &memStore{datasets: fixtureDatasets(3), present: true}
	catalog := &fakeCatalog{datasets: fixtureDatasets(7), orgIDs: []string{"ministry-a"}}
	dash, memo := newTestDashboard(catalog, store)

	// Prime the memo so the refresh provably clears it before refilling.
	if _, err := dash.Load(context.Background(), false, "test"); err != nil {
		t.Fatalf("priming load: %v", err)
	}
	if memo.Len() == 0 {
		t.Fatal("expected memoized entries after priming load")
	}

	view, err := dash.Load(context.Background(), true, "test")
	if err != nil {
		t.Fatalf("refresh load: %v", err)
	}
	if len(view.Rows) != 7 {
		t.Errorf("expected 7 freshly crawled rows, got %d", len(view.Rows))
	}
	if !store.present || len(store.datasets) != 7 {
		t.Errorf("refresh result must be persisted, store has %d datasets", len(store.datasets))
	}
}

func TestDashboardCurrent(t *testing.T) {
	catalog := &fakeCatalog{datasets: fixtureDatasets(2), orgIDs: []string{"ministry-a"}}
	dash, _ := newTestDashboard(catalog, &memStore{})

	if dash.Current() != nil {
		t.Error("expected nil view before the first load")
	}

	loaded, err := dash.Load(context.Background(), false, "test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dash.Current() != loaded {
		t.Error("Current must return the view installed by Load")
	}
}
