package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ckan-monitor/ckan-monitor/internal/ckan"
	"github.com/ckan-monitor/ckan-monitor/internal/telemetry"
)

const (
	// DefaultDetailWorkers bounds the organization detail fan-out.
	DefaultDetailWorkers = 20

	// detailTimeout is the per-call budget for one organization_show.
	detailTimeout = 8 * time.Second
)

// OrgDetailFetcher fetches organization detail records concurrently over a
// bounded worker pool.
type OrgDetailFetcher struct {
	api     ckan.Catalog
	workers int
}

// NewOrgDetailFetcher creates a detail fetcher. workers <= 0 falls back to
// DefaultDetailWorkers.
func NewOrgDetailFetcher(api ckan.Catalog, workers int) *OrgDetailFetcher {
	if workers <= 0 {
		workers = DefaultDetailWorkers
	}
	return &OrgDetailFetcher{api: api, workers: workers}
}

// FetchAll fetches the detail record of every organization in ids. Each
// worker's failure is isolated: a timed-out or failed lookup yields no record
// rather than aborting the batch. After all workers finish, any id without a
// fetched record (matched on the name field) is compensated with a stub
// {name: id, title: id}, so the output covers the input id set exactly —
// downstream organization filters never show a hole.
//
// Result order is completion order, not input order; callers needing a stable
// order must correlate by name.
func (f *OrgDetailFetcher) FetchAll(ctx context.Context, ids []string) []ckan.Organization {
	if len(ids) == 0 {
		return nil
	}

	work := make(chan string)
	found := make(chan ckan.Organization)

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				callCtx, cancel := context.WithTimeout(ctx, detailTimeout)
				org := f.api.ShowOrganization(callCtx, id)
				cancel()
				if org != nil && org.Name != "" {
					found <- *org
				}
			}
		}()
	}

	go func() {
		for _, id := range ids {
			work <- id
		}
		close(work)
		wg.Wait()
		close(found)
	}()

	details := make([]ckan.Organization, 0, len(ids))
	for org := range found {
		details = append(details, org)
	}

	fetched := make(map[string]bool, len(details))
	for _, org := range details {
		fetched[org.Name] = true
	}
	for _, id := range ids {
		if !fetched[id] {
			telemetry.OrgDetailFailuresTotal.Inc()
			slog.Warn("organization detail missing, using fallback stub", "id", id)
			details = append(details, ckan.Organization{Name: id, Title: id})
		}
	}

	return details
}
