// Package fetch retrieves the catalog's dataset collection from the upstream
// API. Two deliberately different strategies live here: the paginated bulk
// fetcher pulls search pages strictly sequentially, one call in flight at a
// time, because page ordering and per-page retry bookkeeping matter and the
// catalog rate-limits aggressive clients; the organization detail fetcher
// fans out over a bounded worker pool because per-item failure isolation
// matters there and ordering does not.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ckan-monitor/ckan-monitor/internal/ckan"
	"github.com/ckan-monitor/ckan-monitor/internal/telemetry"
)

const (
	// PageSize is the maximum number of rows the catalog returns per
	// package_search call.
	PageSize = 1000

	// DefaultLimit caps how many datasets one bulk fetch will retrieve.
	DefaultLimit = 10000

	// pageRetries is how many attempts each page gets before the whole
	// fetch is aborted.
	pageRetries = 3
)

// Progress is invoked after every completed page with 1-based page counters.
// It is a reporting side effect only; implementations must not assume they
// affect the returned result.
type Progress func(page, totalPages int, fraction float64)

// PageError reports the page that exhausted its retry budget and terminated
// the fetch early. Page is 1-based to match operator-facing progress output.
type PageError struct {
	Page     int
	Attempts int
}

func (e *PageError) Error() string {
	return fmt.Sprintf("failed to fetch page %d after %d attempts", e.Page, e.Attempts)
}

// BulkFetcher retrieves the full dataset search result set page by page.
type BulkFetcher struct {
	api      ckan.Catalog
	pageSize int
}

// NewBulkFetcher creates a bulk fetcher using the catalog's fixed page size.
func NewBulkFetcher(api ckan.Catalog) *BulkFetcher {
	return &BulkFetcher{api: api, pageSize: PageSize}
}

// FetchAll retrieves up to limit dataset records. On full success the returned
// slice holds every record in page order then within-page API order, and the
// error is nil. If a page fails all its attempts the fetch stops there and
// returns the pages accumulated so far together with a *PageError — a partial
// result the caller must treat as degraded, not discard.
//
// limit <= 0 falls back to DefaultLimit. No deduplication is performed;
// duplicate slugs across pages are possible only if the remote data changes
// mid-fetch and are not defended against.
func (f *BulkFetcher) FetchAll(ctx context.Context, limit int, progress Progress) ([]ckan.Dataset, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	total := f.api.CountDatasets(ctx)
	slog.Info("starting bulk dataset fetch", "total", total, "limit", limit)

	want := min(limit, total)
	totalPages := (want + f.pageSize - 1) / f.pageSize
	if totalPages == 0 {
		return nil, nil
	}

	results := make([]ckan.Dataset, 0, want)
	for page := 0; page < totalPages; page++ {
		offset := page * f.pageSize

		var sr *ckan.SearchResult
		for attempt := 1; attempt <= pageRetries; attempt++ {
			start := time.Now()
			sr = f.api.SearchDatasets(ctx, f.pageSize, offset)
			if sr != nil {
				telemetry.PageFetchDuration.Observe(time.Since(start).Seconds())
				break
			}
			telemetry.PageRetriesTotal.Inc()
			slog.Warn("page fetch attempt failed", "page", page+1, "attempt", attempt)
		}

		if sr == nil {
			telemetry.BulkFetchAbortsTotal.Inc()
			err := &PageError{Page: page + 1, Attempts: pageRetries}
			slog.Error("bulk fetch aborted", "page", err.Page, "attempts", err.Attempts, "accumulated", len(results))
			return results, err
		}

		results = append(results, sr.Results...)

		if progress != nil {
			progress(page+1, totalPages, float64(page+1)/float64(totalPages))
		}
	}

	slog.Info("bulk dataset fetch complete", "datasets", len(results), "pages", totalPages)
	return results, nil
}
