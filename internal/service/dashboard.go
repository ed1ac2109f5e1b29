// Package service orchestrates the dashboard data pipeline: catalog client →
// paginated bulk fetch → snapshot cache → aggregation. The HTTP layer reads
// the latest materialised view from here and triggers refreshes.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ckan-monitor/ckan-monitor/internal/aggregate"
	"github.com/ckan-monitor/ckan-monitor/internal/cache"
	"github.com/ckan-monitor/ckan-monitor/internal/ckan"
	"github.com/ckan-monitor/ckan-monitor/internal/db/models"
	"github.com/ckan-monitor/ckan-monitor/internal/db/repositories"
	"github.com/ckan-monitor/ckan-monitor/internal/fetch"
)

// ErrNoDatasets is returned when, after cache and fetch, the dataset
// collection is empty. There is nothing meaningful to aggregate, so the
// pipeline stops here; the operator should check the catalog connection or
// trigger a refresh.
var ErrNoDatasets = errors.New("no datasets returned from catalog: check connection or refresh")

const (
	orgDetailsTTL = time.Hour
	defaultTopN   = 10
)

// View is the materialised dashboard state handed to the presentation layer.
type View struct {
	LoadedAt time.Time `json:"loaded_at"`

	// Degraded is true when the backing bulk fetch terminated early and
	// the dataset table is a partial result.
	Degraded       bool   `json:"degraded"`
	DegradedReason string `json:"degraded_reason,omitempty"`

	OrganizationIDs []string            `json:"organization_ids"`
	Organizations   []ckan.Organization `json:"organizations"`
	DatasetIDs      int                 `json:"dataset_ids_total"`

	Rows        []aggregate.Row       `json:"rows"`
	OrgCounts   map[string]int        `json:"org_counts"`
	OrgIDCounts map[string]int        `json:"org_id_counts"`
	TotalViews  int                   `json:"total_views"`
	TopTags     []aggregate.FreqEntry `json:"top_tags"`
	TopFormats  []aggregate.FreqEntry `json:"top_formats"`
}

// Dashboard owns the data pipeline and the latest view.
type Dashboard struct {
	api      ckan.Catalog
	memo     *ckan.Memo
	bulk     *fetch.BulkFetcher
	orgs     *fetch.OrgDetailFetcher
	snapshot *cache.Snapshot
	runs     *repositories.FetchRunRepository // nil when no database is configured
	limit    int
	topN     int

	mu      sync.RWMutex
	current *View
}

// Option configures a Dashboard beyond its required collaborators.
type Option func(*Dashboard)

// WithFetchLimit caps how many datasets a bulk fetch retrieves.
func WithFetchLimit(limit int) Option {
	return func(d *Dashboard) { d.limit = limit }
}

// WithTopN sets the size of the tag and format frequency tables.
func WithTopN(n int) Option {
	return func(d *Dashboard) { d.topN = n }
}

// WithFetchRunRepository enables fetch history recording.
func WithFetchRunRepository(runs *repositories.FetchRunRepository) Option {
	return func(d *Dashboard) { d.runs = runs }
}

// NewDashboard wires the pipeline. api should be the memoized client sharing
// memo, so a forced refresh invalidates every endpoint family at once.
func NewDashboard(api ckan.Catalog, memo *ckan.Memo, snapshot *cache.Snapshot, detailWorkers int, opts ...Option) *Dashboard {
	d := &Dashboard{
		api:      api,
		memo:     memo,
		bulk:     fetch.NewBulkFetcher(api),
		orgs:     fetch.NewOrgDetailFetcher(api, detailWorkers),
		snapshot: snapshot,
		limit:    fetch.DefaultLimit,
		topN:     defaultTopN,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load runs the full pipeline and replaces the current view. forceRefresh
// deletes the snapshot and clears memoized calls first, so every endpoint is
// re-fetched. Returns ErrNoDatasets when the resulting dataset collection is
// empty; any other outcome — including a degraded partial fetch — yields a
// usable view.
func (d *Dashboard) Load(ctx context.Context, forceRefresh bool, trigger string) (*View, error) {
	datasets, fetchErr := d.snapshot.Load(ctx, forceRefresh, d.recordedFetch(trigger))
	if len(datasets) == 0 {
		return nil, ErrNoDatasets
	}

	rows := aggregate.ProjectRows(datasets)

	view := &View{
		LoadedAt:    time.Now(),
		Rows:        rows,
		OrgCounts:   aggregate.CountByOrganization(rows),
		OrgIDCounts: aggregate.CountByOrgID(rows),
		TotalViews:  aggregate.TotalViews(rows),
		TopTags:     aggregate.TopTags(datasets, d.topN),
		TopFormats:  aggregate.TopFormats(datasets, d.topN),
	}
	if fetchErr != nil {
		view.Degraded = true
		view.DegradedReason = fetchErr.Error()
	}

	view.OrganizationIDs = d.api.ListOrganizations(ctx)
	view.DatasetIDs = len(d.api.ListDatasets(ctx))
	view.Organizations = ckan.Memoize(d.memo, "org_details", "org_details:all", orgDetailsTTL, func() []ckan.Organization {
		return d.orgs.FetchAll(ctx, view.OrganizationIDs)
	})

	d.mu.Lock()
	d.current = view
	d.mu.Unlock()

	slog.Info("dashboard view loaded",
		"datasets", len(view.Rows),
		"organizations", len(view.Organizations),
		"degraded", view.Degraded,
		"trigger", trigger)

	return view, nil
}

// Current returns the latest view, or nil when no load has succeeded yet.
func (d *Dashboard) Current() *View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// recordedFetch wraps the bulk fetcher so each run is recorded in fetch
// history when a repository is configured. History failures never affect the
// fetch itself.
func (d *Dashboard) recordedFetch(trigger string) cache.FetchFunc {
	return func(ctx context.Context) ([]ckan.Dataset, error) {
		run := &models.FetchRun{
			ID:        uuid.New(),
			Trigger:   trigger,
			StartedAt: time.Now(),
			Status:    models.FetchStatusRunning,
		}
		if d.runs != nil {
			if err := d.runs.Create(ctx, run); err != nil {
				slog.Warn("failed to record fetch run", "error", err)
			}
		}

		pages := 0
		progress := func(page, totalPages int, fraction float64) {
			pages = page
			slog.Info("loaded dataset page", "page", page, "total_pages", totalPages, "fraction", fraction)
		}

		datasets, err := d.bulk.FetchAll(ctx, d.limit, progress)

		if d.runs != nil {
			status := models.FetchStatusSuccess
			var errMsg *string
			if err != nil {
				status = models.FetchStatusPartial
				if len(datasets) == 0 {
					status = models.FetchStatusFailed
				}
				msg := err.Error()
				errMsg = &msg
			}
			// Completion is recorded on a fresh context so a cancelled
			// request cannot lose the history row.
			completeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if cErr := d.runs.Complete(completeCtx, run.ID, status, pages, len(datasets), errMsg); cErr != nil {
				slog.Warn("failed to complete fetch run record", "error", cErr)
			}
		}

		return datasets, err
	}
}
