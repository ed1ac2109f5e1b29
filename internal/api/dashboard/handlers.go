// Package dashboard implements the public HTTP handlers for the catalog
// monitor. All endpoints are read-only views over the latest materialised
// dashboard state except POST /refresh, which triggers an asynchronous
// re-crawl of the upstream catalog.
//
// Route layout (registered under /api/v1 in internal/api/router.go):
//
//	GET  /summary        — headline counts, degraded flag, top tables
//	GET  /datasets       — projected dataset rows (?org= and ?q= filters)
//	GET  /organizations  — organization detail records
//	GET  /org-counts     — datasets per organization
//	GET  /tags           — most frequent tags
//	GET  /formats        — most frequent resource formats
//	GET  /fetch-runs     — recent bulk fetch history (requires database)
//	POST /refresh        — invalidate caches and re-fetch (async, 202)
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ckan-monitor/ckan-monitor/internal/aggregate"
	"github.com/ckan-monitor/ckan-monitor/internal/db/repositories"
	"github.com/ckan-monitor/ckan-monitor/internal/safego"
	"github.com/ckan-monitor/ckan-monitor/internal/service"
)

// refreshTimeout bounds a background refresh triggered over HTTP. A full
// crawl of a 10k-dataset catalog with retries stays well inside this.
const refreshTimeout = 10 * time.Minute

// Handler holds the dependencies for all dashboard endpoints.
type Handler struct {
	svc  *service.Dashboard
	runs *repositories.FetchRunRepository // nil when no database is configured
}

// NewHandler creates a new Handler. runs may be nil; the fetch-runs endpoint
// then reports 404.
func NewHandler(svc *service.Dashboard, runs *repositories.FetchRunRepository) *Handler {
	return &Handler{svc: svc, runs: runs}
}

// currentView returns the latest view, or writes a 503 and returns false when
// no load has succeeded yet.
func (h *Handler) currentView(c *gin.Context) (*service.View, bool) {
	view := h.svc.Current()
	if view == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "no dashboard data loaded yet — try again shortly or trigger a refresh",
		})
		return nil, false
	}
	return view, true
}

// ---- GET /api/v1/summary -----------------------------------------------------------

// @Summary      Dashboard summary
// @Description  Returns headline catalog statistics: dataset and organization counts, total tracked views, degraded-fetch status, and the top tag and format tables.
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}  "No data loaded yet"
// @Router       /api/v1/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	view, ok := h.currentView(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"loaded_at":       view.LoadedAt,
		"degraded":        view.Degraded,
		"degraded_reason": view.DegradedReason,
		"datasets":        len(view.Rows),
		"dataset_ids":     view.DatasetIDs,
		"organizations":   len(view.OrganizationIDs),
		"total_views":     view.TotalViews,
		"top_tags":        view.TopTags,
		"top_formats":     view.TopFormats,
	})
}

// ---- GET /api/v1/datasets ----------------------------------------------------------

// @Summary      List dataset rows
// @Description  Returns the projected dataset table. Filter by organization title with ?org= and by substring match on title or name with ?q=.
// @Tags         Dashboard
// @Produce      json
// @Param        org  query  string  false  "Organization title filter (exact match)"
// @Param        q    query  string  false  "Case-insensitive substring filter on title and name"
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}  "No data loaded yet"
// @Router       /api/v1/datasets [get]
func (h *Handler) Datasets(c *gin.Context) {
	view, ok := h.currentView(c)
	if !ok {
		return
	}

	rows := view.Rows
	if org := c.Query("org"); org != "" {
		filtered := make([]aggregate.Row, 0, len(rows))
		for _, r := range rows {
			if r.Organization == org {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if q := strings.ToLower(c.Query("q")); q != "" {
		filtered := make([]aggregate.Row, 0, len(rows))
		for _, r := range rows {
			if strings.Contains(strings.ToLower(r.Title), q) || strings.Contains(strings.ToLower(r.Name), q) {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"datasets":    rows,
		"total_count": len(rows),
		"degraded":    view.Degraded,
	})
}

// ---- GET /api/v1/organizations -----------------------------------------------------

// @Summary      List organizations
// @Description  Returns the organization detail records fetched from the catalog. Organizations whose detail call failed appear as stubs where title equals the identifier.
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}  "No data loaded yet"
// @Router       /api/v1/organizations [get]
func (h *Handler) Organizations(c *gin.Context) {
	view, ok := h.currentView(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organizations": view.Organizations,
		"total_count":   len(view.Organizations),
	})
}

// ---- GET /api/v1/org-counts --------------------------------------------------------

// @Summary      Datasets per organization
// @Description  Returns dataset counts grouped by organization, keyed both by display title (including the placeholder for datasets without an organization) and by stable organization identifier.
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}  "No data loaded yet"
// @Router       /api/v1/org-counts [get]
func (h *Handler) OrgCounts(c *gin.Context) {
	view, ok := h.currentView(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"by_title": view.OrgCounts,
		"by_id":    view.OrgIDCounts,
	})
}

// ---- GET /api/v1/tags --------------------------------------------------------------

// @Summary      Most frequent tags
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}  "No data loaded yet"
// @Router       /api/v1/tags [get]
func (h *Handler) Tags(c *gin.Context) {
	view, ok := h.currentView(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"tags": view.TopTags})
}

// ---- GET /api/v1/formats -----------------------------------------------------------

// @Summary      Most frequent resource formats
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}  "No data loaded yet"
// @Router       /api/v1/formats [get]
func (h *Handler) Formats(c *gin.Context) {
	view, ok := h.currentView(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"formats": view.TopFormats})
}

// ---- GET /api/v1/fetch-runs --------------------------------------------------------

// @Summary      Recent bulk fetch history
// @Description  Returns the most recent bulk fetch runs, newest first. Only available when a database is configured.
// @Tags         Dashboard
// @Produce      json
// @Param        limit  query  int  false  "Maximum number of runs to return (default 20)"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Fetch history not enabled"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/fetch-runs [get]
func (h *Handler) FetchRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "fetch history is not enabled"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		slog.Error("failed to list fetch runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list fetch runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":        runs,
		"total_count": len(runs),
	})
}

// ---- POST /api/v1/refresh ----------------------------------------------------------

// @Summary      Trigger a catalog refresh
// @Description  Deletes the dataset snapshot, clears memoized API calls, and re-crawls the upstream catalog in the background. Returns immediately with 202; poll /summary for the new loaded_at timestamp.
// @Tags         Dashboard
// @Produce      json
// @Success      202  {object}  map[string]interface{}
// @Router       /api/v1/refresh [post]
func (h *Handler) Refresh(c *gin.Context) {
	// Detached from the request context: a client disconnect must not cancel
	// a crawl that is already underway.
	safego.Go("dashboard-refresh", func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		if _, err := h.svc.Load(ctx, true, "manual"); err != nil {
			slog.Error("manual refresh failed", "error", err)
			return
		}
		slog.Info("manual refresh completed")
	})

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "refresh started",
		"message": "poll /api/v1/summary for an updated loaded_at timestamp",
	})
}
