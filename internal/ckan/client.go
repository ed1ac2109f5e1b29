// Package ckan implements a client for the CKAN action API exposed by the
// monitored data catalog: organization and dataset listing, per-record detail,
// and paginated dataset search.
//
// Two separate HTTP clients are used — one for search calls (15-second timeout)
// and one for detail lookups (8-second timeout). Search pages are large and
// legitimately slow on a loaded catalog, while a detail lookup that takes more
// than a few seconds is effectively lost and should be given up quickly so the
// detail fan-out completes in bounded time.
//
// Error policy: every operation returns a neutral empty value (nil slice, nil
// record, zero count) on any failure — non-200 status, transport error, or a
// body that does not decode. Callers never receive an error from this layer
// and cannot distinguish "zero results" from "request failed". This mirrors
// the behaviour the dashboard has always had; the catalog_api_calls_total
// metric (outcome label) is the one place the distinction survives.
package ckan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ckan-monitor/ckan-monitor/internal/telemetry"
)

// Default client timeouts. Search pages get the longer budget.
const (
	searchTimeout = 15 * time.Second
	detailTimeout = 8 * time.Second
)

// Client issues authenticated GET requests against a CKAN action API.
type Client struct {
	BaseURL      string
	SearchClient *http.Client // package_search and count calls
	DetailClient *http.Client // list and show calls

	apiKey string
}

// NewClient creates a catalog API client. baseURL must not end with a slash;
// a trailing slash is stripped. apiKey is sent as the Authorization header on
// every request, as CKAN expects.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		SearchClient: &http.Client{Timeout: searchTimeout},
		DetailClient: &http.Client{Timeout: detailTimeout},
		apiKey:       apiKey,
	}
}

// get performs one action API call and decodes the envelope's result field
// into out. It is the only place that touches the wire; the exported
// operations convert its error into their neutral value.
func (c *Client) get(ctx context.Context, httpClient *http.Client, action string, params url.Values, out any) error {
	u := fmt.Sprintf("%s/api/3/action/%s", c.BaseURL, action)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		telemetry.CatalogAPICallsTotal.WithLabelValues(action, "transport_error").Inc()
		return fmt.Errorf("failed to create %s request: %w", action, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		telemetry.CatalogAPICallsTotal.WithLabelValues(action, "transport_error").Inc()
		return fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		telemetry.CatalogAPICallsTotal.WithLabelValues(action, "http_error").Inc()
		return fmt.Errorf("%s returned status %d", action, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		telemetry.CatalogAPICallsTotal.WithLabelValues(action, "decode_error").Inc()
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			telemetry.CatalogAPICallsTotal.WithLabelValues(action, "decode_error").Inc()
			return fmt.Errorf("failed to decode %s result: %w", action, err)
		}
	}

	telemetry.CatalogAPICallsTotal.WithLabelValues(action, "ok").Inc()
	return nil
}

// ListOrganizations returns all organization identifiers known to the catalog.
// Returns nil on any failure.
func (c *Client) ListOrganizations(ctx context.Context) []string {
	var ids []string
	if err := c.get(ctx, c.DetailClient, "organization_list", nil, &ids); err != nil {
		slog.Warn("organization_list failed", "error", err)
		return nil
	}
	return ids
}

// ListDatasets returns all dataset identifiers known to the catalog.
// Returns nil on any failure.
func (c *Client) ListDatasets(ctx context.Context) []string {
	var ids []string
	if err := c.get(ctx, c.DetailClient, "package_list", nil, &ids); err != nil {
		slog.Warn("package_list failed", "error", err)
		return nil
	}
	return ids
}

// ShowDataset returns one dataset record, or nil on any failure.
func (c *Client) ShowDataset(ctx context.Context, id string) *Dataset {
	var d Dataset
	params := url.Values{"id": {id}}
	if err := c.get(ctx, c.DetailClient, "package_show", params, &d); err != nil {
		slog.Warn("package_show failed", "id", id, "error", err)
		return nil
	}
	return &d
}

// ShowOrganization returns one organization record, or nil on any failure.
func (c *Client) ShowOrganization(ctx context.Context, id string) *Organization {
	var o Organization
	params := url.Values{"id": {id}}
	if err := c.get(ctx, c.DetailClient, "organization_show", params, &o); err != nil {
		slog.Warn("organization_show failed", "id", id, "error", err)
		return nil
	}
	return &o
}

// SearchDatasets returns one page of the dataset search result set, using
// rows/start offset pagination. Returns nil on any failure so the caller's
// retry loop can distinguish "page failed" from "page empty".
func (c *Client) SearchDatasets(ctx context.Context, rows, start int) *SearchResult {
	var sr SearchResult
	params := url.Values{
		"rows":  {fmt.Sprintf("%d", rows)},
		"start": {fmt.Sprintf("%d", start)},
	}
	if err := c.get(ctx, c.SearchClient, "package_search", params, &sr); err != nil {
		slog.Warn("package_search failed", "rows", rows, "start", start, "error", err)
		return nil
	}
	return &sr
}

// CountDatasets returns the total number of datasets matching the search, via
// a zero-row search that carries only metadata. Returns 0 on any failure.
func (c *Client) CountDatasets(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var sr SearchResult
	params := url.Values{"rows": {"0"}}
	if err := c.get(ctx, c.SearchClient, "package_search", params, &sr); err != nil {
		slog.Warn("dataset count failed", "error", err)
		return 0
	}
	return sr.Count
}
