// Package aggregate projects raw catalog records into the flat tabular shape
// the presentation layer consumes. Everything here is a pure in-memory
// transform: no network, no disk, same input always yields the same output.
package aggregate

import (
	"sort"
	"strings"

	"github.com/ckan-monitor/ckan-monitor/internal/ckan"
)

// Placeholders applied when a dataset has no organization or no timestamp.
const (
	MissingPlaceholder = "—"
	UnknownOrgID       = "unknown"
	UnknownFormat      = "unknown"
)

// Row is one dataset projected for tabular display.
type Row struct {
	Title        string `json:"title"`
	Name         string `json:"name"`
	Organization string `json:"organization"`
	OrgID        string `json:"org_id"`
	Resources    int    `json:"resources"`
	LastModified string `json:"last_modified"`
	Views        int    `json:"views"`
}

// FreqEntry is one name/count pair in a frequency table.
type FreqEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ProjectRows flattens dataset records into display rows, applying the
// placeholder defaults for absent organizations, timestamps, and tracking
// data.
func ProjectRows(datasets []ckan.Dataset) []Row {
	rows := make([]Row, 0, len(datasets))
	for _, d := range datasets {
		row := Row{
			Title:        d.Title,
			Name:         d.Name,
			Organization: MissingPlaceholder,
			OrgID:        UnknownOrgID,
			Resources:    len(d.Resources),
			LastModified: d.MetadataModified,
		}
		if d.Organization != nil {
			if d.Organization.Title != "" {
				row.Organization = d.Organization.Title
			}
			if d.Organization.Name != "" {
				row.OrgID = d.Organization.Name
			}
		}
		if row.LastModified == "" {
			row.LastModified = MissingPlaceholder
		}
		if d.TrackingSummary != nil {
			row.Views = d.TrackingSummary.Total
		}
		rows = append(rows, row)
	}
	return rows
}

// CountByOrganization groups rows by organization display title, including
// the "—" bucket for rows without an organization. Grouping by title merges
// distinct organizations that share a title; that matches the dashboard's
// historical chart output. Use CountByOrgID when correctness by identifier
// matters.
func CountByOrganization(rows []Row) map[string]int {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.Organization]++
	}
	return counts
}

// CountByOrgID groups rows by the stable organization slug, the stricter
// variant of CountByOrganization.
func CountByOrgID(rows []Row) map[string]int {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.OrgID]++
	}
	return counts
}

// TotalViews sums tracked view counts across all rows.
func TotalViews(rows []Row) int {
	total := 0
	for _, r := range rows {
		total += r.Views
	}
	return total
}

// TopTags returns the n most frequent tag names across all datasets,
// descending by count, ties broken alphabetically for stable output.
func TopTags(datasets []ckan.Dataset, n int) []FreqEntry {
	counts := make(map[string]int)
	for _, d := range datasets {
		for _, t := range d.Tags {
			if t.Name != "" {
				counts[t.Name]++
			}
		}
	}
	return topN(counts, n)
}

// TopFormats returns the n most frequent resource formats across all
// datasets, upper-cased, with missing formats bucketed as "UNKNOWN".
func TopFormats(datasets []ckan.Dataset, n int) []FreqEntry {
	counts := make(map[string]int)
	for _, d := range datasets {
		for _, r := range d.Resources {
			format := r.Format
			if format == "" {
				format = UnknownFormat
			}
			counts[strings.ToUpper(format)]++
		}
	}
	return topN(counts, n)
}

func topN(counts map[string]int, n int) []FreqEntry {
	entries := make([]FreqEntry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, FreqEntry{Name: name, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
