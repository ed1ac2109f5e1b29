package ckan

import "encoding/json"

// Dataset is one catalog entry as returned by package_show / package_search.
// Only the fields the dashboard consumes are mapped; the remote documents
// carry many more.
type Dataset struct {
	Title            string           `json:"title"`
	Name             string           `json:"name"` // unique slug, stable identifier
	Organization     *DatasetOrg      `json:"organization"`
	Resources        []Resource       `json:"resources"`
	MetadataModified string           `json:"metadata_modified"`
	Tags             []Tag            `json:"tags"`
	TrackingSummary  *TrackingSummary `json:"tracking_summary"`
}

// DatasetOrg is the organization object nested inside a dataset record.
type DatasetOrg struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Resource is one downloadable resource attached to a dataset.
type Resource struct {
	Format string `json:"format"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

// Tag is one keyword attached to a dataset.
type Tag struct {
	Name string `json:"name"`
}

// TrackingSummary holds CKAN page-view tracking counters.
type TrackingSummary struct {
	Total  int `json:"total"`
	Recent int `json:"recent"`
}

// Organization is one catalog entry as returned by organization_show.
type Organization struct {
	Name         string `json:"name"` // stable identifier / slug
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	PackageCount int    `json:"package_count,omitempty"`
}

// SearchResult is the result field of a package_search response.
type SearchResult struct {
	Count   int       `json:"count"`
	Results []Dataset `json:"results"`
}

// envelope is the CKAN action API response wrapper. Result is decoded lazily
// because its shape differs per action (list of strings, object, search result).
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}
