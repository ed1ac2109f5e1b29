package ckan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newCatalogServer builds a fake CKAN action API. handlers maps action names
// (e.g. "package_search") to their responses.
func newCatalogServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for action, h := range handlers {
		mux.HandleFunc("/api/3/action/"+action, h)
	}
	return httptest.NewServer(mux)
}

func envelopeJSON(t *testing.T, result any) []byte {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	body, err := json.Marshal(map[string]json.RawMessage{
		"success": json.RawMessage("true"),
		"result":  raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

// ---- listing operations --------------------------------------------------------

func TestListOrganizations(t *testing.T) {
	var gotAuth string
	srv := newCatalogServer(t, map[string]http.HandlerFunc{
		"organization_list": func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write(envelopeJSON(t, []string{"ministry-a", "ministry-b"}))
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "secret-key")
	ids := client.ListOrganizations(context.Background())

	if len(ids) != 2 || ids[0] != "ministry-a" || ids[1] != "ministry-b" {
		t.Errorf("unexpected ids: %v", ids)
	}
	if gotAuth != "secret-key" {
		t.Errorf("expected Authorization header to carry the API key, got %q", gotAuth)
	}
}

func TestListDatasets_ServerErrorReturnsNil(t *testing.T) {
	srv := newCatalogServer(t, map[string]http.HandlerFunc{
		"package_list": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if ids := client.ListDatasets(context.Background()); ids != nil {
		t.Errorf("expected nil on server error, got %v", ids)
	}
}

func TestListDatasets_UnreachableReturnsNil(t *testing.T) {
	// Closed server: transport error rather than an HTTP status.
	srv := newCatalogServer(t, nil)
	srv.Close()

	client := NewClient(srv.URL, "")
	if ids := client.ListDatasets(context.Background()); ids != nil {
		t.Errorf("expected nil on transport error, got %v", ids)
	}
}

// ---- detail operations ---------------------------------------------------------

func TestShowDataset(t *testing.T) {
	srv := newCatalogServer(t, map[string]http.HandlerFunc{
		"package_show": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("id"); got != "air-quality" {
				t.Errorf("expected id=air-quality, got %q", got)
			}
			w.Write(envelopeJSON(t, Dataset{
				Title: "Air Quality Measurements",
				Name:  "air-quality",
				Organization: &DatasetOrg{
					Name:  "ministry-a",
					Title: "Ministry A",
				},
			}))
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "")
	d := client.ShowDataset(context.Background(), "air-quality")

	if d == nil {
		t.Fatal("expected a dataset, got nil")
	}
	if d.Title != "Air Quality Measurements" || d.Organization.Title != "Ministry A" {
		t.Errorf("unexpected dataset: %+v", d)
	}
}

func TestShowDataset_MalformedBodyReturnsNil(t *testing.T) {
	srv := newCatalogServer(t, map[string]http.HandlerFunc{
		"package_show": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if d := client.ShowDataset(context.Background(), "x"); d != nil {
		t.Errorf("expected nil on decode error, got %+v", d)
	}
}

func TestShowOrganization_NotFoundReturnsNil(t *testing.T) {
	srv := newCatalogServer(t, map[string]http.HandlerFunc{
		"organization_show": func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if o := client.ShowOrganization(context.Background(), "ghost"); o != nil {
		t.Errorf("expected nil on 404, got %+v", o)
	}
}

// ---- search and count ----------------------------------------------------------

func TestSearchDatasets(t *testing.T) {
	srv := newCatalogServer(t, map[string]http.HandlerFunc{
		"package_search": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("rows") != "1000" || q.Get("start") != "2000" {
				t.Errorf("unexpected pagination params: %v", q)
			}
			w.Write(envelopeJSON(t, SearchResult{
				Count:   4321,
				Results: []Dataset{{Name: "a"}, {Name: "b"}},
			}))
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "")
	sr := client.SearchDatasets(context.Background(), 1000, 2000)

	if sr == nil {
		t.Fatal("expected a search result, got nil")
	}
	if sr.Count != 4321 || len(sr.Results) != 2 {
		t.Errorf("unexpected search result: count=%d results=%d", sr.Count, len(sr.Results))
	}
}

func TestCountDatasets(t *testing.T) {
	srv := newCatalogServer(t, map[string]http.HandlerFunc{
		"package_search": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("rows"); got != "0" {
				t.Errorf("count should request zero rows, got rows=%q", got)
			}
			w.Write(envelopeJSON(t, SearchResult{Count: 9876}))
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if got := client.CountDatasets(context.Background()); got != 9876 {
		t.Errorf("expected count 9876, got %d", got)
	}
}

func TestCountDatasets_FailureReturnsZero(t *testing.T) {
	srv := newCatalogServer(t, map[string]http.HandlerFunc{
		"package_search": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusBadGateway)
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if got := client.CountDatasets(context.Background()); got != 0 {
		t.Errorf("expected 0 on failure, got %d", got)
	}
}

func TestNewClient_StripsTrailingSlash(t *testing.T) {
	client := NewClient("https://catalog.example.org/", "")
	if client.BaseURL != "https://catalog.example.org" {
		t.Errorf("expected trailing slash stripped, got %q", client.BaseURL)
	}
}
