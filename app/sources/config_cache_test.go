package sources

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lysyi3m/curio/app/database"
)

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigCacheLoadValidConfig(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "etsy-lamps", `
vendor: Etsy
base_url: "https://openapi.etsy.com"
strategy: api
search_terms:
  - "vintage lamp"
  - "  "
  - "brass sconce"
config:
  taxonomy_id: 891
filters:
  - field: "title"
    excludes:
      - "reproduction"
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetConfigCount() != 1 {
		t.Errorf("Expected 1 source, got %d", configCache.GetConfigCount())
	}

	def, err := configCache.GetConfig("etsy-lamps")
	if err != nil {
		t.Fatal(err)
	}

	if def.Name != "etsy-lamps" {
		t.Errorf("Expected name 'etsy-lamps', got '%s'", def.Name)
	}
	if def.Vendor != "etsy" {
		t.Errorf("Expected vendor to be lower-cased, got '%s'", def.Vendor)
	}
	if def.Status != "ACTIVE" {
		t.Errorf("Expected default status ACTIVE, got '%s'", def.Status)
	}
	if len(def.SearchTerms) != 2 {
		t.Errorf("Expected blank search terms to be dropped, got %v", def.SearchTerms)
	}
	if len(def.Filters) != 1 {
		t.Errorf("Expected 1 filter, got %d", len(def.Filters))
	}
}

func TestConfigCacheMissingDirectory(t *testing.T) {
	configCache := NewConfigCache(filepath.Join(t.TempDir(), "missing"))
	if err := configCache.Run(); err != nil {
		t.Errorf("Expected no error for missing directory, got: %v", err)
	}
	if configCache.GetConfigCount() != 0 {
		t.Errorf("Expected no sources, got %d", configCache.GetConfigCount())
	}
}

func TestConfigCacheValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{"missing vendor", "base_url: https://x.com\nsearch_terms: [a]\n", "vendor is required"},
		{"missing base url", "vendor: etsy\nsearch_terms: [a]\n", "base URL is required"},
		{"relative base url", "vendor: etsy\nbase_url: /shop\nsearch_terms: [a]\n", "absolute"},
		{"no terms", "vendor: etsy\nbase_url: https://x.com\n", "search term"},
		{"bad strategy", "vendor: etsy\nbase_url: https://x.com\nsearch_terms: [a]\nstrategy: rpc\n", "invalid strategy"},
		{"bad status", "vendor: etsy\nbase_url: https://x.com\nsearch_terms: [a]\nstatus: gone\n", "invalid status"},
		{"bad filter field", "vendor: etsy\nbase_url: https://x.com\nsearch_terms: [a]\nfilters:\n  - field: price\n    includes: [x]\n", "invalid filter field"},
		{"empty filter", "vendor: etsy\nbase_url: https://x.com\nsearch_terms: [a]\nfilters:\n  - field: title\n", "at least one include or exclude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			writeSource(t, tempDir, "bad", tt.content)

			err := NewConfigCache(tempDir).Run()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Expected error containing '%s', got: %v", tt.errText, err)
			}
		})
	}
}

func TestConfigCacheTooManyTerms(t *testing.T) {
	tempDir := t.TempDir()
	var b strings.Builder
	b.WriteString("vendor: etsy\nbase_url: https://x.com\nsearch_terms:\n")
	for i := 0; i < 51; i++ {
		b.WriteString("  - term" + strings.Repeat("x", i) + "\n")
	}
	writeSource(t, tempDir, "many", b.String())

	if err := NewConfigCache(tempDir).Run(); err == nil {
		t.Error("Expected error for more than 50 search terms")
	}
}

func TestGetConfigsSortedByName(t *testing.T) {
	tempDir := t.TempDir()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		writeSource(t, tempDir, name, "vendor: chairish\nbase_url: https://www.chairish.com\nstrategy: html\nsearch_terms: [lamp]\n")
	}

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	defs := configCache.GetConfigs()
	if len(defs) != 3 || defs[0].Name != "alpha" || defs[2].Name != "zeta" {
		t.Errorf("Expected sources sorted by name, got %v", []string{defs[0].Name, defs[1].Name, defs[2].Name})
	}

	if _, err := configCache.GetConfig("unknown"); err == nil {
		t.Error("Expected error for unknown source")
	}
}

func TestDefinitionToSourceRoundTripsFilters(t *testing.T) {
	def := &Definition{
		Name:        "chairish-lighting",
		Vendor:      "chairish",
		BaseURL:     "https://www.chairish.com",
		SearchTerms: []string{"lamp"},
		Strategy:    "html",
		Status:      "PAUSED",
		Config:      map[string]any{"fetch_details": true},
		Filters:     []Filter{{Field: "title", Excludes: []string{"replica"}}},
	}

	source, err := def.ToSource()
	if err != nil {
		t.Fatal(err)
	}
	if source.Status != database.SourceStatusPaused {
		t.Errorf("Expected status PAUSED, got %s", source.Status)
	}

	opts, err := source.Options()
	if err != nil {
		t.Fatal(err)
	}
	if opts["fetch_details"] != true {
		t.Errorf("Expected vendor options to be preserved, got %v", opts)
	}

	filters, err := FiltersFromOptions(opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(filters) != 1 || filters[0].Field != "title" || filters[0].Excludes[0] != "replica" {
		t.Errorf("Expected filters to round trip, got %+v", filters)
	}

	var raw map[string]any
	if err := json.Unmarshal(source.Config, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := def.Config["filters"]; ok {
		t.Error("Expected definition config not to be mutated")
	}
}

func TestFiltersFromOptionsRejectsInvalid(t *testing.T) {
	opts := map[string]any{"filters": []any{map[string]any{"field": "price", "includes": []any{"x"}}}}
	if _, err := FiltersFromOptions(opts); err == nil {
		t.Error("Expected error for invalid filter field")
	}

	filters, err := FiltersFromOptions(map[string]any{})
	if err != nil || filters != nil {
		t.Errorf("Expected no filters, got %v, %v", filters, err)
	}
}
