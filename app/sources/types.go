// Package sources loads crawl-source definitions from YAML files and applies
// their per-source item filters.
package sources

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/lysyi3m/curio/app/database"
	"github.com/mitchellh/mapstructure"
)

const filtersKey = "filters"

// Definition is one crawl source as declared in <SOURCES_DIR>/<name>.yml.
type Definition struct {
	Name        string         // Derived from filename (without .yml extension)
	Vendor      string         `yaml:"vendor"`
	BaseURL     string         `yaml:"base_url"`
	SearchTerms []string       `yaml:"search_terms"`
	Strategy    string         `yaml:"strategy"`
	Status      string         `yaml:"status"`
	Config      map[string]any `yaml:"config"`
	Filters     []Filter       `yaml:"filters"`
}

type Filter struct {
	Field    string   `yaml:"field" json:"field" mapstructure:"field"`
	Includes []string `yaml:"includes" json:"includes,omitempty" mapstructure:"includes"`
	Excludes []string `yaml:"excludes" json:"excludes,omitempty" mapstructure:"excludes"`
}

// ToSource converts the definition into a store row. Filters travel inside
// the config blob.
func (d *Definition) ToSource() (*database.CrawlSource, error) {
	blob := make(map[string]any, len(d.Config)+1)
	maps.Copy(blob, d.Config)
	if len(d.Filters) > 0 {
		blob[filtersKey] = d.Filters
	}

	data, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config for source %s: %w", d.Name, err)
	}

	return &database.CrawlSource{
		Name:        d.Name,
		VendorName:  d.Vendor,
		BaseURL:     d.BaseURL,
		SearchTerms: d.SearchTerms,
		Strategy:    d.Strategy,
		Config:      data,
		Status:      database.SourceStatus(d.Status),
	}, nil
}

// FiltersFromOptions reads the filters stored in a decoded config blob.
func FiltersFromOptions(opts map[string]any) ([]Filter, error) {
	raw, ok := opts[filtersKey]
	if !ok || raw == nil {
		return nil, nil
	}

	var filters []Filter
	if err := mapstructure.Decode(raw, &filters); err != nil {
		return nil, fmt.Errorf("invalid filters: %w", err)
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	return filters, nil
}
