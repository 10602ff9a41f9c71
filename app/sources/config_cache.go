package sources

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lysyi3m/curio/app/database"
	"gopkg.in/yaml.v3"
)

const maxSearchTerms = 50

var validStrategies = map[string]bool{
	"api":  true,
	"html": true,
	"feed": true,
}

var validStatuses = map[database.SourceStatus]bool{
	database.SourceStatusActive: true,
	database.SourceStatusPaused: true,
	database.SourceStatusError:  true,
}

type ConfigCache struct {
	sourcesDir string
	cache      map[string]*Definition
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Definition),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		def, err := cc.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source definition loaded", "source", name, "vendor", def.Vendor, "status", def.Status, "terms", len(def.SearchTerms))
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(name string) (*Definition, error) {
	file := filepath.Join(cc.sourcesDir, name+".yml")
	def, err := parseDefinition(file)
	if err != nil {
		return nil, err
	}

	def.Name = name

	if err := validateDefinition(def); err != nil {
		return nil, fmt.Errorf("invalid source %s: %w", file, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[def.Name] = def

	return def, nil
}

func (cc *ConfigCache) GetConfig(name string) (*Definition, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	def, ok := cc.cache[name]
	if !ok {
		return nil, fmt.Errorf("source definition with name '%s' not found", name)
	}
	return def, nil
}

// GetConfigs returns every definition ordered by name.
func (cc *ConfigCache) GetConfigs() []*Definition {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	defs := make([]*Definition, 0, len(cc.cache))
	for _, d := range cc.cache {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func parseDefinition(file string) (*Definition, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	def.Vendor = strings.ToLower(strings.TrimSpace(def.Vendor))
	def.Strategy = strings.ToLower(strings.TrimSpace(def.Strategy))
	def.Status = strings.ToUpper(strings.TrimSpace(def.Status))
	if def.Status == "" {
		def.Status = string(database.SourceStatusActive)
	}
	if def.Strategy == "" {
		def.Strategy = "api"
	}

	terms := def.SearchTerms[:0]
	for _, t := range def.SearchTerms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	def.SearchTerms = terms

	return &def, nil
}

func validateDefinition(def *Definition) error {
	if def == nil {
		return fmt.Errorf("definition is nil")
	}

	if def.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if def.Vendor == "" {
		return fmt.Errorf("vendor is required")
	}
	if def.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}

	u, err := url.Parse(def.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base URL must be an absolute http(s) URL: %s", def.BaseURL)
	}

	if len(def.SearchTerms) == 0 {
		return fmt.Errorf("at least one search term is required")
	}
	if len(def.SearchTerms) > maxSearchTerms {
		return fmt.Errorf("at most %d search terms are allowed, got %d", maxSearchTerms, len(def.SearchTerms))
	}

	if !validStrategies[def.Strategy] {
		return fmt.Errorf("invalid strategy: %s", def.Strategy)
	}
	if !validStatuses[database.SourceStatus(def.Status)] {
		return fmt.Errorf("invalid status: %s", def.Status)
	}

	return validateFilters(def.Filters)
}

var validFilterFields = map[string]bool{
	"title":       true,
	"description": true,
	"vendor":      true,
	"url":         true,
}

func validateFilters(filters []Filter) error {
	for i, filter := range filters {
		if !validFilterFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}
	return nil
}
