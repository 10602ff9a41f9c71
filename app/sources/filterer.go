package sources

import (
	"log/slog"
	"strings"

	"github.com/lysyi3m/curio/app/scraper"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run returns the items that pass every filter and the number dropped.
func (f *Filterer) Run(items []scraper.ScrapedItem, filters []Filter) ([]scraper.ScrapedItem, int) {
	if len(filters) == 0 {
		return items, 0
	}

	kept := make([]scraper.ScrapedItem, 0, len(items))
	for _, item := range items {
		if excluded, reason := f.applyFilters(item, filters); excluded {
			slog.Debug("Item filtered", "source_item_id", item.SourceItemID(), "reason", reason)
			continue
		}
		kept = append(kept, item)
	}

	return kept, len(items) - len(kept)
}

func (f *Filterer) applyFilters(item scraper.ScrapedItem, filters []Filter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(item, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, "excluded by " + filter.Field + " filter: contains '" + exclude + "'"
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, "excluded by " + filter.Field + " filter: no include matched"
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(item scraper.ScrapedItem, field string) string {
	switch field {
	case "title":
		return item.Title
	case "description":
		return item.Description
	case "vendor":
		return item.VendorName
	case "url":
		return item.SourceURL
	default:
		return ""
	}
}
