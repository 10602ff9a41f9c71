package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// ImageSearch looks up product thumbnails with the Custom Search JSON API.
type ImageSearch struct {
	svc *customsearch.Service
	cx  string
}

// NewImageSearch returns an unconfigured search when key or cx is empty.
// endpoint overrides the API root and is meant for tests.
func NewImageSearch(ctx context.Context, key, cx, endpoint string) (*ImageSearch, error) {
	if key == "" || cx == "" {
		return &ImageSearch{}, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(key)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search service: %w", err)
	}
	return &ImageSearch{svc: svc, cx: cx}, nil
}

func (s *ImageSearch) Configured() bool {
	return s != nil && s.svc != nil && s.cx != ""
}

type imageHit struct {
	title string
	link  string
}

// Find returns image hits for query in result order. Failures yield no
// hits; thumbnails are optional.
func (s *ImageSearch) Find(ctx context.Context, query string) []imageHit {
	if !s.Configured() {
		return nil
	}

	res, err := s.svc.Cse.List().
		Cx(s.cx).
		Q(query).
		SearchType("image").
		Num(10).
		Context(ctx).
		Do()
	if err != nil {
		slog.Warn("Image search failed", "query", query, "error", err)
		return nil
	}

	seen := make(map[string]struct{}, len(res.Items))
	hits := make([]imageHit, 0, len(res.Items))
	for _, item := range res.Items {
		if item == nil || item.Link == "" {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(item.Title))
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		hits = append(hits, imageHit{title: title, link: item.Link})
	}
	return hits
}

// bestImage picks the hit sharing the most significant words with title.
// At least two shared words are required.
func bestImage(title string, hits []imageHit) string {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if len(w) > 2 {
			words[w] = struct{}{}
		}
	}

	best, bestScore := "", 0
	for _, hit := range hits {
		score := 0
		for _, w := range strings.Fields(hit.title) {
			if _, ok := words[w]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = hit.link, score
		}
	}

	if bestScore >= 2 {
		return best
	}
	return ""
}
