package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/lysyi3m/curio/app/ratelimit"
)

const maxDescriptionLength = 1000

var whitespace = regexp.MustCompile(`\s+`)

// DetailFetcher fills missing descriptions from the product page's main
// content. Each page fetch goes through the marketplace queue.
type DetailFetcher struct {
	fetcher
}

func NewDetailFetcher(client *http.Client, queue *ratelimit.Queue, userAgent string) *DetailFetcher {
	return &DetailFetcher{fetcher: fetcher{client: client, queue: queue, userAgent: userAgent}}
}

// Fill updates items in place. Failures are logged and leave the item as is.
func (d *DetailFetcher) Fill(ctx context.Context, items []ScrapedItem) {
	for i := range items {
		if items[i].Description != "" || items[i].SourceURL == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		desc, err := d.Describe(ctx, items[i].SourceURL)
		if err != nil {
			slog.Debug("Detail extraction failed", "url", items[i].SourceURL, "error", err)
			continue
		}
		items[i].Description = desc
	}
}

// Describe fetches pageURL and returns its readable text, trimmed.
func (d *DetailFetcher) Describe(ctx context.Context, pageURL string) (string, error) {
	data, err := d.get(ctx, "product page", pageURL, nil)
	if err != nil {
		return "", err
	}
	return ExtractDescription(data, pageURL)
}

// ExtractDescription runs readability over an HTML document and returns
// plain text, preferring the excerpt when the body is empty.
func ExtractDescription(data []byte, pageURL string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(data), parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	text := ""
	if article.Content != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
		if err != nil {
			return "", fmt.Errorf("failed to parse extracted content: %w", err)
		}
		doc.Find("script, style, figure").Remove()
		text = doc.Text()
	}
	if strings.TrimSpace(text) == "" {
		text = article.Excerpt
	}

	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	return truncate(text, maxDescriptionLength), nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
