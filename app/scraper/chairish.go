package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/lysyi3m/curio/app/ratelimit"
)

const (
	ChairishVendor   = "chairish"
	chairishPageSize = 20
	chairishTimeout  = 30 * time.Second

	chairishCardSel  = "[data-product-id]"
	chairishTitleSel = "[data-testid='product-title'], .product-title, h3, h2"
	chairishPriceSel = "[data-testid='product-price'], .product-price, .price"
)

type chairishOptions struct {
	FetchDetails bool `mapstructure:"fetch_details"`
	PageSize     int  `mapstructure:"page_size"`
}

// ChairishAdapter scrapes the public search results page. The cursor is the
// 1-based page number of the first search term.
type ChairishAdapter struct {
	queue     *ratelimit.Queue
	userAgent string
	details   *DetailFetcher
}

func NewChairishAdapter(queue *ratelimit.Queue, userAgent string, details *DetailFetcher) *ChairishAdapter {
	return &ChairishAdapter{queue: queue, userAgent: userAgent, details: details}
}

func (a *ChairishAdapter) FetchPage(ctx context.Context, cfg Config) (*Result, error) {
	var opts chairishOptions
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	if opts.PageSize <= 0 {
		opts.PageSize = chairishPageSize
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("chairish: base URL is required")
	}
	if len(cfg.SearchTerms) == 0 {
		return &Result{}, nil
	}

	page := 1
	if cfg.Cursor != "" {
		n, err := strconv.Atoi(cfg.Cursor)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("chairish: invalid cursor %q", cfg.Cursor)
		}
		page = n
	}

	terms := cfg.SearchTerms
	if cfg.Cursor != "" {
		terms = terms[:1]
	}

	vendor := cfg.VendorName
	if vendor == "" {
		vendor = ChairishVendor
	}

	result := &Result{}
	for i, term := range terms {
		items, cards, err := a.scrape(ctx, cfg.BaseURL, term, page, vendor)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, items...)

		if i == 0 && cards >= opts.PageSize {
			result.NextCursor = strconv.Itoa(page + 1)
		}
	}

	if opts.FetchDetails && a.details != nil {
		a.details.Fill(ctx, result.Items)
	}

	return result, nil
}

// scrape returns the parsed items and the number of product cards seen.
func (a *ChairishAdapter) scrape(ctx context.Context, baseURL, term string, page int, vendor string) ([]ScrapedItem, int, error) {
	searchURL := fmt.Sprintf("%s/shop/search?q=%s&page=%d",
		strings.TrimRight(baseURL, "/"), url.QueryEscape(term), page)

	c := colly.NewCollector(colly.UserAgent(a.userAgent))
	c.Context = ctx
	c.SetRequestTimeout(chairishTimeout)

	var items []ScrapedItem
	cards := 0
	var status int

	c.OnHTML(chairishCardSel, func(e *colly.HTMLElement) {
		cards++
		item, ok := parseChairishCard(e.DOM, baseURL, vendor)
		if !ok {
			slog.Debug("Skipping incomplete product card", "vendor", vendor, "id", e.Attr("data-product-id"))
			return
		}
		items = append(items, item)
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	err := ratelimit.Do(ctx, a.queue, func(ctx context.Context) error {
		return c.Visit(searchURL)
	})
	if err != nil {
		if status != 0 && (status < 200 || status > 299) {
			return nil, 0, &StatusError{Vendor: "chairish", StatusCode: status}
		}
		return nil, 0, fmt.Errorf("chairish: failed to fetch %s: %w", searchURL, err)
	}

	return items, cards, nil
}

func parseChairishCard(card *goquery.Selection, baseURL, vendor string) (ScrapedItem, bool) {
	id := strings.TrimSpace(card.AttrOr("data-product-id", ""))
	title := strings.TrimSpace(card.Find(chairishTitleSel).First().Text())
	if id == "" || title == "" {
		return ScrapedItem{}, false
	}

	href := card.AttrOr("href", "")
	if href == "" {
		href = card.Find("a[href]").First().AttrOr("href", "")
	}
	sourceURL := AbsoluteURL(baseURL, href)
	if sourceURL == "" {
		return ScrapedItem{}, false
	}

	var price int64
	if text := card.Find(chairishPriceSel).First().Text(); text != "" {
		if p, err := ParsePrice(text); err == nil {
			price = p
		}
	}

	var images []string
	card.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := img.AttrOr("src", "")
		if src == "" || strings.HasPrefix(src, "data:") {
			src = img.AttrOr("data-src", "")
		}
		if abs := AbsoluteURL(baseURL, src); abs != "" {
			images = append(images, abs)
		}
		return len(images) < 5
	})

	return ScrapedItem{
		ExternalID: id,
		Title:      title,
		Price:      price,
		Currency:   "USD",
		ImageURLs:  images,
		SourceURL:  sourceURL,
		VendorName: vendor,
	}, true
}
