package scraper

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/curio/app/ratelimit"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const (
	ShopifyVendor       = "shopify"
	shopifyPageSize     = 50
	shopifyNamespaceKey = "s"
)

type shopifyOptions struct {
	PageSize int `mapstructure:"page_size"`
}

// ShopifyAdapter reads a storefront's collection Atom feeds. Search terms are
// collection handles and the cursor is the 1-based feed page.
type ShopifyAdapter struct {
	fetcher
	parser *gofeed.Parser
}

func NewShopifyAdapter(client *http.Client, queue *ratelimit.Queue, userAgent string) *ShopifyAdapter {
	return &ShopifyAdapter{
		fetcher: fetcher{client: client, queue: queue, userAgent: userAgent},
		parser:  gofeed.NewParser(),
	}
}

func (a *ShopifyAdapter) FetchPage(ctx context.Context, cfg Config) (*Result, error) {
	var opts shopifyOptions
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	if opts.PageSize <= 0 {
		opts.PageSize = shopifyPageSize
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("shopify: base URL is required")
	}
	if len(cfg.SearchTerms) == 0 {
		return &Result{}, nil
	}

	page := 1
	if cfg.Cursor != "" {
		n, err := strconv.Atoi(cfg.Cursor)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("shopify: invalid cursor %q", cfg.Cursor)
		}
		page = n
	}

	terms := cfg.SearchTerms
	if cfg.Cursor != "" {
		terms = terms[:1]
	}

	vendor := cmp.Or(cfg.VendorName, ShopifyVendor)

	result := &Result{}
	for i, term := range terms {
		feedURL := fmt.Sprintf("%s/collections/%s.atom?page=%d",
			strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(term), page)

		data, err := a.get(ctx, "shopify", feedURL, nil)
		if err != nil {
			return nil, err
		}

		feed, err := a.parser.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("shopify: failed to parse feed: %w", err)
		}

		for _, entry := range feed.Items {
			if item, ok := a.toItem(entry, cfg.BaseURL, vendor); ok {
				result.Items = append(result.Items, item)
			}
		}

		if i == 0 && len(feed.Items) >= opts.PageSize {
			result.NextCursor = strconv.Itoa(page + 1)
		}
	}

	return result, nil
}

func (a *ShopifyAdapter) toItem(entry *gofeed.Item, baseURL, vendor string) (ScrapedItem, bool) {
	link := AbsoluteURL(baseURL, entry.Link)
	id := cmp.Or(entry.GUID, link)
	if id == "" || strings.TrimSpace(entry.Title) == "" || link == "" {
		return ScrapedItem{}, false
	}

	price, currency := variantPrice(entry.Extensions)

	body := cmp.Or(entry.Content, entry.Description)
	description := ""
	var images []string
	if entry.Image != nil && entry.Image.URL != "" {
		images = append(images, entry.Image.URL)
	}
	if body != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
			doc.Find("img").Each(func(_ int, img *goquery.Selection) {
				if src := AbsoluteURL(baseURL, img.AttrOr("src", "")); src != "" {
					images = append(images, src)
				}
			})
			description = strings.TrimSpace(whitespace.ReplaceAllString(doc.Text(), " "))
		}
	}

	return ScrapedItem{
		ExternalID:  path.Base(strings.TrimRight(id, "/")),
		Title:       strings.TrimSpace(entry.Title),
		Description: truncate(description, maxDescriptionLength),
		Price:       price,
		Currency:    currency,
		ImageURLs:   firstN(images, 5),
		SourceURL:   link,
		VendorName:  vendor,
	}, true
}

// variantPrice reads s:variant/s:price from the Shopify namespace.
func variantPrice(extensions ext.Extensions) (int64, string) {
	currency := "USD"
	ns, ok := extensions[shopifyNamespaceKey]
	if !ok {
		return 0, currency
	}
	variants := ns["variant"]
	if len(variants) == 0 {
		return 0, currency
	}
	prices := variants[0].Children["price"]
	if len(prices) == 0 {
		return 0, currency
	}

	if c := prices[0].Attrs["currency"]; c != "" {
		currency = c
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(prices[0].Value), 64)
	if err != nil {
		return 0, currency
	}
	return ToMinorUnits(v), currency
}
