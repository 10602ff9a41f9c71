package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lysyi3m/curio/app/ratelimit"
)

const (
	EtsyVendor         = "etsy"
	etsyDefaultBaseURL = "https://openapi.etsy.com"
	etsyListingsPath   = "/v3/application/listings/active"
	etsyPageSize       = 20
	etsyTaxonomyID     = 891
	etsyMaxImages      = 5
)

type etsyOptions struct {
	APIKey     string `mapstructure:"api_key"`
	TaxonomyID int    `mapstructure:"taxonomy_id"`
	Limit      int    `mapstructure:"limit"`
}

type etsyListing struct {
	ListingID int64  `json:"listing_id"`
	Title     string `json:"title"`
	Desc      string `json:"description"`
	URL       string `json:"url"`
	Price     struct {
		Amount       float64 `json:"amount"`
		Divisor      float64 `json:"divisor"`
		CurrencyCode string  `json:"currency_code"`
	} `json:"price"`
	Images []struct {
		URLFullxfull string `json:"url_fullxfull"`
	} `json:"images"`
}

type etsyResponse struct {
	Count   int           `json:"count"`
	Results []etsyListing `json:"results"`
}

// EtsyAdapter reads the Etsy Open API v3 active listings endpoint. The cursor
// is the offset into the first search term's results.
type EtsyAdapter struct {
	fetcher
	apiKey string
}

func NewEtsyAdapter(client *http.Client, queue *ratelimit.Queue, userAgent, apiKey string) *EtsyAdapter {
	return &EtsyAdapter{
		fetcher: fetcher{client: client, queue: queue, userAgent: userAgent},
		apiKey:  apiKey,
	}
}

func (a *EtsyAdapter) FetchPage(ctx context.Context, cfg Config) (*Result, error) {
	var opts etsyOptions
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = a.apiKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("etsy: api_key is not configured: %w", ErrMissingCredentials)
	}
	if opts.TaxonomyID == 0 {
		opts.TaxonomyID = etsyTaxonomyID
	}
	if opts.Limit <= 0 {
		opts.Limit = etsyPageSize
	}

	if len(cfg.SearchTerms) == 0 {
		return &Result{}, nil
	}

	offset := 0
	if cfg.Cursor != "" {
		n, err := strconv.Atoi(cfg.Cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("etsy: invalid cursor %q", cfg.Cursor)
		}
		offset = n
	}

	terms := cfg.SearchTerms
	if cfg.Cursor != "" {
		terms = terms[:1]
	}

	vendor := cfg.VendorName
	if vendor == "" {
		vendor = EtsyVendor
	}

	result := &Result{}
	for i, term := range terms {
		listings, err := a.fetchListings(ctx, cfg.BaseURL, apiKey, term, offset, opts)
		if err != nil {
			return nil, err
		}

		for _, l := range listings {
			result.Items = append(result.Items, a.toItem(l, vendor))
		}

		if i == 0 && len(listings) >= opts.Limit {
			result.NextCursor = strconv.Itoa(offset + opts.Limit)
		}
	}

	return result, nil
}

func (a *EtsyAdapter) fetchListings(ctx context.Context, baseURL, apiKey, term string, offset int, opts etsyOptions) ([]etsyListing, error) {
	if baseURL == "" {
		baseURL = etsyDefaultBaseURL
	}

	params := url.Values{}
	params.Set("keywords", term)
	params.Set("limit", strconv.Itoa(opts.Limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("sort_on", "created")
	params.Set("sort_order", "desc")
	params.Set("taxonomy_id", strconv.Itoa(opts.TaxonomyID))
	params.Set("includes", "images")

	endpoint := strings.TrimRight(baseURL, "/") + etsyListingsPath + "?" + params.Encode()

	data, err := a.get(ctx, "etsy", endpoint, map[string]string{"x-api-key": apiKey})
	if err != nil {
		return nil, err
	}

	var resp etsyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("etsy: failed to decode listings: %w", err)
	}
	return resp.Results, nil
}

func (a *EtsyAdapter) toItem(l etsyListing, vendor string) ScrapedItem {
	divisor := l.Price.Divisor
	if divisor <= 0 {
		divisor = 100
	}
	currency := l.Price.CurrencyCode
	if currency == "" {
		currency = "USD"
	}

	images := make([]string, 0, len(l.Images))
	for _, img := range l.Images {
		images = append(images, img.URLFullxfull)
	}

	sourceURL := l.URL
	if sourceURL == "" {
		sourceURL = fmt.Sprintf("https://www.etsy.com/listing/%d", l.ListingID)
	}

	return ScrapedItem{
		ExternalID:  strconv.FormatInt(l.ListingID, 10),
		Title:       html.UnescapeString(strings.TrimSpace(l.Title)),
		Description: html.UnescapeString(strings.TrimSpace(l.Desc)),
		Price:       ToMinorUnits(l.Price.Amount / divisor),
		Currency:    currency,
		ImageURLs:   firstN(images, etsyMaxImages),
		SourceURL:   sourceURL,
		VendorName:  vendor,
	}
}
