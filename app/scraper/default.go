package scraper

import (
	"net/http"

	"github.com/lysyi3m/curio/app/ratelimit"
)

// NewDefaultRegistry registers every built-in adapter against the shared
// marketplace queue.
func NewDefaultRegistry(client *http.Client, queue *ratelimit.Queue, userAgent, etsyAPIKey string) *Registry {
	details := NewDetailFetcher(client, queue, userAgent)

	r := NewRegistry()
	r.Register(EtsyVendor, NewEtsyAdapter(client, queue, userAgent, etsyAPIKey))
	r.Register(ChairishVendor, NewChairishAdapter(queue, userAgent, details))
	r.Register(ShopifyVendor, NewShopifyAdapter(client, queue, userAgent))
	return r
}
