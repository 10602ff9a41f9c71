package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chairishPage(cards int) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"grid\">")
	for i := 0; i < cards; i++ {
		fmt.Fprintf(&b, `
		<div data-product-id="p%d">
			<a href="/product/p%d/brass-lamp">
				<img src="/img/p%d.jpg">
				<h3>Brass lamp %d</h3>
			</a>
			<span class="price">$1,2%02d.50</span>
		</div>`, i, i, i, i, i)
	}
	// Card without a title is counted but skipped.
	b.WriteString(`<div data-product-id="broken"><a href="/product/broken"></a></div>`)
	b.WriteString("</div></body></html>")
	return b.String()
}

func TestChairishFullPageSetsNextCursor(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/shop/search", r.URL.Path)
		assert.Equal(t, "mid century lamp", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, chairishPage(20))
	}))
	defer srv.Close()

	adapter := NewChairishAdapter(newTestQueue(t), "curio-test", nil)
	res, err := adapter.FetchPage(context.Background(), Config{
		SearchTerms: []string{"mid century lamp"},
		BaseURL:     srv.URL,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Len(t, res.Items, 20)
	assert.Equal(t, "2", res.NextCursor)

	first := res.Items[0]
	assert.Equal(t, "p0", first.ExternalID)
	assert.Equal(t, "Brass lamp 0", first.Title)
	assert.Equal(t, int64(120050), first.Price)
	assert.Equal(t, srv.URL+"/product/p0/brass-lamp", first.SourceURL)
	assert.Equal(t, []string{srv.URL + "/img/p0.jpg"}, first.ImageURLs)
	assert.Equal(t, "chairish", first.VendorName)
}

func TestChairishShortPageEndsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		fmt.Fprint(w, chairishPage(4))
	}))
	defer srv.Close()

	adapter := NewChairishAdapter(newTestQueue(t), "curio-test", nil)
	res, err := adapter.FetchPage(context.Background(), Config{
		SearchTerms: []string{"lamp", "chair"},
		BaseURL:     srv.URL,
		Cursor:      "3",
	})
	require.NoError(t, err)
	assert.Len(t, res.Items, 4)
	assert.Empty(t, res.NextCursor)
}

func TestChairishNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewChairishAdapter(newTestQueue(t), "curio-test", nil)
	_, err := adapter.FetchPage(context.Background(), Config{SearchTerms: []string{"lamp"}, BaseURL: srv.URL})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestChairishFetchDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/shop/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chairishPage(1))
	})
	mux.HandleFunc("/product/p0/brass-lamp", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, productPageHTML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	queue := newTestQueue(t)
	details := NewDetailFetcher(srv.Client(), queue, "curio-test")
	adapter := NewChairishAdapter(queue, "curio-test", details)

	res, err := adapter.FetchPage(context.Background(), Config{
		SearchTerms: []string{"lamp"},
		BaseURL:     srv.URL,
		Options:     map[string]any{"fetch_details": true},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Contains(t, res.Items[0].Description, "solid brass")
}
