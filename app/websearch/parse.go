package websearch

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/lysyi3m/curio/app/enrich"
	"google.golang.org/genai"
)

type product struct {
	Title       string `json:"title"`
	Price       any    `json:"price"`
	Description string `json:"description"`
}

// parseProducts reads the JSON array the model was asked for. Prose around
// the array is tolerated.
func parseProducts(text string) []product {
	body := enrich.StripCodeFences(text)

	var products []product
	if err := json.Unmarshal([]byte(body), &products); err == nil {
		return products
	}

	start, end := strings.IndexByte(body, '['), strings.LastIndexByte(body, ']')
	if start < 0 || end <= start {
		return nil
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), &products); err != nil {
		return nil
	}
	return products
}

func priceString(v any) string {
	switch p := v.(type) {
	case string:
		return strings.TrimSpace(p)
	case float64:
		return "$" + strconv.FormatFloat(p, 'f', -1, 64)
	}
	return ""
}

// correlator maps positions in the model text to grounding chunks.
type correlator struct {
	text    string
	chunks  []*genai.GroundingChunk
	offsets []int
	chunkAt map[int]int
}

func newCorrelator(text string, meta *genai.GroundingMetadata) *correlator {
	c := &correlator{text: text, chunkAt: make(map[int]int)}
	if meta == nil {
		return c
	}
	c.chunks = meta.GroundingChunks

	for _, s := range meta.GroundingSupports {
		if s == nil || s.Segment == nil || len(s.GroundingChunkIndices) == 0 {
			continue
		}
		idx := int(s.GroundingChunkIndices[0])
		if idx < 0 || idx >= len(c.chunks) {
			continue
		}
		c.chunkAt[int(s.Segment.StartIndex)] = idx
	}
	for off := range c.chunkAt {
		c.offsets = append(c.offsets, off)
	}
	sort.Ints(c.offsets)
	return c
}

// chunkFor returns the grounding chunk backing the i-th product: the chunk
// of the nearest support starting at or before the product's position in
// the text, falling back to round-robin over all chunks.
func (c *correlator) chunkFor(i int, title string) (*genai.GroundingChunk, bool) {
	if len(c.chunks) == 0 {
		return nil, false
	}

	if pos := c.position(title); pos >= 0 {
		j := sort.Search(len(c.offsets), func(k int) bool { return c.offsets[k] > pos })
		if j > 0 {
			return c.chunks[c.chunkAt[c.offsets[j-1]]], true
		}
	}
	return c.chunks[i%len(c.chunks)], true
}

func (c *correlator) position(title string) int {
	escaped := strings.ReplaceAll(title, `"`, `\"`)
	for _, needle := range []string{
		`"title": "` + escaped + `"`,
		`"title":"` + escaped + `"`,
		prefix(title, 30),
	} {
		if needle == "" {
			continue
		}
		if pos := strings.Index(c.text, needle); pos >= 0 {
			return pos
		}
	}
	return -1
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// buildResults turns a grounded response into deduplicated results. When
// the text holds no products, the grounding sources themselves are used.
func buildResults(resp *genai.GenerateContentResponse, images []imageHit) []Result {
	text := enrich.ResponseText(resp)
	meta := enrich.Grounding(resp)
	c := newCorrelator(text, meta)

	var results []Result
	for i, p := range parseProducts(text) {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			continue
		}
		chunk, ok := c.chunkFor(i, title)
		if !ok || chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}

		results = append(results, Result{
			Title:     title,
			URL:       chunk.Web.URI,
			Snippet:   strings.TrimSpace(p.Description),
			Price:     priceString(p.Price),
			Thumbnail: bestImage(title, images),
			Source:    sourceName(chunk.Web),
		})
	}

	if len(results) == 0 && meta != nil {
		for _, chunk := range meta.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			title := chunk.Web.Title
			if title == "" {
				title = chunk.Web.URI
			}
			results = append(results, Result{
				Title:     title,
				URL:       chunk.Web.URI,
				Thumbnail: bestImage(title, images),
				Source:    sourceName(chunk.Web),
			})
		}
	}

	return dedupe(results)
}

func sourceName(w *genai.GroundingChunkWeb) string {
	if w.Title == "" {
		return "web"
	}
	return w.Title
}

func dedupe(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		key := strings.ToLower(r.Title)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
