// Package feed renders catalog items as an RSS 2.0 channel.
package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/lysyi3m/curio/app/database"
)

// Channel describes the feed itself.
type Channel struct {
	Title       string
	Description string
	BaseURL     string
	SelfPath    string
	Version     string
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders items newest first as given. Aggregated items link to their
// source listing; first-party items link to their product page.
func (g *Generator) Run(ch Channel, items []database.CatalogItem) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	baseURL := strings.TrimRight(ch.BaseURL, "/")

	g.writeElement(&buf, "title", cmp.Or(ch.Title, "Curio catalog"), 4)
	g.writeElement(&buf, "link", baseURL, 4)
	g.writeElement(&buf, "description", cmp.Or(ch.Description, "Newest vintage finds"), 4)

	if baseURL != "" && ch.SelfPath != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(baseURL+ch.SelfPath)))
	}

	lastBuildDate := time.Now().In(time.Local)
	if len(items) > 0 {
		lastBuildDate = cmp.Or(items[0].CreatedAt, lastBuildDate)
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Curio/%s", cmp.Or(ch.Version, "dev")), 4)

	for _, item := range items {
		g.writeItem(&buf, baseURL, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, baseURL string, item database.CatalogItem) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(item.Slug))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title, 6)
	g.writeElement(buf, "link", itemLink(baseURL, item), 6)

	description := cmp.Or(item.Description, "No description available")
	if item.Price > 0 {
		description = fmt.Sprintf("%s (%s)", description, FormatPrice(item.Price, item.Currency))
	}
	g.writeElement(buf, "description", description, 6)

	if !item.CreatedAt.IsZero() {
		g.writeElement(buf, "pubDate", item.CreatedAt.Format(time.RFC1123Z), 6)
	}

	if item.VendorName != nil {
		g.writeElement(buf, "source", *item.VendorName, 6)
	}

	for _, tag := range item.Tags {
		if tag != "" {
			g.writeElement(buf, "category", tag, 6)
		}
	}

	// RSS 2.0 requires url, length and type on an enclosure; the length of a
	// remote image is unknown, so 0 is sent.
	if len(item.Images) > 0 && item.Images[0] != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"%s\" />\n",
			html.EscapeString(item.Images[0]),
			html.EscapeString(imageType(item.Images[0]))))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func itemLink(baseURL string, item database.CatalogItem) string {
	if item.Type == database.ItemTypeAggregated && item.SourceURL != nil && *item.SourceURL != "" {
		return *item.SourceURL
	}
	if baseURL == "" {
		return ""
	}
	return baseURL + "/product/" + item.Slug
}

func imageType(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(u))); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}

// FormatPrice renders minor units as "12.50 USD".
func FormatPrice(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, cmp.Or(currency, "USD"))
}
