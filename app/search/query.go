package search

import (
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
)

const (
	vectorWeight  = 0.7
	keywordWeight = 0.3
)

const selectColumns = `id, slug, title, description, price, currency, type, status,
	images, tags, source_url, vendor_name, source_item_id, seller_id, created_at, updated_at`

// QueryBuilder renders ranking queries as SQL plus positional args.
type QueryBuilder struct {
	conds []string
	args  []any
}

func (b *QueryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *QueryBuilder) where(cond string) {
	b.conds = append(b.conds, cond)
}

// predicates adds the hard filters shared by both ranking paths.
func (b *QueryBuilder) predicates(f Filters) {
	b.where("status = 'AVAILABLE'")
	if f.Type != "" {
		b.where("type = " + b.arg(string(f.Type)))
	}
	if f.PriceMin != nil {
		b.where("price >= " + b.arg(*f.PriceMin))
	}
	if f.PriceMax != nil {
		b.where("price <= " + b.arg(*f.PriceMax))
	}
	if f.Vendor != "" {
		b.where("LOWER(vendor_name) = " + b.arg(strings.ToLower(f.Vendor)))
	}
}

func (b *QueryBuilder) render(score, order string, page, limit int) (string, []any) {
	limitArg := b.arg(limit)
	offsetArg := b.arg((page - 1) * limit)

	sql := fmt.Sprintf(`SELECT %s,
	%s AS score,
	COUNT(*) OVER() AS total_count
FROM items
WHERE %s
ORDER BY %s
LIMIT %s OFFSET %s`, selectColumns, score, strings.Join(b.conds, "\n\tAND "), order, limitArg, offsetArg)

	return sql, b.args
}

// Hybrid blends cosine similarity to vec with a title keyword match.
// Candidates match the query on title or tags, or simply carry an embedding.
func Hybrid(req Request, vec pgvector.Vector) (string, []any) {
	b := &QueryBuilder{}
	vecArg := b.arg(vec)
	pattern := b.arg(likePattern(req.Query))

	b.predicates(req.Filters)
	b.where(fmt.Sprintf("(title ILIKE %[1]s OR array_to_string(tags, ' ') ILIKE %[1]s OR embedding IS NOT NULL)", pattern))

	score := fmt.Sprintf("(%.1f * COALESCE(1 - (embedding <=> %s), 0) + %.1f * CASE WHEN title ILIKE %s THEN 1 ELSE 0 END)",
		vectorWeight, vecArg, keywordWeight, pattern)

	return b.render(score, "score DESC, created_at DESC", req.Page, req.Limit)
}

// Keyword matches the query as a substring of title, description or tags and
// orders by the requested sort.
func Keyword(req Request) (string, []any) {
	b := &QueryBuilder{}
	pattern := b.arg(likePattern(req.Query))

	b.predicates(req.Filters)
	b.where(fmt.Sprintf("(title ILIKE %[1]s OR description ILIKE %[1]s OR array_to_string(tags, ' ') ILIKE %[1]s)", pattern))

	return b.render("0::float8", keywordOrder(req.SortBy), req.Page, req.Limit)
}

func keywordOrder(s SortBy) string {
	switch s {
	case SortPriceAsc:
		return "price ASC, created_at DESC"
	case SortPriceDesc:
		return "price DESC, created_at DESC"
	default:
		return "created_at DESC"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps q for a substring ILIKE with wildcards escaped.
func likePattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}
