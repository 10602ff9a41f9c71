// Package slug turns titles into URL slugs with a random suffix, so callers
// get unique values without checking the store.
package slug

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	MaxBaseLength = 80
	SuffixLength  = 8
	fallbackBase  = "item"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var (
	nonWord    = regexp.MustCompile(`[^\w\s-]`)
	separators = regexp.MustCompile(`[\s_]+`)
	dashes     = regexp.MustCompile(`-+`)
)

// Base normalises a title without the random suffix.
func Base(title string) string {
	s := strings.ToLower(strings.TrimSpace(foldDiacritics(title)))
	s = nonWord.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, "-")
	s = dashes.ReplaceAllString(s, "-")
	if len(s) > MaxBaseLength {
		s = s[:MaxBaseLength]
	}
	return strings.Trim(s, "-")
}

// Generate returns Base(title) plus "-" and a random base-36 suffix.
func Generate(title string) string {
	base := Base(title)
	if base == "" {
		base = fallbackBase
	}
	return base + "-" + suffix()
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func suffix() string {
	var b strings.Builder
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < SuffixLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("slug: crypto/rand unavailable: " + err.Error())
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String()
}
