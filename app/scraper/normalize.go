package scraper

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ParsePrice reads a display price such as "$1,250.00" into minor units.
// Anything that is not a digit or a dot is dropped first.
func ParsePrice(text string) (int64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, fmt.Errorf("no price in %q", text)
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", text, err)
	}
	return ToMinorUnits(v), nil
}

// ToMinorUnits rounds a major-unit amount to the nearest minor unit.
func ToMinorUnits(major float64) int64 {
	if major <= 0 || math.IsNaN(major) || math.IsInf(major, 0) {
		return 0
	}
	return int64(math.Round(major * 100))
}

// AbsoluteURL resolves href against base. Absolute hrefs are returned as is.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ""
	}
	return b.ResolveReference(ref).String()
}

func firstN(values []string, n int) []string {
	out := make([]string, 0, n)
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}
