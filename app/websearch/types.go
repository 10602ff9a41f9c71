// Package websearch finds products on the open web through Gemini's Google
// Search grounding, with thumbnails from Google Custom Search and a result
// cache keyed by normalised query.
package websearch

type Result struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet"`
	Price     string `json:"price,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Source    string `json:"source"`
}

// ErrorKind is the user-facing failure class of a lookup.
type ErrorKind string

const (
	ErrNotConfigured ErrorKind = "not_configured"
	ErrQuotaExceeded ErrorKind = "quota_exceeded"
	ErrNetwork       ErrorKind = "network_error"
)

type Response struct {
	Results   []Result  `json:"results"`
	FromCache bool      `json:"fromCache"`
	Error     ErrorKind `json:"error,omitempty"`
}
