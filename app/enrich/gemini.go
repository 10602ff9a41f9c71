// Package enrich wraps the Gemini SDK: image analysis for catalog items,
// text embeddings for ranking, and the grounded search call the web search
// adapter builds on.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const requestTimeout = 60 * time.Second

var ErrNotConfigured = errors.New("gemini API key is not set")

// Error is returned by every client operation. StatusCode is zero when the
// failure happened before an HTTP response was received.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gemini %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gemini %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Config struct {
	APIKey         string
	BaseURL        string
	VisionModel    string
	EmbeddingModel string
	Dimensions     int
	UserAgent      string
}

// Models is the subset of genai.Models the client calls.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

type Client struct {
	models Models
	http   *http.Client
	cfg    Config
}

// New builds a client backed by the Gemini API. Without an API key the
// client is returned unconfigured and every call fails with
// ErrNotConfigured.
func New(ctx context.Context, httpClient *http.Client, c Config) (*Client, error) {
	client := NewWithModels(nil, httpClient, c)
	if c.APIKey == "" {
		return client, nil
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      c.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  client.http,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	client.models = gc.Models
	return client, nil
}

// NewWithModels builds a client over an existing models service.
func NewWithModels(models Models, httpClient *http.Client, c Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if c.VisionModel == "" {
		c.VisionModel = "gemini-2.0-flash"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "gemini-embedding-001"
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 768
	}
	return &Client{models: models, http: httpClient, cfg: c}
}

func (c *Client) Configured() bool {
	return c != nil && c.models != nil
}

func (c *Client) Dimensions() int {
	return c.cfg.Dimensions
}

// GroundedSearch runs prompt against model with Google Search grounding.
func (c *Client) GroundedSearch(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error) {
	const op = "generateContent"
	if !c.Configured() {
		return nil, &Error{Op: op, Err: ErrNotConfigured}
	}

	resp, err := c.models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		})
	if err != nil {
		return nil, wrap(op, err)
	}
	return resp, nil
}

// wrap converts SDK failures into *Error, keeping the HTTP status of API
// errors.
func wrap(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Op: op, StatusCode: apiErr.Code, Err: err}
	}
	return &Error{Op: op, Err: err}
}

// ResponseText concatenates the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Grounding returns the grounding metadata of the first candidate, if any.
func Grounding(resp *genai.GenerateContentResponse) *genai.GroundingMetadata {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	return resp.Candidates[0].GroundingMetadata
}

// StripCodeFences removes a surrounding ``` or ```json fence from model output.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
