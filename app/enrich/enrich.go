package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const (
	maxImageBytes = 8 << 20
	maxTags       = 10

	visionPrompt = `You are a vintage furniture and home goods expert. Analyze the image and return a JSON object with: "description" (a short, descriptive sentence about the item) and "tags" (an array of 5-10 relevant keywords for search).`
)

type ImageAnalysis struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// AnalyzeImage downloads imageURL, sends the bytes inline to the vision
// model and returns a description plus normalised search tags.
func (c *Client) AnalyzeImage(ctx context.Context, imageURL string) (*ImageAnalysis, error) {
	const op = "analyzeImage"
	if !c.Configured() {
		return nil, &Error{Op: op, Err: ErrNotConfigured}
	}

	data, mimeType, err := c.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.models.GenerateContent(ctx, c.cfg.VisionModel,
		[]*genai.Content{genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(visionPrompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			MaxOutputTokens:  300,
		})
	if err != nil {
		return nil, wrap(op, err)
	}

	var analysis ImageAnalysis
	if err := json.Unmarshal([]byte(StripCodeFences(ResponseText(resp))), &analysis); err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("failed to parse model output: %w", err)}
	}

	analysis.Description = strings.TrimSpace(analysis.Description)
	if analysis.Description == "" {
		return nil, &Error{Op: op, Err: errors.New("model returned an empty description")}
	}
	analysis.Tags = NormalizeTags(analysis.Tags)

	return &analysis, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	const op = "fetchImage"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", &Error{Op: op, Err: fmt.Errorf("invalid image URL: %w", err)}
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &Error{Op: op, StatusCode: resp.StatusCode, Err: errors.New("failed to fetch image")}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", &Error{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if len(data) > maxImageBytes {
		return nil, "", &Error{Op: op, StatusCode: resp.StatusCode, Err: errors.New("image exceeds size limit")}
	}
	if len(data) == 0 {
		return nil, "", &Error{Op: op, StatusCode: resp.StatusCode, Err: errors.New("image is empty")}
	}

	mimeType := "image/jpeg"
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && strings.HasPrefix(mt, "image/") {
		mimeType = mt
	}

	return data, mimeType, nil
}

// GenerateEmbedding returns the embedding of text with the configured
// dimensionality.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	const op = "embedContent"
	if !c.Configured() {
		return nil, &Error{Op: op, Err: ErrNotConfigured}
	}

	resp, err := c.models.EmbedContent(ctx, c.cfg.EmbeddingModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(c.cfg.Dimensions))})
	if err != nil {
		return nil, wrap(op, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, &Error{Op: op, Err: errors.New("response has no embedding")}
	}

	values := resp.Embeddings[0].Values
	if got := len(values); got != c.cfg.Dimensions {
		return nil, &Error{Op: op, Err: fmt.Errorf("expected %d dimensions, got %d", c.cfg.Dimensions, got)}
	}
	return values, nil
}

// NormalizeTags lower-cases and trims tags, drops empties and duplicates and
// keeps at most ten.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, min(len(tags), maxTags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}
