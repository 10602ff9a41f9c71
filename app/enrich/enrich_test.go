package enrich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	text       string
	dims       int
	err        error
	genModel   string
	genContent []*genai.Content
	genConfig  *genai.GenerateContentConfig
	embedModel string
	embedText  string
	embedCfg   *genai.EmbedContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.genModel, f.genContent, f.genConfig = model, contents, config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: genai.NewContentFromText(f.text, genai.RoleModel),
	}}}, nil
}

func (f *fakeModels) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.embedModel, f.embedCfg = model, config
	f.embedText = contents[0].Parts[0].Text
	if f.err != nil {
		return nil, f.err
	}
	return &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{{Values: make([]float32, f.dims)}}}, nil
}

func imageServer(t *testing.T, contentType string, body []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newFakeClient(models *fakeModels, srv *httptest.Server) *Client {
	var httpClient *http.Client
	if srv != nil {
		httpClient = srv.Client()
	}
	return NewWithModels(models, httpClient, Config{Dimensions: 8})
}

func TestAnalyzeImage(t *testing.T) {
	imageBytes := []byte{0x89, 'P', 'N', 'G'}
	srv := imageServer(t, "image/png; charset=binary", imageBytes)
	models := &fakeModels{text: "```json\n{\"description\":\" A teak sideboard. \",\"tags\":[\"Teak\",\"sideboard\",\"teak\",\" \",\"Danish\"]}\n```"}
	client := newFakeClient(models, srv)

	analysis, err := client.AnalyzeImage(context.Background(), srv.URL+"/image.png")
	require.NoError(t, err)

	assert.Equal(t, "A teak sideboard.", analysis.Description)
	assert.Equal(t, []string{"teak", "sideboard", "danish"}, analysis.Tags)

	assert.Equal(t, "gemini-2.0-flash", models.genModel)
	require.Len(t, models.genContent, 1)
	parts := models.genContent[0].Parts
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "vintage furniture and home goods expert")
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)
	assert.Equal(t, imageBytes, parts[1].InlineData.Data)
	assert.Equal(t, "application/json", models.genConfig.ResponseMIMEType)
	assert.Equal(t, int32(300), models.genConfig.MaxOutputTokens)
}

func TestAnalyzeImageMalformedOutput(t *testing.T) {
	srv := imageServer(t, "image/jpeg", []byte{1})
	client := newFakeClient(&fakeModels{text: "not json"}, srv)

	_, err := client.AnalyzeImage(context.Background(), srv.URL+"/image.png")

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "analyzeImage", gerr.Op)
}

func TestAnalyzeImageMissingImage(t *testing.T) {
	srv := imageServer(t, "image/jpeg", []byte{1})
	models := &fakeModels{}
	client := newFakeClient(models, srv)

	_, err := client.AnalyzeImage(context.Background(), srv.URL+"/missing.jpg")

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "fetchImage", gerr.Op)
	assert.Equal(t, http.StatusNotFound, gerr.StatusCode)
	assert.Empty(t, models.genModel, "the model must not be called without an image")
}

func TestGenerateEmbedding(t *testing.T) {
	models := &fakeModels{dims: 8}
	client := newFakeClient(models, nil)

	values, err := client.GenerateEmbedding(context.Background(), "teak sideboard")
	require.NoError(t, err)
	assert.Len(t, values, 8)
	assert.Equal(t, "gemini-embedding-001", models.embedModel)
	require.NotNil(t, models.embedCfg.OutputDimensionality)
	assert.Equal(t, int32(8), *models.embedCfg.OutputDimensionality)
	assert.Equal(t, "teak sideboard", models.embedText)
}

func TestGenerateEmbeddingDimensionMismatch(t *testing.T) {
	client := newFakeClient(&fakeModels{dims: 3}, nil)

	_, err := client.GenerateEmbedding(context.Background(), "lamp")
	assert.Error(t, err)
}

func TestGenerateEmbeddingAPIError(t *testing.T) {
	apiErr := genai.APIError{Code: http.StatusTooManyRequests, Message: "quota", Status: "RESOURCE_EXHAUSTED"}
	client := newFakeClient(&fakeModels{err: apiErr}, nil)

	_, err := client.GenerateEmbedding(context.Background(), "lamp")

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "embedContent", gerr.Op)
	assert.Equal(t, http.StatusTooManyRequests, gerr.StatusCode)
}

func TestGroundedSearchUsesGoogleSearchTool(t *testing.T) {
	models := &fakeModels{text: "[]"}
	client := newFakeClient(models, nil)

	resp, err := client.GroundedSearch(context.Background(), "search-model", "find lamps")
	require.NoError(t, err)
	assert.Equal(t, "[]", ResponseText(resp))
	assert.Nil(t, Grounding(resp))

	assert.Equal(t, "search-model", models.genModel)
	assert.Equal(t, "find lamps", models.genContent[0].Parts[0].Text)
	require.Len(t, models.genConfig.Tools, 1)
	assert.NotNil(t, models.genConfig.Tools[0].GoogleSearch)
}

func TestGroundedSearchTransportError(t *testing.T) {
	client := newFakeClient(&fakeModels{err: errors.New("connection reset")}, nil)

	_, err := client.GroundedSearch(context.Background(), "m", "q")

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Zero(t, gerr.StatusCode)
}

func TestNotConfigured(t *testing.T) {
	client, err := New(context.Background(), nil, Config{})
	require.NoError(t, err)
	assert.False(t, client.Configured())

	_, err = client.GenerateEmbedding(context.Background(), "lamp")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = client.AnalyzeImage(context.Background(), "https://example.com/a.jpg")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = client.GroundedSearch(context.Background(), "m", "q")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestResponseTextEmpty(t *testing.T) {
	assert.Empty(t, ResponseText(nil))
	assert.Empty(t, ResponseText(&genai.GenerateContentResponse{}))
	assert.Empty(t, ResponseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))
}

func TestStripCodeFences(t *testing.T) {
	tests := map[string]string{
		"[1,2]":                 "[1,2]",
		"```json\n[1,2]\n```":   "[1,2]",
		"```\n{\"a\":1}\n```  ": "{\"a\":1}",
		"```json[1]```":         "[1]",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripCodeFences(in), "input %q", in)
	}
}

func TestNormalizeTagsCapsAtTen(t *testing.T) {
	in := make([]string, 0, 15)
	for _, c := range "abcdefghijklmno" {
		in = append(in, string(c))
	}
	assert.Len(t, NormalizeTags(in), 10)
	assert.Empty(t, NormalizeTags(nil))
}
