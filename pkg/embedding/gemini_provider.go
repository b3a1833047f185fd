package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const geminiDefaultModel = "text-embedding-004"

type GeminiProvider struct {
	apiKey string
	client *http.Client
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) IsAvailable() bool { return p.apiKey != "" }

// Gemini embedContent request/response structures
type geminiContentPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiContentPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	TaskType             string        `json:"taskType,omitempty"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type geminiBatchEmbedRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiEmbeddingValues struct {
	Values []float32 `json:"values"`
}

type geminiEmbedResponse struct {
	Embedding geminiEmbeddingValues `json:"embedding"`
}

type geminiBatchEmbedResponse struct {
	Embeddings []geminiEmbeddingValues `json:"embeddings"`
}

func (p *GeminiProvider) Generate(ctx context.Context, text string, opts ...Option) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	o := applyOptions(opts)
	model := geminiDefaultModel
	if o.Model != "" {
		model = o.Model
	}

	reqBody := geminiEmbedRequest{
		Model:                "models/" + model,
		Content:              geminiContent{Parts: []geminiContentPart{{Text: text}}},
		TaskType:             o.TaskType,
		OutputDimensionality: o.Dimensions,
	}

	var res geminiEmbedResponse
	endpoint := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1beta/models/%s:embedContent",
		model,
	)
	if err := p.post(ctx, endpoint, reqBody, &res); err != nil {
		return nil, err
	}

	return &Result{
		Vector:     res.Embedding.Values,
		Model:      model,
		Dimensions: len(res.Embedding.Values),
	}, nil
}

func (p *GeminiProvider) GenerateBatch(ctx context.Context, texts []string, opts ...Option) ([]*Result, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}
	o := applyOptions(opts)
	model := geminiDefaultModel
	if o.Model != "" {
		model = o.Model
	}

	batch := geminiBatchEmbedRequest{Requests: make([]geminiEmbedRequest, 0, len(texts))}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyText
		}
		batch.Requests = append(batch.Requests, geminiEmbedRequest{
			Model:                "models/" + model,
			Content:              geminiContent{Parts: []geminiContentPart{{Text: text}}},
			TaskType:             o.TaskType,
			OutputDimensionality: o.Dimensions,
		})
	}

	var res geminiBatchEmbedResponse
	endpoint := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1beta/models/%s:batchEmbedContents",
		model,
	)
	if err := p.post(ctx, endpoint, batch, &res); err != nil {
		return nil, err
	}

	// A count mismatch is a provider contract violation, never truncate or pad.
	if len(res.Embeddings) != len(texts) {
		return nil, &ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("batch returned %d embeddings for %d texts", len(res.Embeddings), len(texts)),
		}
	}

	results := make([]*Result, len(texts))
	for i, emb := range res.Embeddings {
		results[i] = &Result{
			Vector:     emb.Values,
			Model:      model,
			Dimensions: len(emb.Values),
		}
	}
	return results, nil
}

func (p *GeminiProvider) post(ctx context.Context, endpoint string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: p.Name(), Message: "request failed", Err: err}
	}
	defer res.Body.Close()

	resByte, err := io.ReadAll(res.Body)
	if err != nil {
		return &ProviderError{Provider: p.Name(), Message: "reading response failed", Err: err}
	}

	if res.StatusCode != http.StatusOK {
		return &ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("code %d, body %s", res.StatusCode, string(resByte)),
		}
	}

	if err := json.Unmarshal(resByte, out); err != nil {
		return &ProviderError{Provider: p.Name(), Message: "decoding response failed", Err: err}
	}
	return nil
}
