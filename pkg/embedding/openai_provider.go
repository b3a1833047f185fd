package embedding

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const openaiDefaultModel = "text-embedding-3-small"

// OpenAIProvider implements Provider on top of the OpenAI embeddings API.
// It is the only provider that reports real token usage.
type OpenAIProvider struct {
	apiKey string
	client *openai.Client
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey: apiKey,
		client: openai.NewClient(apiKey),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) IsAvailable() bool { return p.apiKey != "" }

func (p *OpenAIProvider) Generate(ctx context.Context, text string, opts ...Option) (*Result, error) {
	results, err := p.GenerateBatch(ctx, []string{text}, opts...)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (p *OpenAIProvider) GenerateBatch(ctx context.Context, texts []string, opts ...Option) ([]*Result, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyText
		}
	}

	o := applyOptions(opts)
	model := openaiDefaultModel
	if o.Model != "" {
		model = o.Model
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(model),
		Dimensions: o.Dimensions,
	})
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "request failed", Err: err}
	}

	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("batch returned %d embeddings for %d texts", len(resp.Data), len(texts)),
		}
	}

	// The API reports usage for the whole batch. Spread it across results so
	// per-chunk cost accounting stays roughly correct.
	perText := resp.Usage.TotalTokens / len(texts)
	remainder := resp.Usage.TotalTokens % len(texts)

	results := make([]*Result, len(texts))
	for i, d := range resp.Data {
		tokens := perText
		if i == 0 {
			tokens += remainder
		}
		results[i] = &Result{
			Vector:     d.Embedding,
			Model:      model,
			Dimensions: len(d.Embedding),
			TokensUsed: tokens,
		}
	}
	return results, nil
}
