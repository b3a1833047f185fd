package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Task types that distinguish query embeddings from document embeddings for
// providers that support the hint (Gemini does, Ollama ignores it).
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// ErrEmptyText is returned when the input is empty after trimming.
// This is a local validation failure, the provider is never called.
var ErrEmptyText = errors.New("embedding: text is empty")

// ProviderError is a typed failure from a backing embedding model.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Result is a single generated embedding with its provenance and cost.
type Result struct {
	Vector     []float32
	Model      string
	Dimensions int
	// TokensUsed is the token cost reported by the backing model.
	// Cache hits always report 0.
	TokensUsed int
	CacheHit   bool
}

// Options are optional per-call parameters. Model and Dimensions change the
// produced vector, so both are part of the cache key.
type Options struct {
	Model      string
	Dimensions int
	TaskType   string
}

type Option func(*Options)

func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

func WithDimensions(dims int) Option {
	return func(o *Options) { o.Dimensions = dims }
}

func WithTaskType(taskType string) Option {
	return func(o *Options) { o.TaskType = taskType }
}

func applyOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Provider generates embeddings for text.
type Provider interface {
	// Name identifies the provider ("gemini", "ollama", "openai").
	Name() string

	// Generate turns a single text into a fixed-dimension vector.
	Generate(ctx context.Context, text string, opts ...Option) (*Result, error)

	// GenerateBatch embeds several texts in one upstream call. The returned
	// slice is parallel to texts: exactly one result per input, same order.
	GenerateBatch(ctx context.Context, texts []string, opts ...Option) ([]*Result, error)

	// IsAvailable reports whether the provider is configured well enough to
	// attempt a call.
	IsAvailable() bool
}
