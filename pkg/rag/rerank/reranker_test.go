package rerank

import (
	"context"
	"errors"
	"testing"

	"second-brain-be/internal/pkg/logger"
	"second-brain-be/pkg/llm"
	"second-brain-be/pkg/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	response string
	err      error
	lastUser string
}

func (f *fakeLLM) Chat(_ context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	for _, m := range history {
		if m.Role == "user" {
			f.lastUser = m.Content
		}
	}
	return f.response, f.err
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func candidates(ids ...string) []vectorstore.SearchResult {
	out := make([]vectorstore.SearchResult, len(ids))
	for i, id := range ids {
		out[i] = vectorstore.SearchResult{Id: id, Content: "passage " + id, Similarity: 0.5}
	}
	return out
}

func TestLLMRerankerReordersByScore(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{response: "[0.2, 0.9, 0.6]"}, logger.NewNopLogger())

	out, err := r.Rerank(context.Background(), "q", candidates("a", "b", "c"), 3, 0.0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].Id)
	assert.Equal(t, "c", out[1].Id)
	assert.Equal(t, "a", out[2].Id)
	assert.InDelta(t, 0.9, out[0].Similarity, 1e-9)
}

func TestLLMRerankerFiltersBelowMinScore(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{response: "[0.8, 0.1, 0.5]"}, logger.NewNopLogger())

	out, err := r.Rerank(context.Background(), "q", candidates("a", "b", "c"), 10, 0.3)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Id)
	assert.Equal(t, "c", out[1].Id)
}

func TestLLMRerankerTruncatesToTopK(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{response: "[0.9, 0.8, 0.7, 0.6]"}, logger.NewNopLogger())

	out, err := r.Rerank(context.Background(), "q", candidates("a", "b", "c", "d"), 2, 0.0)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestLLMRerankerToleratesMarkdownFences(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{response: "Here are the scores:\n```json\n[0.4, 0.6]\n```"}, logger.NewNopLogger())

	out, err := r.Rerank(context.Background(), "q", candidates("a", "b"), 2, 0.0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Id)
}

func TestLLMRerankerScoreCountMismatchIsError(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{response: "[0.4]"}, logger.NewNopLogger())

	_, err := r.Rerank(context.Background(), "q", candidates("a", "b"), 2, 0.0)
	assert.Error(t, err)
}

func TestLLMRerankerProviderErrorPropagates(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{err: errors.New("model down")}, logger.NewNopLogger())

	_, err := r.Rerank(context.Background(), "q", candidates("a"), 1, 0.0)
	assert.Error(t, err)
}

func TestLLMRerankerClampsOutOfRangeScores(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{response: "[1.7, -0.3]"}, logger.NewNopLogger())

	out, err := r.Rerank(context.Background(), "q", candidates("a", "b"), 2, 0.0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 1.0, out[0].Similarity, 1e-9)
	assert.InDelta(t, 0.0, out[1].Similarity, 1e-9)
}

func TestLLMRerankerTruncatesLongPassagesInPrompt(t *testing.T) {
	f := &fakeLLM{response: "[0.5]"}
	r := NewLLMReranker(f, logger.NewNopLogger())
	r.MaxPassageChars = 10

	long := vectorstore.SearchResult{Id: "a", Content: "0123456789overflow"}
	_, err := r.Rerank(context.Background(), "q", []vectorstore.SearchResult{long}, 1, 0.0)
	require.NoError(t, err)
	assert.Contains(t, f.lastUser, "0123456789")
	assert.NotContains(t, f.lastUser, "overflow")
}

func TestNoopRerankerPreservesOrderAndBounds(t *testing.T) {
	in := candidates("a", "b", "c")
	out, err := NoopReranker{}.Rerank(context.Background(), "q", in, 2, 0.9)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Id)
	assert.Equal(t, "b", out[1].Id)
}

func TestLLMRerankerEmptyCandidates(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{}, logger.NewNopLogger())
	out, err := r.Rerank(context.Background(), "q", nil, 5, 0.0)
	require.NoError(t, err)
	assert.Empty(t, out)
}
