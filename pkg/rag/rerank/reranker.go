// Package rerank rescoring of retrieval candidates by query relevance.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"second-brain-be/internal/pkg/logger"
	"second-brain-be/pkg/llm"
	"second-brain-be/pkg/vectorstore"
)

// Reranker rescores candidates against the query and returns the best topK.
// Implementations must not mutate the input slice.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []vectorstore.SearchResult, topK int, minScore float64) ([]vectorstore.SearchResult, error)
}

// NoopReranker passes candidates through in their existing order, truncated
// to topK. Used when reranking is disabled in settings.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, candidates []vectorstore.SearchResult, topK int, _ float64) ([]vectorstore.SearchResult, error) {
	out := make([]vectorstore.SearchResult, len(candidates))
	copy(out, candidates)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// LLMReranker scores all candidates in a single prompt, asking the model for
// one relevance score per passage. One call per query keeps latency and token
// cost flat regardless of candidate count.
type LLMReranker struct {
	provider llm.LLMProvider
	log      logger.ILogger

	// MaxPassageChars truncates each passage in the prompt.
	MaxPassageChars int
}

func NewLLMReranker(provider llm.LLMProvider, log logger.ILogger) *LLMReranker {
	return &LLMReranker{
		provider:        provider,
		log:             log,
		MaxPassageChars: 600,
	}
}

const rerankSystemPrompt = `You are a relevance judge. Given a query and a numbered list of passages, score how relevant each passage is to the query on a scale from 0.0 (irrelevant) to 1.0 (directly answers it).

Respond with ONLY a JSON array of numbers, one score per passage, in the same order. Example: [0.9, 0.2, 0.75]`

func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []vectorstore.SearchResult, topK int, minScore float64) ([]vectorstore.SearchResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	prompt := r.buildPrompt(query, candidates)
	raw, err := r.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: rerankSystemPrompt},
		{Role: "user", Content: prompt},
	}, llm.WithTemperature(0.0))
	if err != nil {
		return nil, fmt.Errorf("rerank call failed: %w", err)
	}

	scores, err := parseScores(raw, len(candidates))
	if err != nil {
		return nil, fmt.Errorf("rerank response unusable: %w", err)
	}

	scored := make([]vectorstore.SearchResult, 0, len(candidates))
	for i, c := range candidates {
		if scores[i] < minScore {
			continue
		}
		c.Similarity = scores[i]
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (r *LLMReranker) buildPrompt(query string, candidates []vectorstore.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nPassages:\n", query)
	for i, c := range candidates {
		passage := c.Content
		if r.MaxPassageChars > 0 && len(passage) > r.MaxPassageChars {
			passage = passage[:r.MaxPassageChars]
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, passage)
	}
	return b.String()
}

// parseScores extracts the JSON array from the model output, tolerating
// surrounding prose and markdown fences.
func parseScores(raw string, want int) ([]float64, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var scores []float64
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("invalid score array: %w", err)
	}
	if len(scores) != want {
		return nil, fmt.Errorf("got %d scores for %d passages", len(scores), want)
	}

	for i, s := range scores {
		if s < 0 {
			scores[i] = 0
		} else if s > 1 {
			scores[i] = 1
		}
	}
	return scores, nil
}
