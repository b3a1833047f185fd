// Package rag coordinates the retrieval pipeline: query embedding, hybrid
// search, optional reranking, and context assembly under a character budget.
package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"second-brain-be/internal/pkg/logger"
	"second-brain-be/pkg/embedding"
	"second-brain-be/pkg/llm"
	"second-brain-be/pkg/rag/rerank"
	"second-brain-be/pkg/rag/retrieval"
	"second-brain-be/pkg/vectorstore"

	"github.com/google/uuid"
)

var (
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrRetrievalAborted means the query could not be embedded, so no
	// retrieval was possible at all. Degradable stages never return it.
	ErrRetrievalAborted = errors.New("retrieval aborted: query embedding failed")
)

// StageTimeouts bound each pipeline stage independently so one slow
// dependency cannot eat the whole request deadline.
type StageTimeouts struct {
	Embed  time.Duration
	LLM    time.Duration
	Search time.Duration
	Rerank time.Duration
}

func DefaultStageTimeouts() StageTimeouts {
	return StageTimeouts{
		Embed:  15 * time.Second,
		LLM:    12 * time.Second,
		Search: 10 * time.Second,
		Rerank: 20 * time.Second,
	}
}

// Query is one retrieval request.
type Query struct {
	UserId uuid.UUID
	Text   string

	// TopK overrides the user's configured TopK when > 0.
	TopK int

	// Threshold overrides the configured similarity threshold when > 0.
	Threshold float64

	// VectorStore overrides the configured store mode when non-empty
	// ("pgvector", "qdrant" or "both").
	VectorStore string
}

// Response is the assembled retrieval result.
type Response struct {
	QueryId uuid.UUID
	Chunks  []vectorstore.SearchResult

	// Context is the chunks joined for prompt injection, bounded by the
	// MaxContextChars setting.
	Context string

	// Degraded is true when an optional stage failed and the pipeline
	// continued on a reduced path.
	Degraded bool

	Provider   string
	Model      string
	TokensUsed int
	CacheHit   bool
}

// Orchestrator runs the retrieval pipeline.
type Orchestrator struct {
	registry  *embedding.Registry
	store     *vectorstore.CompositeStore
	retriever *retrieval.Retriever
	reranker  rerank.Reranker
	llm       llm.LLMProvider
	settings  SettingsProvider
	analytics *AnalyticsRecorder
	metrics   *Metrics
	timeouts  StageTimeouts
	log       logger.ILogger
}

type OrchestratorDeps struct {
	Registry  *embedding.Registry
	Store     *vectorstore.CompositeStore
	Retriever *retrieval.Retriever
	Reranker  rerank.Reranker

	// LLM powers HyDE and query expansion. Optional; when nil those
	// stages are skipped even if enabled in settings.
	LLM llm.LLMProvider

	Settings  SettingsProvider
	Analytics *AnalyticsRecorder
	Metrics   *Metrics
	Timeouts  StageTimeouts
	Log       logger.ILogger
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Reranker == nil {
		deps.Reranker = rerank.NoopReranker{}
	}
	if deps.Settings == nil {
		deps.Settings = StaticSettings{Settings: DefaultSettings()}
	}
	zero := StageTimeouts{}
	if deps.Timeouts == zero {
		deps.Timeouts = DefaultStageTimeouts()
	}
	return &Orchestrator{
		registry:  deps.Registry,
		store:     deps.Store,
		retriever: deps.Retriever,
		reranker:  deps.Reranker,
		llm:       deps.LLM,
		settings:  deps.Settings,
		analytics: deps.Analytics,
		metrics:   deps.Metrics,
		timeouts:  deps.Timeouts,
		log:       deps.Log,
	}
}

// Retrieve runs the full pipeline for one query.
func (o *Orchestrator) Retrieve(ctx context.Context, q Query) (*Response, error) {
	started := time.Now()

	query := strings.TrimSpace(q.Text)
	if query == "" {
		o.metrics.CountQuery("error")
		return nil, ErrEmptyQuery
	}

	settings, err := o.settings.ForUser(ctx, q.UserId)
	if err != nil {
		o.log.Warn("rag_orchestrator", "settings lookup failed, using defaults", map[string]interface{}{
			"user_id": q.UserId.String(),
			"error":   err.Error(),
		})
		settings = DefaultSettings()
	}
	topK := settings.TopK
	if q.TopK > 0 {
		topK = q.TopK
	}
	if q.Threshold > 0 {
		settings.SimilarityThreshold = q.Threshold
	}
	if q.VectorStore != "" {
		settings.VectorStore = q.VectorStore
	}

	telemetry := QueryTelemetry{
		QueryId: uuid.New(),
		UserId:  q.UserId,
		Query:   query,
	}
	degraded := false

	// Optional query rewriting. Failures here only narrow the search.
	variants, hydeUsed, expansionUsed := o.rewriteQuery(ctx, query, settings)
	telemetry.HydeUsed = hydeUsed
	telemetry.ExpansionUsed = expansionUsed

	embedStart := time.Now()
	queryVectors, provider, embedResult, err := o.embedQueries(ctx, query, variants, settings)
	telemetry.EmbedDuration = time.Since(embedStart)
	o.metrics.ObserveStage("embed", telemetry.EmbedDuration)
	if err != nil {
		o.metrics.CountQuery("error")
		o.log.Error("rag_orchestrator", "query embedding failed", map[string]interface{}{
			"user_id": q.UserId.String(),
			"error":   err.Error(),
		})
		return nil, errors.Join(ErrRetrievalAborted, err)
	}
	telemetry.Provider = provider.Name()
	telemetry.Model = embedResult.Model
	telemetry.TokensUsed = embedResult.TokensUsed
	telemetry.CacheHit = embedResult.CacheHit

	store := o.storeFor(settings)
	telemetry.VectorStore = store.Name()

	searchStart := time.Now()
	searchCtx, cancelSearch := context.WithTimeout(ctx, o.timeouts.Search)
	retrieved, err := o.retriever.Retrieve(searchCtx, store, retrieval.Params{
		UserId:              q.UserId,
		Query:               query,
		QueryVectors:        queryVectors,
		InitialCount:        settings.InitialRetrievalCount,
		SimilarityThreshold: settings.SimilarityThreshold,
		VectorWeight:        settings.VectorWeight,
		KeywordWeight:       settings.KeywordWeight,
		Hybrid:              settings.EnableHybrid,
	})
	cancelSearch()
	telemetry.SearchDuration = time.Since(searchStart)
	o.metrics.ObserveStage("search", telemetry.SearchDuration)
	if err != nil {
		o.metrics.CountQuery("error")
		return nil, err
	}
	degraded = degraded || retrieved.Degraded
	candidates := retrieved.Candidates
	telemetry.CandidateCount = len(candidates)
	o.metrics.ObserveRetrieved(len(candidates))

	rerankStart := time.Now()
	chunks, rerankUsed, rerankDegraded := o.rerankCandidates(ctx, query, candidates, topK, settings)
	telemetry.RerankDuration = time.Since(rerankStart)
	degraded = degraded || rerankDegraded
	telemetry.RerankUsed = rerankUsed

	assembled := assembleContext(chunks, settings.MaxContextChars)
	o.metrics.ObserveContextSize(len(assembled.context))

	resp := &Response{
		QueryId:    telemetry.QueryId,
		Chunks:     assembled.chunks,
		Context:    assembled.context,
		Degraded:   degraded,
		Provider:   telemetry.Provider,
		Model:      telemetry.Model,
		TokensUsed: telemetry.TokensUsed,
		CacheHit:   telemetry.CacheHit,
	}

	telemetry.ResultCount = len(resp.Chunks)
	if len(resp.Chunks) > 0 {
		telemetry.TopSimilarity = resp.Chunks[0].Similarity
	}
	telemetry.Degraded = degraded
	telemetry.TotalDuration = time.Since(started)

	switch {
	case len(resp.Chunks) == 0:
		o.metrics.CountQuery("empty")
	case degraded:
		o.metrics.CountQuery("degraded")
	default:
		o.metrics.CountQuery("ok")
	}

	if o.analytics != nil && settings.EnableAnalytics {
		o.analytics.RecordQuery(ctx, telemetry)
	}

	return resp, nil
}

// RecordFeedback forwards relevance feedback for an earlier query.
func (o *Orchestrator) RecordFeedback(ctx context.Context, queryId, userId uuid.UUID, helpful bool, category, comment string) {
	if o.analytics != nil {
		o.analytics.RecordFeedback(ctx, queryId, userId, helpful, category, comment)
	}
}

// IndexStats exposes per-user index health through the configured store.
func (o *Orchestrator) IndexStats(ctx context.Context, userId uuid.UUID) (*vectorstore.IndexStats, error) {
	return o.store.GetIndexStats(ctx, userId)
}

// storeFor applies a per-user vector store override on top of the composite
// default.
func (o *Orchestrator) storeFor(settings Settings) *vectorstore.CompositeStore {
	if settings.VectorStore == "" {
		return o.store
	}
	mode, err := vectorstore.ParseMode(settings.VectorStore)
	if err != nil {
		o.log.Warn("rag_orchestrator", "invalid vector store override, using default", map[string]interface{}{
			"override": settings.VectorStore,
		})
		return o.store
	}
	return o.store.WithMode(mode)
}

// rewriteQuery produces additional retrieval texts: a hypothetical answer
// (HyDE) and up to two reformulations. Any failure logs and skips the
// variant; the raw query always remains the primary signal.
func (o *Orchestrator) rewriteQuery(ctx context.Context, query string, settings Settings) (variants []string, hydeUsed, expansionUsed bool) {
	if o.llm == nil {
		return nil, false, false
	}

	if settings.EnableHyDE {
		llmCtx, cancel := context.WithTimeout(ctx, o.timeouts.LLM)
		hypothetical, err := o.llm.Generate(llmCtx,
			"Write a short factual passage (2-3 sentences) that would directly answer this question. Respond with the passage only.\n\nQuestion: "+query,
			llm.WithTemperature(0.3), llm.WithMaxTokens(160))
		cancel()
		if err != nil {
			o.log.Warn("rag_orchestrator", "hyde generation failed", map[string]interface{}{"error": err.Error()})
		} else if hypothetical = strings.TrimSpace(hypothetical); hypothetical != "" {
			variants = append(variants, hypothetical)
			hydeUsed = true
		}
	}

	if settings.EnableQueryExpansion {
		llmCtx, cancel := context.WithTimeout(ctx, o.timeouts.LLM)
		raw, err := o.llm.Generate(llmCtx,
			"Rewrite this search query two different ways, using synonyms and related terms. Respond with one rewrite per line, nothing else.\n\nQuery: "+query,
			llm.WithTemperature(0.7), llm.WithMaxTokens(120))
		cancel()
		if err != nil {
			o.log.Warn("rag_orchestrator", "query expansion failed", map[string]interface{}{"error": err.Error()})
		} else {
			for _, line := range strings.Split(raw, "\n") {
				line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
				if line != "" && !strings.EqualFold(line, query) {
					variants = append(variants, line)
					expansionUsed = true
				}
				if len(variants) >= 3 {
					break
				}
			}
		}
	}

	return variants, hydeUsed, expansionUsed
}

// embedQueries embeds the raw query plus any rewrite variants. The raw query
// embedding is mandatory; variant failures degrade silently.
func (o *Orchestrator) embedQueries(ctx context.Context, query string, variants []string, settings Settings) ([][]float32, embedding.Provider, *embedding.Result, error) {
	provider, err := o.resolveProvider(settings)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []embedding.Option{embedding.WithTaskType(embedding.TaskRetrievalQuery)}
	if settings.EmbeddingModel != "" {
		opts = append(opts, embedding.WithModel(settings.EmbeddingModel))
	}
	if settings.EmbeddingDimensions > 0 {
		opts = append(opts, embedding.WithDimensions(settings.EmbeddingDimensions))
	}

	embedCtx, cancel := context.WithTimeout(ctx, o.timeouts.Embed)
	defer cancel()

	result, err := provider.Generate(embedCtx, query, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	vectors := [][]float32{result.Vector}

	for _, variant := range variants {
		variantResult, err := provider.Generate(embedCtx, variant, opts...)
		if err != nil {
			o.log.Warn("rag_orchestrator", "variant embedding failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		vectors = append(vectors, variantResult.Vector)
	}

	return vectors, provider, result, nil
}

func (o *Orchestrator) resolveProvider(settings Settings) (embedding.Provider, error) {
	if settings.EmbeddingProvider != "" {
		return o.registry.Resolve(settings.EmbeddingProvider)
	}
	return o.registry.Default()
}

// rerankCandidates applies the configured reranker. A rerank failure falls
// back to the fused order.
func (o *Orchestrator) rerankCandidates(ctx context.Context, query string, candidates []vectorstore.SearchResult, topK int, settings Settings) (chunks []vectorstore.SearchResult, used, degraded bool) {
	if !settings.EnableRerank || len(candidates) == 0 {
		out, _ := rerank.NoopReranker{}.Rerank(ctx, query, candidates, topK, 0)
		return out, false, false
	}

	rerankCtx, cancel := context.WithTimeout(ctx, o.timeouts.Rerank)
	defer cancel()

	start := time.Now()
	reranked, err := o.reranker.Rerank(rerankCtx, query, candidates, topK, settings.MinRerankScore)
	o.metrics.ObserveStage("rerank", time.Since(start))
	if err != nil {
		o.log.Warn("rag_orchestrator", "rerank failed, keeping fused order", map[string]interface{}{
			"error": err.Error(),
		})
		out, _ := rerank.NoopReranker{}.Rerank(ctx, query, candidates, topK, 0)
		return out, false, true
	}
	return reranked, true, false
}

type assembledContext struct {
	chunks  []vectorstore.SearchResult
	context string
}

// assembleContext joins chunks into one prompt block, best ranked first,
// keeping whole chunks only. When the budget runs out lower ranked chunks
// are dropped entirely.
func assembleContext(chunks []vectorstore.SearchResult, maxChars int) assembledContext {
	const separator = "\n\n---\n\n"

	var b strings.Builder
	kept := make([]vectorstore.SearchResult, 0, len(chunks))

	for _, chunk := range chunks {
		block := formatChunk(chunk)
		extra := len(block)
		if b.Len() > 0 {
			extra += len(separator)
		}
		if maxChars > 0 && b.Len()+extra > maxChars {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(separator)
		}
		b.WriteString(block)
		kept = append(kept, chunk)
	}

	return assembledContext{chunks: kept, context: b.String()}
}

func formatChunk(chunk vectorstore.SearchResult) string {
	if chunk.NoteTitle == "" {
		return chunk.Content
	}
	return "[" + chunk.NoteTitle + "]\n" + chunk.Content
}
