package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"second-brain-be/internal/pkg/logger"
	"second-brain-be/pkg/embedding"
	"second-brain-be/pkg/events"
	"second-brain-be/pkg/llm"
	"second-brain-be/pkg/rag/retrieval"
	"second-brain-be/pkg/vectorstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider returns a fixed vector for any text.
type stubProvider struct {
	name   string
	fail   bool
	tokens int
	calls  int
	mu     sync.Mutex
	texts  []string
}

func (s *stubProvider) Name() string      { return s.name }
func (s *stubProvider) IsAvailable() bool { return !s.fail }

func (s *stubProvider) Generate(_ context.Context, text string, _ ...embedding.Option) (*embedding.Result, error) {
	s.mu.Lock()
	s.calls++
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	if s.fail {
		return nil, &embedding.ProviderError{Provider: s.name, Message: "unavailable"}
	}
	return &embedding.Result{Vector: []float32{1, 0}, Model: "stub-model", Dimensions: 2, TokensUsed: s.tokens}, nil
}

func (s *stubProvider) GenerateBatch(ctx context.Context, texts []string, opts ...embedding.Option) ([]*embedding.Result, error) {
	out := make([]*embedding.Result, len(texts))
	for i, t := range texts {
		r, err := s.Generate(ctx, t, opts...)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// stubStore serves canned search results and records calls.
type stubStore struct {
	results       []vectorstore.SearchResult
	searchErr     error
	searchCalls   int
	lastThreshold float64
	mu            sync.Mutex
}

func (s *stubStore) Name() string { return "stub" }

func (s *stubStore) Search(_ context.Context, _ []float32, _ uuid.UUID, topK int, threshold float64) ([]vectorstore.SearchResult, error) {
	s.mu.Lock()
	s.searchCalls++
	s.lastThreshold = threshold
	s.mu.Unlock()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if topK > 0 && len(s.results) > topK {
		return s.results[:topK], nil
	}
	return s.results, nil
}

func (s *stubStore) Upsert(context.Context, *vectorstore.NoteEmbedding) bool        { return true }
func (s *stubStore) UpsertBatch(context.Context, []*vectorstore.NoteEmbedding) bool { return true }
func (s *stubStore) DeleteByNoteId(context.Context, uuid.UUID) bool                 { return true }
func (s *stubStore) DeleteByUserId(context.Context, uuid.UUID) bool                 { return true }
func (s *stubStore) GetIndexStats(context.Context, uuid.UUID) (*vectorstore.IndexStats, error) {
	return &vectorstore.IndexStats{TotalEmbeddings: 42}, nil
}
func (s *stubStore) GetNoteUpdatedAt(context.Context, uuid.UUID) (*time.Time, error) {
	return nil, nil
}
func (s *stubStore) GetIndexedNoteIds(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}
func (s *stubStore) GetIndexedNotesWithTimestamps(context.Context, uuid.UUID) (map[uuid.UUID]time.Time, error) {
	return nil, nil
}

type stubReranker struct {
	err   error
	delay time.Duration
	calls int
}

func (s *stubReranker) Rerank(_ context.Context, _ string, candidates []vectorstore.SearchResult, topK int, _ float64) ([]vectorstore.SearchResult, error) {
	s.calls++
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	// Reverse order to make rerank influence observable.
	out := make([]vectorstore.SearchResult, 0, len(candidates))
	for i := len(candidates) - 1; i >= 0; i-- {
		out = append(out, candidates[i])
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Chat(context.Context, []llm.Message, ...llm.Option) (string, error) {
	return s.response, s.err
}
func (s *stubLLM) Generate(context.Context, string, ...llm.Option) (string, error) {
	return s.response, s.err
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturingPublisher) Publish(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func result(id string, similarity float64, content string) vectorstore.SearchResult {
	return vectorstore.SearchResult{Id: id, NoteId: uuid.New(), Content: content, Similarity: similarity}
}

type fixture struct {
	provider  *stubProvider
	store     *stubStore
	reranker  *stubReranker
	publisher *capturingPublisher
	settings  Settings
	llm       llm.LLMProvider
}

func newFixture() *fixture {
	return &fixture{
		provider: &stubProvider{name: "stub", tokens: 7},
		store: &stubStore{results: []vectorstore.SearchResult{
			result("a", 0.9, "alpha content"),
			result("b", 0.8, "beta content"),
			result("c", 0.7, "gamma content"),
		}},
		reranker:  &stubReranker{},
		publisher: &capturingPublisher{},
		settings:  DefaultSettings(),
	}
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	log := logger.NewNopLogger()

	registry := embedding.NewRegistry()
	registry.Register(f.provider)

	store := vectorstore.NewCompositeStore(f.store, nil, vectorstore.ModePgVector, log)

	return NewOrchestrator(OrchestratorDeps{
		Registry:  registry,
		Store:     store,
		Retriever: retrieval.NewRetriever(nil, log),
		Reranker:  f.reranker,
		LLM:       f.llm,
		Settings:  StaticSettings{Settings: f.settings},
		Analytics: NewAnalyticsRecorder(f.publisher, log, f.settings.EnableAnalytics),
		Log:       log,
	})
}

func TestRetrieveReturnsRankedChunks(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	resp, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "what is alpha"})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 3)
	assert.Equal(t, "a", resp.Chunks[0].Id)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "stub", resp.Provider)
	assert.Equal(t, 7, resp.TokensUsed)
	assert.NotEqual(t, uuid.Nil, resp.QueryId)
	assert.Contains(t, resp.Context, "alpha content")
}

func TestRetrieveAppliesThresholdOverride(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	_, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "alpha", Threshold: 0.85})
	require.NoError(t, err)
	assert.InDelta(t, 0.85, f.store.lastThreshold, 1e-9)
}

func TestRetrieveStoreOverrideToUnwiredBackendKeepsDefault(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	// The fixture wires pgvector only; a qdrant override must not route
	// reads into the missing backend.
	resp, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "alpha", VectorStore: "qdrant"})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 3)
	assert.Equal(t, 1, f.store.searchCalls)
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	_, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRetrieveEmbeddingFailureAborts(t *testing.T) {
	f := newFixture()
	f.provider.fail = true
	o := f.orchestrator(t)

	_, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	assert.ErrorIs(t, err, ErrRetrievalAborted)
}

func TestRetrieveRerankReorders(t *testing.T) {
	f := newFixture()
	f.settings.EnableRerank = true
	o := f.orchestrator(t)

	resp, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)
	require.Equal(t, 1, f.reranker.calls)
	assert.Equal(t, "c", resp.Chunks[0].Id)
	assert.False(t, resp.Degraded)
}

func TestRetrieveRerankFailureFallsBackToFusedOrder(t *testing.T) {
	f := newFixture()
	f.settings.EnableRerank = true
	f.reranker.err = errors.New("model down")
	o := f.orchestrator(t)

	resp, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Chunks[0].Id)
	assert.True(t, resp.Degraded)
}

func TestRetrieveRerankDisabledSkipsReranker(t *testing.T) {
	f := newFixture()
	f.settings.EnableRerank = false
	o := f.orchestrator(t)

	_, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, 0, f.reranker.calls)
}

func TestRetrieveTopKOverride(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	resp, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q", TopK: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Chunks, 1)
}

func TestRetrieveContextBudgetDropsWholeChunks(t *testing.T) {
	f := newFixture()
	f.store.results = []vectorstore.SearchResult{
		result("a", 0.9, strings.Repeat("x", 100)),
		result("b", 0.8, strings.Repeat("y", 100)),
		result("c", 0.7, strings.Repeat("z", 100)),
	}
	f.settings.MaxContextChars = 120
	o := f.orchestrator(t)

	resp, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "a", resp.Chunks[0].Id)
	assert.NotContains(t, resp.Context, "y")
	assert.LessOrEqual(t, len(resp.Context), 120)
}

func TestRetrieveHyDEAddsVariantEmbedding(t *testing.T) {
	f := newFixture()
	f.settings.EnableHyDE = true
	f.llm = &stubLLM{response: "A hypothetical answer passage."}
	o := f.orchestrator(t)

	_, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.provider.calls)
	assert.Contains(t, f.provider.texts, "A hypothetical answer passage.")
	assert.Equal(t, 2, f.store.searchCalls, "one dense search per query vector")
}

func TestRetrieveHyDEFailureDegradesGracefully(t *testing.T) {
	f := newFixture()
	f.settings.EnableHyDE = true
	f.llm = &stubLLM{err: errors.New("llm down")}
	o := f.orchestrator(t)

	resp, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.calls, "only the raw query is embedded")
	assert.Len(t, resp.Chunks, 3)
}

func TestRetrieveQueryExpansionParsesLines(t *testing.T) {
	f := newFixture()
	f.settings.EnableQueryExpansion = true
	f.llm = &stubLLM{response: "1. first rewrite\n2. second rewrite"}
	o := f.orchestrator(t)

	_, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.provider.calls)
	assert.Contains(t, f.provider.texts, "first rewrite")
	assert.Contains(t, f.provider.texts, "second rewrite")
}

func TestRetrievePublishesTelemetry(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	resp, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)

	require.Len(t, f.publisher.events, 1)
	e := f.publisher.events[0]
	assert.Equal(t, events.TypeRagQueryCompleted, e.EventType())
	assert.Equal(t, resp.QueryId.String(), e.Payload()["query_id"])
	assert.Equal(t, 3, e.Payload()["result_count"])
}

func TestRetrieveTelemetryIncludesRerankDuration(t *testing.T) {
	f := newFixture()
	f.settings.EnableRerank = true
	f.reranker.delay = 20 * time.Millisecond
	o := f.orchestrator(t)

	_, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)

	require.Len(t, f.publisher.events, 1)
	ms, ok := f.publisher.events[0].Payload()["rerank_duration_ms"].(int64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, ms, int64(10))
}

func TestRetrieveAnalyticsDisabledPublishesNothing(t *testing.T) {
	f := newFixture()
	f.settings.EnableAnalytics = false
	o := f.orchestrator(t)

	_, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)
	assert.Empty(t, f.publisher.events)
}

func TestRecordFeedbackPublishesEvent(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	o.RecordFeedback(context.Background(), uuid.New(), uuid.New(), true, "", "spot on")
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeRagFeedback, f.publisher.events[0].EventType())
	assert.Equal(t, "spot on", f.publisher.events[0].Payload()["comment"])
}

func TestRetrieveEmptyResultsIsNotAnError(t *testing.T) {
	f := newFixture()
	f.store.results = nil
	o := f.orchestrator(t)

	resp, err := o.Retrieve(context.Background(), Query{UserId: uuid.New(), Text: "q"})
	require.NoError(t, err)
	assert.Empty(t, resp.Chunks)
	assert.Empty(t, resp.Context)
}

func TestIndexStatsDelegatesToStore(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	stats, err := o.IndexStats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.TotalEmbeddings)
}
