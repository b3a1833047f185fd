package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"second-brain-be/internal/pkg/logger"
	"second-brain-be/pkg/vectorstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSearchStore serves canned dense results.
type fakeSearchStore struct {
	results []vectorstore.SearchResult
	err     error
	calls   int
}

func (f *fakeSearchStore) Name() string { return "fake" }

func (f *fakeSearchStore) Search(ctx context.Context, queryVector []float32, userId uuid.UUID, topK int, threshold float64) ([]vectorstore.SearchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if topK > 0 && len(f.results) > topK {
		return f.results[:topK], nil
	}
	return f.results, nil
}

func (f *fakeSearchStore) Upsert(ctx context.Context, e *vectorstore.NoteEmbedding) bool { return true }
func (f *fakeSearchStore) UpsertBatch(ctx context.Context, es []*vectorstore.NoteEmbedding) bool {
	return true
}
func (f *fakeSearchStore) DeleteByNoteId(ctx context.Context, noteId uuid.UUID) bool { return true }
func (f *fakeSearchStore) DeleteByUserId(ctx context.Context, userId uuid.UUID) bool { return true }
func (f *fakeSearchStore) GetIndexStats(ctx context.Context, userId uuid.UUID) (*vectorstore.IndexStats, error) {
	return &vectorstore.IndexStats{}, nil
}
func (f *fakeSearchStore) GetNoteUpdatedAt(ctx context.Context, noteId uuid.UUID) (*time.Time, error) {
	return nil, nil
}
func (f *fakeSearchStore) GetIndexedNoteIds(ctx context.Context, userId uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}
func (f *fakeSearchStore) GetIndexedNotesWithTimestamps(ctx context.Context, userId uuid.UUID) (map[uuid.UUID]time.Time, error) {
	return nil, nil
}

type fakeKeywordSearcher struct {
	results []vectorstore.SearchResult
	err     error
	calls   int
}

func (f *fakeKeywordSearcher) KeywordSearch(ctx context.Context, query string, userId uuid.UUID, topK int) ([]vectorstore.SearchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func chunk(id string, similarity float64) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		Id:         id,
		NoteId:     uuid.New(),
		Content:    "content of " + id,
		Similarity: similarity,
	}
}

func defaultParams() Params {
	return Params{
		UserId:        uuid.New(),
		Query:         "search terms",
		QueryVectors:  [][]float32{{1, 0}},
		InitialCount:  10,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
		Hybrid:        true,
	}
}

func TestFusionDedupesChunksInBothLists(t *testing.T) {
	shared := chunk("shared", 0.9)
	store := &fakeSearchStore{results: []vectorstore.SearchResult{shared, chunk("dense-only", 0.8)}}
	kw := &fakeKeywordSearcher{results: []vectorstore.SearchResult{
		{Id: "shared", Content: shared.Content, Similarity: 0.5},
		chunk("sparse-only", 0.2),
	}}
	r := NewRetriever(kw, logger.NewNopLogger())

	res, err := r.Retrieve(context.Background(), store, defaultParams())
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, c := range res.Candidates {
		seen[c.Id]++
	}
	assert.Equal(t, 1, seen["shared"], "chunk in both lists must appear exactly once")
	assert.Len(t, res.Candidates, 3)
}

func TestFusionCombinesWeightedScores(t *testing.T) {
	store := &fakeSearchStore{results: []vectorstore.SearchResult{chunk("both", 0.8)}}
	kw := &fakeKeywordSearcher{results: []vectorstore.SearchResult{{Id: "both", Similarity: 0.04}}}
	r := NewRetriever(kw, logger.NewNopLogger())

	res, err := r.Retrieve(context.Background(), store, defaultParams())
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	// Keyword rank normalizes to 1.0 (it is the max): 0.7*0.8 + 0.3*1.0
	assert.InDelta(t, 0.86, res.Candidates[0].Similarity, 1e-9)
}

func TestFusionTieBreakPrefersVectorScore(t *testing.T) {
	// Both candidates get combined score 0.7: one from pure vector, one
	// from pure keyword. The vector match must rank first.
	store := &fakeSearchStore{results: []vectorstore.SearchResult{chunk("semantic", 1.0)}}
	kw := &fakeKeywordSearcher{results: []vectorstore.SearchResult{{Id: "keyword", Similarity: 0.9}}}
	r := NewRetriever(kw, logger.NewNopLogger())

	p := defaultParams()
	p.VectorWeight = 0.7
	p.KeywordWeight = 0.7

	res, err := r.Retrieve(context.Background(), store, p)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "semantic", res.Candidates[0].Id)
}

func TestFusionBoundedByInitialCount(t *testing.T) {
	var dense []vectorstore.SearchResult
	for i := 0; i < 20; i++ {
		dense = append(dense, chunk(uuid.NewString(), 0.9-float64(i)*0.01))
	}
	store := &fakeSearchStore{results: dense}
	r := NewRetriever(&fakeKeywordSearcher{}, logger.NewNopLogger())

	p := defaultParams()
	p.InitialCount = 5

	res, err := r.Retrieve(context.Background(), store, p)
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 5)
}

func TestKeywordLegFailureIsBestEffort(t *testing.T) {
	store := &fakeSearchStore{results: []vectorstore.SearchResult{chunk("dense", 0.9)}}
	kw := &fakeKeywordSearcher{err: errors.New("fts offline")}
	r := NewRetriever(kw, logger.NewNopLogger())

	res, err := r.Retrieve(context.Background(), store, defaultParams())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Len(t, res.Candidates, 1)
}

func TestDenseLegFailureIsBestEffort(t *testing.T) {
	store := &fakeSearchStore{err: errors.New("vector store offline")}
	kw := &fakeKeywordSearcher{results: []vectorstore.SearchResult{chunk("sparse", 0.4)}}
	r := NewRetriever(kw, logger.NewNopLogger())

	res, err := r.Retrieve(context.Background(), store, defaultParams())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Len(t, res.Candidates, 1)
}

func TestBothLegsFailingReturnsError(t *testing.T) {
	store := &fakeSearchStore{err: errors.New("vector store offline")}
	kw := &fakeKeywordSearcher{err: errors.New("fts offline")}
	r := NewRetriever(kw, logger.NewNopLogger())

	_, err := r.Retrieve(context.Background(), store, defaultParams())
	assert.Error(t, err)
}

func TestHybridDisabledSkipsKeywordLeg(t *testing.T) {
	store := &fakeSearchStore{results: []vectorstore.SearchResult{chunk("dense", 0.9)}}
	kw := &fakeKeywordSearcher{results: []vectorstore.SearchResult{chunk("sparse", 0.5)}}
	r := NewRetriever(kw, logger.NewNopLogger())

	p := defaultParams()
	p.Hybrid = false

	res, err := r.Retrieve(context.Background(), store, p)
	require.NoError(t, err)
	assert.Equal(t, 0, kw.calls)
	assert.Len(t, res.Candidates, 1)
}

func TestMultiVectorUnionKeepsBestScore(t *testing.T) {
	// The same chunk surfaces for two query vectors; the union keeps one
	// entry with the best similarity.
	store := &fakeSearchStore{results: []vectorstore.SearchResult{chunk("hit", 0.8)}}
	r := NewRetriever(&fakeKeywordSearcher{}, logger.NewNopLogger())

	p := defaultParams()
	p.QueryVectors = [][]float32{{1, 0}, {0, 1}}
	p.Hybrid = false

	res, err := r.Retrieve(context.Background(), store, p)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
	assert.Len(t, res.Candidates, 1)
}
