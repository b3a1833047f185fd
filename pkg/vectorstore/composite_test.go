package vectorstore

import (
	"context"
	"testing"
	"time"

	"second-brain-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingFor(userId, noteId uuid.UUID, chunk int, vec []float32) *NoteEmbedding {
	return &NoteEmbedding{
		NoteId:        noteId,
		UserId:        userId,
		ChunkIndex:    chunk,
		Content:       "chunk content",
		Embedding:     vec,
		Provider:      "fake",
		Model:         "fake-model",
		NoteTitle:     "a note",
		NoteUpdatedAt: time.Now(),
		CreatedAt:     time.Now(),
	}
}

func newComposite(mode Mode) (*CompositeStore, *memStore, *memStore) {
	pg := newMemStore("pgvector")
	qd := newMemStore("qdrant")
	return NewCompositeStore(pg, qd, mode, logger.NewNopLogger()), pg, qd
}

func TestCompositeBothModeWritesToBothBackends(t *testing.T) {
	c, pg, qd := newComposite(ModeBoth)
	userId, noteId := uuid.New(), uuid.New()

	ok := c.UpsertBatch(context.Background(), []*NoteEmbedding{
		embeddingFor(userId, noteId, 0, []float32{1, 0}),
	})

	require.True(t, ok)
	assert.Len(t, pg.rows, 1)
	assert.Len(t, qd.rows, 1)
}

func TestCompositeBothModeWriteFailureIsAggregateButBothAttempted(t *testing.T) {
	c, pg, qd := newComposite(ModeBoth)
	pg.failWrites = true
	userId, noteId := uuid.New(), uuid.New()

	ok := c.Upsert(context.Background(), embeddingFor(userId, noteId, 0, []float32{1, 0}))

	assert.False(t, ok)
	// The healthy backend still received the write, no short-circuit.
	assert.Len(t, qd.rows, 1)
}

func TestCompositeReadsPreferQdrant(t *testing.T) {
	c, pg, qd := newComposite(ModeBoth)
	userId, noteId := uuid.New(), uuid.New()
	c.Upsert(context.Background(), embeddingFor(userId, noteId, 0, []float32{1, 0}))

	_, err := c.Search(context.Background(), []float32{1, 0}, userId, 5, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, qd.searchCalls)
	assert.Equal(t, 0, pg.searchCalls)
}

func TestCompositeFallbackInBothMode(t *testing.T) {
	c, pg, qd := newComposite(ModeBoth)
	userId, noteId := uuid.New(), uuid.New()
	c.Upsert(context.Background(), embeddingFor(userId, noteId, 0, []float32{1, 0}))

	qd.failReads = true

	results, err := c.Search(context.Background(), []float32{1, 0}, userId, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, pg.searchCalls)
}

func TestCompositeNoFallbackInSingleBackendMode(t *testing.T) {
	c, _, qd := newComposite(ModeQdrant)
	qd.failReads = true

	_, err := c.Search(context.Background(), []float32{1, 0}, uuid.New(), 5, 0)
	assert.Error(t, err)
}

func TestCompositeWithModeOverride(t *testing.T) {
	c, pg, qd := newComposite(ModeBoth)
	userId := uuid.New()

	override := c.WithMode(ModePgVector)
	_, err := override.Search(context.Background(), []float32{1, 0}, userId, 5, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, pg.searchCalls)
	assert.Equal(t, 0, qd.searchCalls)
	// The original keeps its configured mode.
	assert.Equal(t, ModeBoth, c.Mode())
}

func TestCompositeWithModeRefusesUnwiredBackend(t *testing.T) {
	pg := newMemStore("pgvector")
	c := NewCompositeStore(pg, nil, ModePgVector, logger.NewNopLogger())
	userId, noteId := uuid.New(), uuid.New()
	c.Upsert(context.Background(), embeddingFor(userId, noteId, 0, []float32{1, 0}))

	for _, mode := range []Mode{ModeQdrant, ModeBoth} {
		override := c.WithMode(mode)
		assert.Equal(t, ModePgVector, override.Mode(), string(mode))

		results, err := override.Search(context.Background(), []float32{1, 0}, userId, 5, 0)
		require.NoError(t, err, string(mode))
		assert.Len(t, results, 1, string(mode))
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "pgvector", want: ModePgVector},
		{in: "qdrant", want: ModeQdrant},
		{in: "both", want: ModeBoth},
		{in: "pinecone", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestSearchScopedIsolation(t *testing.T) {
	store := newMemStore("mem")
	userA, userB := uuid.New(), uuid.New()
	ctx := context.Background()

	store.Upsert(ctx, embeddingFor(userA, uuid.New(), 0, []float32{1, 0}))
	store.Upsert(ctx, embeddingFor(userB, uuid.New(), 0, []float32{1, 0}))

	results, err := store.Search(ctx, []float32{1, 0}, userA, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchThresholdMonotonicity(t *testing.T) {
	store := newMemStore("mem")
	userId := uuid.New()
	ctx := context.Background()

	vectors := [][]float32{{1, 0}, {0.9, 0.4}, {0.5, 0.8}, {0, 1}}
	for i, v := range vectors {
		store.Upsert(ctx, embeddingFor(userId, uuid.New(), i, v))
	}

	prev := len(vectors) + 1
	for _, threshold := range []float64{0, 0.25, 0.5, 0.75, 0.95, 1.0} {
		results, err := store.Search(ctx, []float32{1, 0}, userId, 10, threshold)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), prev, "raising threshold must not grow results")
		prev = len(results)
	}
}

func TestSearchTopKBound(t *testing.T) {
	store := newMemStore("mem")
	userId := uuid.New()
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		store.Upsert(ctx, embeddingFor(userId, uuid.New(), i, []float32{1, float32(i) * 0.01}))
	}

	results, err := store.Search(ctx, []float32{1, 0}, userId, 3, 0)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchEmptyCorpus(t *testing.T) {
	store := newMemStore("mem")

	results, err := store.Search(context.Background(), []float32{1, 0}, uuid.New(), 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteByNoteIdIdempotent(t *testing.T) {
	store := newMemStore("mem")
	userId, noteId := uuid.New(), uuid.New()
	ctx := context.Background()

	store.Upsert(ctx, embeddingFor(userId, noteId, 0, []float32{1, 0}))

	assert.True(t, store.DeleteByNoteId(ctx, noteId))
	assert.True(t, store.DeleteByNoteId(ctx, noteId))
	assert.Equal(t, 0, store.countForNote(noteId))
}
