// Package vectorstore persists chunk-level note embeddings and serves
// similarity search over them. Two backends exist (pgvector, Qdrant) plus a
// composite router that can write to both.
package vectorstore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NoteEmbedding is one indexed chunk of a note. The note fields are a
// denormalized snapshot taken at index time so search never joins back to the
// notes table; staleness is detected by comparing NoteUpdatedAt with the live
// note.
type NoteEmbedding struct {
	// Id is an opaque string, stable per (NoteId, ChunkIndex). Generated on
	// upsert when empty.
	Id         string
	NoteId     uuid.UUID
	UserId     uuid.UUID
	ChunkIndex int
	Content    string
	Embedding  []float32

	// Provenance of the vector.
	Provider string
	Model    string

	// Denormalized note snapshot.
	NoteTitle     string
	NoteTags      []string
	NoteSummary   string
	NoteUpdatedAt time.Time

	CreatedAt time.Time
}

// SearchResult is a transient scored match.
type SearchResult struct {
	Id          string
	NoteId      uuid.UUID
	Content     string
	NoteTitle   string
	NoteTags    []string
	NoteSummary string
	ChunkIndex  int
	// Similarity is cosine similarity, 0..1, higher is more similar.
	Similarity float64
	Metadata   map[string]string
}

// IndexStats is a per-user aggregate computed on demand.
type IndexStats struct {
	TotalEmbeddings   int64
	UniqueNotes       int64
	LastIndexedAt     *time.Time
	EmbeddingProvider string
	StoreProvider     string
}

// Store is the per-backend contract.
//
// Write operations return booleans: any backend error is caught at the store
// boundary, logged with the identifying key, and reported as false so callers
// treat it as "operation did not complete" without crashing. Deletes are
// idempotent, removing zero rows is success.
//
// Read operations return errors so the composite router can distinguish a
// failed backend from an empty result and fall back.
type Store interface {
	Name() string

	Upsert(ctx context.Context, embedding *NoteEmbedding) bool
	UpsertBatch(ctx context.Context, embeddings []*NoteEmbedding) bool

	// Search returns results for userId's embeddings only, cosine similarity
	// descending, at or above threshold, at most topK.
	Search(ctx context.Context, queryVector []float32, userId uuid.UUID, topK int, similarityThreshold float64) ([]SearchResult, error)

	DeleteByNoteId(ctx context.Context, noteId uuid.UUID) bool
	DeleteByUserId(ctx context.Context, userId uuid.UUID) bool

	GetIndexStats(ctx context.Context, userId uuid.UUID) (*IndexStats, error)

	// Staleness probes used by the indexing collaborator to decide which
	// notes need re-embedding without re-reading full content.
	GetNoteUpdatedAt(ctx context.Context, noteId uuid.UUID) (*time.Time, error)
	GetIndexedNoteIds(ctx context.Context, userId uuid.UUID) ([]uuid.UUID, error)
	GetIndexedNotesWithTimestamps(ctx context.Context, userId uuid.UUID) (map[uuid.UUID]time.Time, error)
}

// KeywordSearcher serves the sparse leg of hybrid retrieval. Scores are
// backend-specific ranks, not cosine similarities; the fusion layer
// normalizes them before weighting.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, query string, userId uuid.UUID, topK int) ([]SearchResult, error)
}
