package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store used to exercise the contract without a
// backend. failReads/failWrites simulate a broken backend.
type memStore struct {
	mu         sync.Mutex
	name       string
	rows       map[string]*NoteEmbedding
	failReads  bool
	failWrites bool

	searchCalls int
	upsertCalls int
}

func newMemStore(name string) *memStore {
	return &memStore{name: name, rows: make(map[string]*NoteEmbedding)}
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) Upsert(ctx context.Context, e *NoteEmbedding) bool {
	return m.UpsertBatch(ctx, []*NoteEmbedding{e})
}

func (m *memStore) UpsertBatch(ctx context.Context, embeddings []*NoteEmbedding) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.failWrites {
		return false
	}
	for _, e := range embeddings {
		if e.Id == "" {
			e.Id = uuid.NewString()
		}
		clone := *e
		m.rows[e.Id] = &clone
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *memStore) Search(ctx context.Context, queryVector []float32, userId uuid.UUID, topK int, similarityThreshold float64) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	if m.failReads {
		return nil, errors.New(m.name + ": backend unavailable")
	}

	var results []SearchResult
	for _, e := range m.rows {
		if e.UserId != userId {
			continue
		}
		sim := cosineSimilarity(queryVector, e.Embedding)
		if sim < similarityThreshold {
			continue
		}
		results = append(results, SearchResult{
			Id:         e.Id,
			NoteId:     e.NoteId,
			Content:    e.Content,
			NoteTitle:  e.NoteTitle,
			ChunkIndex: e.ChunkIndex,
			Similarity: sim,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *memStore) DeleteByNoteId(ctx context.Context, noteId uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return false
	}
	for id, e := range m.rows {
		if e.NoteId == noteId {
			delete(m.rows, id)
		}
	}
	return true
}

func (m *memStore) DeleteByUserId(ctx context.Context, userId uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return false
	}
	for id, e := range m.rows {
		if e.UserId == userId {
			delete(m.rows, id)
		}
	}
	return true
}

func (m *memStore) GetIndexStats(ctx context.Context, userId uuid.UUID) (*IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errors.New(m.name + ": backend unavailable")
	}

	stats := &IndexStats{StoreProvider: m.name}
	notes := make(map[uuid.UUID]struct{})
	for _, e := range m.rows {
		if e.UserId != userId {
			continue
		}
		stats.TotalEmbeddings++
		notes[e.NoteId] = struct{}{}
		if stats.LastIndexedAt == nil || e.CreatedAt.After(*stats.LastIndexedAt) {
			t := e.CreatedAt
			stats.LastIndexedAt = &t
		}
		stats.EmbeddingProvider = e.Provider
	}
	stats.UniqueNotes = int64(len(notes))
	return stats, nil
}

func (m *memStore) GetNoteUpdatedAt(ctx context.Context, noteId uuid.UUID) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errors.New(m.name + ": backend unavailable")
	}
	for _, e := range m.rows {
		if e.NoteId == noteId {
			t := e.NoteUpdatedAt
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetIndexedNoteIds(ctx context.Context, userId uuid.UUID) ([]uuid.UUID, error) {
	stamps, err := m.GetIndexedNotesWithTimestamps(ctx, userId)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(stamps))
	for id := range stamps {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) GetIndexedNotesWithTimestamps(ctx context.Context, userId uuid.UUID) (map[uuid.UUID]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errors.New(m.name + ": backend unavailable")
	}
	stamps := make(map[uuid.UUID]time.Time)
	for _, e := range m.rows {
		if e.UserId == userId {
			if existing, ok := stamps[e.NoteId]; !ok || e.NoteUpdatedAt.After(existing) {
				stamps[e.NoteId] = e.NoteUpdatedAt
			}
		}
	}
	return stamps, nil
}

func (m *memStore) countForNote(noteId uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.rows {
		if e.NoteId == noteId {
			n++
		}
	}
	return n
}
