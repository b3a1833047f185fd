package vectorstore

import (
	"context"
	"fmt"
	"time"

	"second-brain-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// scrollPageSize bounds index-wide scans (stats, staleness probes).
const scrollPageSize = 10000

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	VectorSize uint64
	APIKey     string
	UseTLS     bool
}

// QdrantStore implements Store backed by a Qdrant collection. Chunk metadata
// lives in the point payload; user and note scoping use payload filters.
type QdrantStore struct {
	client *qdrant.Client
	cfg    *QdrantConfig
	log    logger.ILogger
}

// NewQdrantStore creates the store, ensuring the target collection exists.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig, log logger.ILogger) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "note_embeddings"
	}
	if cfg.VectorSize == 0 {
		cfg.VectorSize = 768
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg, log: log}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *QdrantStore) Name() string { return "qdrant" }

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

func userFilter(userId uuid.UUID) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("user_id", userId.String())},
	}
}

func noteFilter(noteId uuid.UUID) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("note_id", noteId.String())},
	}
}

func (s *QdrantStore) toPoint(e *NoteEmbedding) *qdrant.PointStruct {
	tags := make([]interface{}, len(e.NoteTags))
	for i, tag := range e.NoteTags {
		tags[i] = tag
	}

	payload := map[string]interface{}{
		"note_id":         e.NoteId.String(),
		"user_id":         e.UserId.String(),
		"chunk_index":     int64(e.ChunkIndex),
		"content":         e.Content,
		"provider":        e.Provider,
		"model":           e.Model,
		"note_title":      e.NoteTitle,
		"note_tags":       tags,
		"note_summary":    e.NoteSummary,
		"note_updated_at": e.NoteUpdatedAt.Format(time.RFC3339Nano),
		"created_at":      e.CreatedAt.Format(time.RFC3339Nano),
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(e.Id),
		Vectors: qdrant.NewVectors(e.Embedding...),
		Payload: qdrant.NewValueMap(payload),
	}
}

func (s *QdrantStore) Upsert(ctx context.Context, embedding *NoteEmbedding) bool {
	return s.UpsertBatch(ctx, []*NoteEmbedding{embedding})
}

func (s *QdrantStore) UpsertBatch(ctx context.Context, embeddings []*NoteEmbedding) bool {
	if len(embeddings) == 0 {
		return true
	}

	points := make([]*qdrant.PointStruct, len(embeddings))
	for i, e := range embeddings {
		if e.Id == "" {
			e.Id = uuid.NewString()
		}
		points[i] = s.toPoint(e)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		s.log.Error("qdrant_store", "batch upsert failed", map[string]interface{}{
			"count":   len(embeddings),
			"note_id": embeddings[0].NoteId.String(),
			"error":   err.Error(),
		})
		return false
	}
	return true
}

func (s *QdrantStore) Search(ctx context.Context, queryVector []float32, userId uuid.UUID, topK int, similarityThreshold float64) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	limit := uint64(topK)
	// Qdrant reports cosine similarity directly, so the threshold needs no
	// distance-space conversion.
	threshold := float32(similarityThreshold)

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         userFilter(userId),
		Limit:          &limit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		res := SearchResult{
			Id:         p.Id.GetUuid(),
			Similarity: float64(p.Score),
			Metadata:   make(map[string]string),
		}
		fillFromPayload(&res, p.Payload)
		results = append(results, res)
	}
	return results, nil
}

func fillFromPayload(res *SearchResult, payload map[string]*qdrant.Value) {
	if payload == nil {
		return
	}
	if v, ok := payload["note_id"]; ok {
		if id, err := uuid.Parse(v.GetStringValue()); err == nil {
			res.NoteId = id
		}
	}
	if v, ok := payload["content"]; ok {
		res.Content = v.GetStringValue()
	}
	if v, ok := payload["note_title"]; ok {
		res.NoteTitle = v.GetStringValue()
	}
	if v, ok := payload["note_summary"]; ok {
		res.NoteSummary = v.GetStringValue()
	}
	if v, ok := payload["chunk_index"]; ok {
		res.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload["note_tags"]; ok {
		if list := v.GetListValue(); list != nil {
			for _, item := range list.Values {
				res.NoteTags = append(res.NoteTags, item.GetStringValue())
			}
		}
	}
	for _, key := range []string{"provider", "model", "created_at"} {
		if v, ok := payload[key]; ok {
			res.Metadata[key] = v.GetStringValue()
		}
	}
}

func (s *QdrantStore) deleteByFilter(ctx context.Context, filter *qdrant.Filter, key, value string) bool {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		s.log.Error("qdrant_store", "delete failed", map[string]interface{}{
			key:     value,
			"error": err.Error(),
		})
		return false
	}
	return true
}

func (s *QdrantStore) DeleteByNoteId(ctx context.Context, noteId uuid.UUID) bool {
	return s.deleteByFilter(ctx, noteFilter(noteId), "note_id", noteId.String())
}

func (s *QdrantStore) DeleteByUserId(ctx context.Context, userId uuid.UUID) bool {
	return s.deleteByFilter(ctx, userFilter(userId), "user_id", userId.String())
}

func (s *QdrantStore) GetIndexStats(ctx context.Context, userId uuid.UUID) (*IndexStats, error) {
	total, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         userFilter(userId),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: count failed: %w", err)
	}

	points, err := s.scrollPayload(ctx, userFilter(userId), "note_id", "created_at", "provider")
	if err != nil {
		return nil, err
	}

	notes := make(map[string]struct{})
	var lastAt *time.Time
	provider := ""
	for _, p := range points {
		if v, ok := p.Payload["note_id"]; ok {
			notes[v.GetStringValue()] = struct{}{}
		}
		if v, ok := p.Payload["provider"]; ok && provider == "" {
			provider = v.GetStringValue()
		}
		if v, ok := p.Payload["created_at"]; ok {
			if t, err := time.Parse(time.RFC3339Nano, v.GetStringValue()); err == nil {
				if lastAt == nil || t.After(*lastAt) {
					lastAt = &t
				}
			}
		}
	}

	return &IndexStats{
		TotalEmbeddings:   int64(total),
		UniqueNotes:       int64(len(notes)),
		LastIndexedAt:     lastAt,
		EmbeddingProvider: provider,
		StoreProvider:     s.Name(),
	}, nil
}

func (s *QdrantStore) GetNoteUpdatedAt(ctx context.Context, noteId uuid.UUID) (*time.Time, error) {
	limit := uint32(1)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter:         noteFilter(noteId),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayloadInclude("note_updated_at"),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	v, ok := points[0].Payload["note_updated_at"]
	if !ok {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

func (s *QdrantStore) GetIndexedNoteIds(ctx context.Context, userId uuid.UUID) ([]uuid.UUID, error) {
	stamps, err := s.GetIndexedNotesWithTimestamps(ctx, userId)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(stamps))
	for id := range stamps {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *QdrantStore) GetIndexedNotesWithTimestamps(ctx context.Context, userId uuid.UUID) (map[uuid.UUID]time.Time, error) {
	points, err := s.scrollPayload(ctx, userFilter(userId), "note_id", "note_updated_at")
	if err != nil {
		return nil, err
	}

	stamps := make(map[uuid.UUID]time.Time)
	for _, p := range points {
		idVal, ok := p.Payload["note_id"]
		if !ok {
			continue
		}
		noteId, err := uuid.Parse(idVal.GetStringValue())
		if err != nil {
			continue
		}

		var updatedAt time.Time
		if v, ok := p.Payload["note_updated_at"]; ok {
			if t, err := time.Parse(time.RFC3339Nano, v.GetStringValue()); err == nil {
				updatedAt = t
			}
		}
		if existing, ok := stamps[noteId]; !ok || updatedAt.After(existing) {
			stamps[noteId] = updatedAt
		}
	}
	return stamps, nil
}

func (s *QdrantStore) scrollPayload(ctx context.Context, filter *qdrant.Filter, fields ...string) ([]*qdrant.RetrievedPoint, error) {
	limit := uint32(scrollPageSize)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayloadInclude(fields...),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
	}
	return points, nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
