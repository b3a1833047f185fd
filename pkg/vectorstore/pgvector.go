package vectorstore

import (
	"context"
	"errors"
	"time"

	"second-brain-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// noteEmbeddingRow is the gorm model backing the pgvector store.
type noteEmbeddingRow struct {
	Id            string          `gorm:"primaryKey"`
	NoteId        uuid.UUID       `gorm:"type:uuid;not null;index"`
	UserId        uuid.UUID       `gorm:"type:uuid;not null;index"`
	ChunkIndex    int             `gorm:"default:0"` // 0-based index for ordering
	Content       string          `gorm:"type:text"`
	Embedding     pgvector.Vector `gorm:"type:vector(768)"`
	Provider      string
	Model         string
	NoteTitle     string
	NoteTags      []string `gorm:"serializer:json;type:text"`
	NoteSummary   string
	NoteUpdatedAt time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (noteEmbeddingRow) TableName() string {
	return "note_embeddings"
}

func toRow(e *NoteEmbedding) *noteEmbeddingRow {
	return &noteEmbeddingRow{
		Id:            e.Id,
		NoteId:        e.NoteId,
		UserId:        e.UserId,
		ChunkIndex:    e.ChunkIndex,
		Content:       e.Content,
		Embedding:     pgvector.NewVector(e.Embedding),
		Provider:      e.Provider,
		Model:         e.Model,
		NoteTitle:     e.NoteTitle,
		NoteTags:      e.NoteTags,
		NoteSummary:   e.NoteSummary,
		NoteUpdatedAt: e.NoteUpdatedAt,
		CreatedAt:     e.CreatedAt,
	}
}

func (r *noteEmbeddingRow) toSearchResult(similarity float64) SearchResult {
	return SearchResult{
		Id:          r.Id,
		NoteId:      r.NoteId,
		Content:     r.Content,
		NoteTitle:   r.NoteTitle,
		NoteTags:    r.NoteTags,
		NoteSummary: r.NoteSummary,
		ChunkIndex:  r.ChunkIndex,
		Similarity:  similarity,
		Metadata: map[string]string{
			"provider":   r.Provider,
			"model":      r.Model,
			"created_at": r.CreatedAt.Format(time.RFC3339),
		},
	}
}

// PgVectorStore stores embeddings in Postgres with the pgvector extension.
// It also serves keyword search, making it the sparse leg of hybrid retrieval.
type PgVectorStore struct {
	db  *gorm.DB
	log logger.ILogger
}

func NewPgVectorStore(db *gorm.DB, log logger.ILogger) *PgVectorStore {
	return &PgVectorStore{db: db, log: log}
}

func (s *PgVectorStore) Name() string { return "pgvector" }

// Migrate creates the note_embeddings table. The vector extension itself is
// provisioned by the migration tooling.
func (s *PgVectorStore) Migrate() error {
	return s.db.AutoMigrate(&noteEmbeddingRow{})
}

func (s *PgVectorStore) Upsert(ctx context.Context, embedding *NoteEmbedding) bool {
	if embedding.Id == "" {
		embedding.Id = uuid.NewString()
	}
	row := toRow(embedding)

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(row).Error
	if err != nil {
		s.log.Error("pgvector_store", "upsert failed", map[string]interface{}{
			"embedding_id": embedding.Id,
			"note_id":      embedding.NoteId.String(),
			"error":        err.Error(),
		})
		return false
	}
	return true
}

func (s *PgVectorStore) UpsertBatch(ctx context.Context, embeddings []*NoteEmbedding) bool {
	if len(embeddings) == 0 {
		return true
	}

	rows := make([]*noteEmbeddingRow, len(embeddings))
	for i, e := range embeddings {
		if e.Id == "" {
			e.Id = uuid.NewString()
		}
		rows[i] = toRow(e)
	}

	// One transaction so a batch is never partially visible.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).
			Create(rows).Error
	})
	if err != nil {
		s.log.Error("pgvector_store", "batch upsert failed", map[string]interface{}{
			"count":   len(embeddings),
			"note_id": embeddings[0].NoteId.String(),
			"error":   err.Error(),
		})
		return false
	}
	return true
}

func (s *PgVectorStore) Search(ctx context.Context, queryVector []float32, userId uuid.UUID, topK int, similarityThreshold float64) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	// Cosine distance in pgvector is: 1 - cosine_similarity
	// So we compute: 1 - (embedding <=> query_vector) = cosine_similarity
	// and keep the threshold comparison in similarity space.
	type scoredRow struct {
		noteEmbeddingRow
		Similarity float64
	}
	var rows []scoredRow

	qv := pgvector.NewVector(queryVector)

	err := s.db.WithContext(ctx).
		Table("note_embeddings").
		Select("note_embeddings.*, 1 - (embedding <=> ?) AS similarity", qv).
		Where("user_id = ?", userId).
		Where("1 - (embedding <=> ?) >= ?", qv, similarityThreshold).
		Order("similarity DESC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(rows))
	for i, row := range rows {
		results[i] = row.toSearchResult(row.Similarity)
	}
	return results, nil
}

// KeywordSearch runs Postgres full-text search over chunk content, scoped to
// the user. Scores are ts_rank_cd values; the fusion layer normalizes them.
func (s *PgVectorStore) KeywordSearch(ctx context.Context, query string, userId uuid.UUID, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	type rankedRow struct {
		noteEmbeddingRow
		Rank float64
	}
	var rows []rankedRow

	err := s.db.WithContext(ctx).
		Table("note_embeddings").
		Select("note_embeddings.*, ts_rank_cd(to_tsvector('english', content), plainto_tsquery('english', ?)) AS rank", query).
		Where("user_id = ?", userId).
		Where("to_tsvector('english', content) @@ plainto_tsquery('english', ?)", query).
		Order("rank DESC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(rows))
	for i, row := range rows {
		results[i] = row.toSearchResult(row.Rank)
	}
	return results, nil
}

func (s *PgVectorStore) DeleteByNoteId(ctx context.Context, noteId uuid.UUID) bool {
	err := s.db.WithContext(ctx).
		Where("note_id = ?", noteId).
		Delete(&noteEmbeddingRow{}).Error
	if err != nil {
		s.log.Error("pgvector_store", "delete by note failed", map[string]interface{}{
			"note_id": noteId.String(),
			"error":   err.Error(),
		})
		return false
	}
	return true
}

func (s *PgVectorStore) DeleteByUserId(ctx context.Context, userId uuid.UUID) bool {
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Delete(&noteEmbeddingRow{}).Error
	if err != nil {
		s.log.Error("pgvector_store", "delete by user failed", map[string]interface{}{
			"user_id": userId.String(),
			"error":   err.Error(),
		})
		return false
	}
	return true
}

func (s *PgVectorStore) GetIndexStats(ctx context.Context, userId uuid.UUID) (*IndexStats, error) {
	type statsRow struct {
		Total    int64
		Notes    int64
		LastAt   *time.Time
		Provider string
	}
	var row statsRow

	err := s.db.WithContext(ctx).
		Table("note_embeddings").
		Select("COUNT(*) AS total, COUNT(DISTINCT note_id) AS notes, MAX(created_at) AS last_at, MAX(provider) AS provider").
		Where("user_id = ?", userId).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	return &IndexStats{
		TotalEmbeddings:   row.Total,
		UniqueNotes:       row.Notes,
		LastIndexedAt:     row.LastAt,
		EmbeddingProvider: row.Provider,
		StoreProvider:     s.Name(),
	}, nil
}

func (s *PgVectorStore) GetNoteUpdatedAt(ctx context.Context, noteId uuid.UUID) (*time.Time, error) {
	var row noteEmbeddingRow
	err := s.db.WithContext(ctx).
		Where("note_id = ?", noteId).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	t := row.NoteUpdatedAt
	return &t, nil
}

func (s *PgVectorStore) GetIndexedNoteIds(ctx context.Context, userId uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Table("note_embeddings").
		Distinct("note_id").
		Where("user_id = ?", userId).
		Pluck("note_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PgVectorStore) GetIndexedNotesWithTimestamps(ctx context.Context, userId uuid.UUID) (map[uuid.UUID]time.Time, error) {
	type noteStamp struct {
		NoteId        uuid.UUID
		NoteUpdatedAt time.Time
	}
	var rows []noteStamp

	err := s.db.WithContext(ctx).
		Table("note_embeddings").
		Select("note_id, MAX(note_updated_at) AS note_updated_at").
		Where("user_id = ?", userId).
		Group("note_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stamps := make(map[uuid.UUID]time.Time, len(rows))
	for _, row := range rows {
		stamps[row.NoteId] = row.NoteUpdatedAt
	}
	return stamps, nil
}
