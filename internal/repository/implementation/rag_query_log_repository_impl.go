package implementation

import (
	"context"
	"time"

	"second-brain-be/internal/entity"
	"second-brain-be/internal/model"
	"second-brain-be/internal/repository/contract"
	"second-brain-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RagQueryLogRepositoryImpl struct {
	db *gorm.DB
}

func NewRagQueryLogRepository(db *gorm.DB) contract.RagQueryLogRepository {
	return &RagQueryLogRepositoryImpl{db: db}
}

func (r *RagQueryLogRepositoryImpl) Create(ctx context.Context, log *entity.RagQueryLog) error {
	m := toRagQueryLogModel(log)
	if m.Id == uuid.Nil {
		m.Id = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*log = *toRagQueryLogEntity(m)
	return nil
}

func (r *RagQueryLogRepositoryImpl) AttachFeedback(ctx context.Context, queryId, userId uuid.UUID, helpful bool, category, comment string) error {
	return r.db.WithContext(ctx).
		Model(&model.RagQueryLog{}).
		Where("query_id = ? AND user_id = ?", queryId, userId).
		Updates(map[string]interface{}{
			"helpful":  helpful,
			"category": category,
			"comment":  comment,
		}).Error
}

func (r *RagQueryLogRepositoryImpl) FindRecentByUserId(ctx context.Context, userId uuid.UUID, limit int) ([]*entity.RagQueryLog, error) {
	specs := []specification.Specification{
		specification.Filter("user_id", userId),
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit},
	}

	db := r.db.WithContext(ctx)
	for _, spec := range specs {
		db = spec.Apply(db)
	}

	var models []*model.RagQueryLog
	if err := db.Find(&models).Error; err != nil {
		return nil, err
	}

	logs := make([]*entity.RagQueryLog, len(models))
	for i, m := range models {
		logs[i] = toRagQueryLogEntity(m)
	}
	return logs, nil
}

func toRagQueryLogEntity(m *model.RagQueryLog) *entity.RagQueryLog {
	return &entity.RagQueryLog{
		Id:             m.Id,
		QueryId:        m.QueryId,
		UserId:         m.UserId,
		QueryLength:    m.QueryLength,
		Provider:       m.Provider,
		Model:          m.Model,
		VectorStore:    m.VectorStore,
		CandidateCount: m.CandidateCount,
		ResultCount:    m.ResultCount,
		TopSimilarity:  m.TopSimilarity,
		CacheHit:       m.CacheHit,
		Degraded:       m.Degraded,
		TokensUsed:     m.TokensUsed,
		TotalDuration:  time.Duration(m.DurationMs) * time.Millisecond,
		Helpful:        m.Helpful,
		Category:       m.Category,
		Comment:        m.Comment,
		CreatedAt:      m.CreatedAt,
	}
}

func toRagQueryLogModel(e *entity.RagQueryLog) *model.RagQueryLog {
	return &model.RagQueryLog{
		Id:             e.Id,
		QueryId:        e.QueryId,
		UserId:         e.UserId,
		QueryLength:    e.QueryLength,
		Provider:       e.Provider,
		Model:          e.Model,
		VectorStore:    e.VectorStore,
		CandidateCount: e.CandidateCount,
		ResultCount:    e.ResultCount,
		TopSimilarity:  e.TopSimilarity,
		CacheHit:       e.CacheHit,
		Degraded:       e.Degraded,
		TokensUsed:     e.TokensUsed,
		DurationMs:     e.TotalDuration.Milliseconds(),
		Helpful:        e.Helpful,
		Category:       e.Category,
		Comment:        e.Comment,
		CreatedAt:      e.CreatedAt,
	}
}
