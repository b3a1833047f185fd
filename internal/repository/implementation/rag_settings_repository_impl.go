package implementation

import (
	"context"
	"errors"
	"time"

	"second-brain-be/internal/entity"
	"second-brain-be/internal/model"
	"second-brain-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RagSettingsRepositoryImpl struct {
	db *gorm.DB
}

func NewRagSettingsRepository(db *gorm.DB) contract.RagSettingsRepository {
	return &RagSettingsRepositoryImpl{db: db}
}

func (r *RagSettingsRepositoryImpl) FindByUserId(ctx context.Context, userId uuid.UUID) (*entity.RagSettings, error) {
	var m model.RagSettings
	err := r.db.WithContext(ctx).Where("user_id = ?", userId).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toRagSettingsEntity(&m), nil
}

func (r *RagSettingsRepositoryImpl) Upsert(ctx context.Context, settings *entity.RagSettings) error {
	m := toRagSettingsModel(settings)
	if m.Id == uuid.Nil {
		m.Id = uuid.New()
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(m).Error
	if err != nil {
		return err
	}

	*settings = *toRagSettingsEntity(m)
	return nil
}

func (r *RagSettingsRepositoryImpl) DeleteByUserId(ctx context.Context, userId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userId).Delete(&model.RagSettings{}).Error
}

func toRagSettingsEntity(m *model.RagSettings) *entity.RagSettings {
	var updatedAt *time.Time
	if !m.UpdatedAt.IsZero() {
		t := m.UpdatedAt
		updatedAt = &t
	}

	return &entity.RagSettings{
		Id:                    m.Id,
		UserId:                m.UserId,
		TopK:                  m.TopK,
		SimilarityThreshold:   m.SimilarityThreshold,
		VectorWeight:          m.VectorWeight,
		KeywordWeight:         m.KeywordWeight,
		InitialRetrievalCount: m.InitialRetrievalCount,
		MaxContextChars:       m.MaxContextChars,
		EnableHybrid:          m.EnableHybrid,
		EnableRerank:          m.EnableRerank,
		EnableHyDE:            m.EnableHyDE,
		EnableQueryExpansion:  m.EnableQueryExpansion,
		EnableAnalytics:       m.EnableAnalytics,
		EmbeddingProvider:     m.EmbeddingProvider,
		EmbeddingModel:        m.EmbeddingModel,
		VectorStore:           m.VectorStore,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             updatedAt,
	}
}

func toRagSettingsModel(e *entity.RagSettings) *model.RagSettings {
	var updatedAt time.Time
	if e.UpdatedAt != nil {
		updatedAt = *e.UpdatedAt
	}

	return &model.RagSettings{
		Id:                    e.Id,
		UserId:                e.UserId,
		TopK:                  e.TopK,
		SimilarityThreshold:   e.SimilarityThreshold,
		VectorWeight:          e.VectorWeight,
		KeywordWeight:         e.KeywordWeight,
		InitialRetrievalCount: e.InitialRetrievalCount,
		MaxContextChars:       e.MaxContextChars,
		EnableHybrid:          e.EnableHybrid,
		EnableRerank:          e.EnableRerank,
		EnableHyDE:            e.EnableHyDE,
		EnableQueryExpansion:  e.EnableQueryExpansion,
		EnableAnalytics:       e.EnableAnalytics,
		EmbeddingProvider:     e.EmbeddingProvider,
		EmbeddingModel:        e.EmbeddingModel,
		VectorStore:           e.VectorStore,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             updatedAt,
	}
}
