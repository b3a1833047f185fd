package service

import (
	"context"
	"fmt"
	"time"

	"second-brain-be/internal/dto"
	"second-brain-be/internal/entity"
	"second-brain-be/internal/pkg/logger"
	"second-brain-be/internal/repository/contract"
	"second-brain-be/pkg/rag"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const settingsCacheTTL = time.Minute

type ISettingsService interface {
	rag.SettingsProvider
	Get(ctx context.Context, userId uuid.UUID) (*dto.RagSettingsResponse, error)
	Update(ctx context.Context, userId uuid.UUID, req *dto.RagSettingsRequest) (*dto.RagSettingsResponse, error)
	Reset(ctx context.Context, userId uuid.UUID) error
}

// settingsService layers stored per-user overrides over the configured
// defaults. Lookups sit on the query hot path, so resolved settings are
// cached briefly in process.
type settingsService struct {
	repo     contract.RagSettingsRepository
	defaults rag.Settings
	cache    *gocache.Cache
	log      logger.ILogger
}

func NewSettingsService(repo contract.RagSettingsRepository, defaults rag.Settings, log logger.ILogger) ISettingsService {
	return &settingsService{
		repo:     repo,
		defaults: defaults,
		cache:    gocache.New(settingsCacheTTL, 5*time.Minute),
		log:      log,
	}
}

// ForUser implements rag.SettingsProvider. Lookup failures fall back to the
// defaults so a settings-table outage never blocks retrieval.
func (s *settingsService) ForUser(ctx context.Context, userId uuid.UUID) (rag.Settings, error) {
	key := userId.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(rag.Settings), nil
	}

	stored, err := s.repo.FindByUserId(ctx, userId)
	if err != nil {
		s.log.Warn("settings_service", "settings lookup failed, using defaults", map[string]interface{}{
			"user_id": key,
			"error":   err.Error(),
		})
		return s.defaults, nil
	}

	resolved := s.merge(stored)
	s.cache.Set(key, resolved, gocache.DefaultExpiration)
	return resolved, nil
}

func (s *settingsService) Get(ctx context.Context, userId uuid.UUID) (*dto.RagSettingsResponse, error) {
	resolved, err := s.ForUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	return toSettingsResponse(resolved), nil
}

func (s *settingsService) Update(ctx context.Context, userId uuid.UUID, req *dto.RagSettingsRequest) (*dto.RagSettingsResponse, error) {
	if req.VectorWeight > 0 && req.KeywordWeight > 0 {
		if diff := req.VectorWeight + req.KeywordWeight - 1.0; diff > 0.001 || diff < -0.001 {
			return nil, fmt.Errorf("vector_weight and keyword_weight must sum to 1.0")
		}
	}

	stored := &entity.RagSettings{
		UserId:                userId,
		TopK:                  req.TopK,
		SimilarityThreshold:   req.SimilarityThreshold,
		VectorWeight:          req.VectorWeight,
		KeywordWeight:         req.KeywordWeight,
		InitialRetrievalCount: req.InitialRetrievalCount,
		MaxContextChars:       req.MaxContextChars,
		EnableHybrid:          req.EnableHybrid,
		EnableRerank:          req.EnableRerank,
		EnableHyDE:            req.EnableHyDE,
		EnableQueryExpansion:  req.EnableQueryExpansion,
		EnableAnalytics:       req.EnableAnalytics,
		EmbeddingProvider:     req.EmbeddingProvider,
		EmbeddingModel:        req.EmbeddingModel,
		VectorStore:           req.VectorStore,
	}

	if err := s.repo.Upsert(ctx, stored); err != nil {
		return nil, err
	}

	s.cache.Delete(userId.String())
	return toSettingsResponse(s.merge(stored)), nil
}

func (s *settingsService) Reset(ctx context.Context, userId uuid.UUID) error {
	if err := s.repo.DeleteByUserId(ctx, userId); err != nil {
		return err
	}
	s.cache.Delete(userId.String())
	return nil
}

// merge overlays non-zero stored values onto the defaults.
func (s *settingsService) merge(stored *entity.RagSettings) rag.Settings {
	resolved := s.defaults
	if stored == nil {
		return resolved
	}

	if stored.TopK > 0 {
		resolved.TopK = stored.TopK
	}
	if stored.SimilarityThreshold > 0 {
		resolved.SimilarityThreshold = stored.SimilarityThreshold
	}
	if stored.VectorWeight > 0 {
		resolved.VectorWeight = stored.VectorWeight
	}
	if stored.KeywordWeight > 0 {
		resolved.KeywordWeight = stored.KeywordWeight
	}
	if stored.InitialRetrievalCount > 0 {
		resolved.InitialRetrievalCount = stored.InitialRetrievalCount
	}
	if stored.MaxContextChars > 0 {
		resolved.MaxContextChars = stored.MaxContextChars
	}
	if stored.EnableHybrid != nil {
		resolved.EnableHybrid = *stored.EnableHybrid
	}
	if stored.EnableRerank != nil {
		resolved.EnableRerank = *stored.EnableRerank
	}
	if stored.EnableHyDE != nil {
		resolved.EnableHyDE = *stored.EnableHyDE
	}
	if stored.EnableQueryExpansion != nil {
		resolved.EnableQueryExpansion = *stored.EnableQueryExpansion
	}
	if stored.EnableAnalytics != nil {
		resolved.EnableAnalytics = *stored.EnableAnalytics
	}
	if stored.EmbeddingProvider != "" {
		resolved.EmbeddingProvider = stored.EmbeddingProvider
	}
	if stored.EmbeddingModel != "" {
		resolved.EmbeddingModel = stored.EmbeddingModel
	}
	if stored.VectorStore != "" {
		resolved.VectorStore = stored.VectorStore
	}

	return resolved
}

func toSettingsResponse(s rag.Settings) *dto.RagSettingsResponse {
	return &dto.RagSettingsResponse{
		TopK:                  s.TopK,
		SimilarityThreshold:   s.SimilarityThreshold,
		VectorWeight:          s.VectorWeight,
		KeywordWeight:         s.KeywordWeight,
		InitialRetrievalCount: s.InitialRetrievalCount,
		MaxContextChars:       s.MaxContextChars,
		EnableHybrid:          s.EnableHybrid,
		EnableRerank:          s.EnableRerank,
		EnableHyDE:            s.EnableHyDE,
		EnableQueryExpansion:  s.EnableQueryExpansion,
		EnableAnalytics:       s.EnableAnalytics,
		EmbeddingProvider:     s.EmbeddingProvider,
		EmbeddingModel:        s.EmbeddingModel,
		VectorStore:           s.VectorStore,
	}
}
