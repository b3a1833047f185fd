package service

import (
	"context"
	"time"

	"second-brain-be/internal/dto"
	"second-brain-be/internal/entity"
	"second-brain-be/internal/pkg/logger"
	"second-brain-be/internal/repository/contract"
	"second-brain-be/pkg/events"
	pktNats "second-brain-be/pkg/nats"

	"github.com/google/uuid"
)

type IAnalyticsService interface {
	// Start attaches the durable consumers. Call once on boot.
	Start() error
	RecentQueries(ctx context.Context, userId uuid.UUID, limit int) ([]*dto.RagQueryLogResponse, error)
}

// analyticsService drains retrieval telemetry off the event bus into the
// query log table, where it is queryable per user.
type analyticsService struct {
	logRepo    contract.RagQueryLogRepository
	subscriber *pktNats.Subscriber
	log        logger.ILogger
}

func NewAnalyticsService(logRepo contract.RagQueryLogRepository, subscriber *pktNats.Subscriber, log logger.ILogger) IAnalyticsService {
	return &analyticsService{
		logRepo:    logRepo,
		subscriber: subscriber,
		log:        log,
	}
}

func (s *analyticsService) Start() error {
	if err := s.subscriber.Subscribe("events."+events.TypeRagQueryCompleted, "rag-query-logger", s.handleQueryCompleted); err != nil {
		return err
	}
	return s.subscriber.Subscribe("events."+events.TypeRagFeedback, "rag-feedback-logger", s.handleFeedback)
}

func (s *analyticsService) handleQueryCompleted(ctx context.Context, event events.Event) error {
	p := event.Payload()

	queryId, err := uuid.Parse(asString(p["query_id"]))
	if err != nil {
		s.log.Error("analytics_service", "telemetry event without query_id", map[string]interface{}{
			"error": err.Error(),
		})
		return nil // unparseable, do not retry
	}
	userId, err := uuid.Parse(asString(p["user_id"]))
	if err != nil {
		return nil
	}

	record := &entity.RagQueryLog{
		QueryId:        queryId,
		UserId:         userId,
		QueryLength:    asInt(p["query_length"]),
		Provider:       asString(p["provider"]),
		Model:          asString(p["model"]),
		VectorStore:    asString(p["vector_store"]),
		CandidateCount: asInt(p["candidate_count"]),
		ResultCount:    asInt(p["result_count"]),
		TopSimilarity:  asFloat(p["top_similarity"]),
		CacheHit:       asBool(p["cache_hit"]),
		Degraded:       asBool(p["degraded"]),
		TokensUsed:     asInt(p["tokens_used"]),
		TotalDuration:  time.Duration(asInt(p["total_duration_ms"])) * time.Millisecond,
		CreatedAt:      time.Now(),
	}

	if err := s.logRepo.Create(ctx, record); err != nil {
		s.log.Error("analytics_service", "failed to persist query log", map[string]interface{}{
			"query_id": queryId.String(),
			"error":    err.Error(),
		})
		return err // Nack, retry
	}
	return nil
}

func (s *analyticsService) handleFeedback(ctx context.Context, event events.Event) error {
	p := event.Payload()

	queryId, err := uuid.Parse(asString(p["query_id"]))
	if err != nil {
		return nil
	}
	userId, err := uuid.Parse(asString(p["user_id"]))
	if err != nil {
		return nil
	}

	if err := s.logRepo.AttachFeedback(ctx, queryId, userId, asBool(p["helpful"]), asString(p["category"]), asString(p["comment"])); err != nil {
		s.log.Error("analytics_service", "failed to attach feedback", map[string]interface{}{
			"query_id": queryId.String(),
			"error":    err.Error(),
		})
		return err
	}
	return nil
}

func (s *analyticsService) RecentQueries(ctx context.Context, userId uuid.UUID, limit int) ([]*dto.RagQueryLogResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	logs, err := s.logRepo.FindRecentByUserId(ctx, userId, limit)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.RagQueryLogResponse, len(logs))
	for i, l := range logs {
		out[i] = &dto.RagQueryLogResponse{
			QueryId:       l.QueryId,
			ResultCount:   l.ResultCount,
			TopSimilarity: l.TopSimilarity,
			CacheHit:      l.CacheHit,
			Degraded:      l.Degraded,
			DurationMs:    l.TotalDuration.Milliseconds(),
			Helpful:       l.Helpful,
			Category:      l.Category,
			CreatedAt:     l.CreatedAt,
		}
	}
	return out, nil
}

// JSON round-trips through the bus turn ints into float64 and may drop
// fields entirely; these converters absorb both.
func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
