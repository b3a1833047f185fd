package rag

import (
	"context"
	"time"

	"second-brain-be/internal/pkg/logger"
	"second-brain-be/pkg/events"

	"github.com/google/uuid"
)

// EventPublisher is the slice of the NATS publisher the analytics recorder
// needs.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// QueryTelemetry captures what one retrieval pass did. Emitted after the
// response is already on its way; recording failures never affect the caller.
type QueryTelemetry struct {
	QueryId        uuid.UUID
	UserId         uuid.UUID
	Query          string
	Provider       string
	Model          string
	VectorStore    string
	CandidateCount int
	ResultCount    int
	TopSimilarity  float64
	CacheHit       bool
	Degraded       bool
	HydeUsed       bool
	ExpansionUsed  bool
	RerankUsed     bool
	TokensUsed     int
	EmbedDuration  time.Duration
	SearchDuration time.Duration
	RerankDuration time.Duration
	TotalDuration  time.Duration
}

// AnalyticsRecorder ships telemetry and feedback to the event bus. All
// methods are fire-and-forget: failures are logged and swallowed.
type AnalyticsRecorder struct {
	publisher EventPublisher
	log       logger.ILogger
	enabled   bool
}

func NewAnalyticsRecorder(publisher EventPublisher, log logger.ILogger, enabled bool) *AnalyticsRecorder {
	return &AnalyticsRecorder{publisher: publisher, log: log, enabled: enabled}
}

func (a *AnalyticsRecorder) RecordQuery(ctx context.Context, t QueryTelemetry) {
	if !a.enabled || a.publisher == nil {
		return
	}

	event := events.NewRagQueryCompleted(t.QueryId, t.UserId, map[string]interface{}{
		"query_length":       len(t.Query),
		"provider":           t.Provider,
		"model":              t.Model,
		"vector_store":       t.VectorStore,
		"candidate_count":    t.CandidateCount,
		"result_count":       t.ResultCount,
		"top_similarity":     t.TopSimilarity,
		"cache_hit":          t.CacheHit,
		"degraded":           t.Degraded,
		"hyde_used":          t.HydeUsed,
		"expansion_used":     t.ExpansionUsed,
		"rerank_used":        t.RerankUsed,
		"tokens_used":        t.TokensUsed,
		"embed_duration_ms":  t.EmbedDuration.Milliseconds(),
		"search_duration_ms": t.SearchDuration.Milliseconds(),
		"rerank_duration_ms": t.RerankDuration.Milliseconds(),
		"total_duration_ms":  t.TotalDuration.Milliseconds(),
	})

	if err := a.publisher.Publish(ctx, event); err != nil {
		a.log.Warn("rag_analytics", "failed to publish query telemetry", map[string]interface{}{
			"query_id": t.QueryId.String(),
			"error":    err.Error(),
		})
	}
}

func (a *AnalyticsRecorder) RecordFeedback(ctx context.Context, queryId, userId uuid.UUID, helpful bool, category, comment string) {
	if !a.enabled || a.publisher == nil {
		return
	}

	event := events.NewRagFeedback(queryId, userId, helpful, category, comment)
	if err := a.publisher.Publish(ctx, event); err != nil {
		a.log.Warn("rag_analytics", "failed to publish feedback", map[string]interface{}{
			"query_id": queryId.String(),
			"error":    err.Error(),
		})
	}
}
