package service

import (
	"context"
	"testing"

	"second-brain-be/internal/entity"
	"second-brain-be/internal/pkg/logger"
	"second-brain-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueryLogRepo struct {
	created []*entity.RagQueryLog

	feedbackQueryId uuid.UUID
	feedbackUserId  uuid.UUID
	feedbackCalls   int
}

func (f *fakeQueryLogRepo) Create(_ context.Context, log *entity.RagQueryLog) error {
	f.created = append(f.created, log)
	return nil
}

func (f *fakeQueryLogRepo) AttachFeedback(_ context.Context, queryId, userId uuid.UUID, _ bool, _, _ string) error {
	f.feedbackCalls++
	f.feedbackQueryId = queryId
	f.feedbackUserId = userId
	return nil
}

func (f *fakeQueryLogRepo) FindRecentByUserId(_ context.Context, _ uuid.UUID, _ int) ([]*entity.RagQueryLog, error) {
	return nil, nil
}

func newAnalyticsFixture() (*analyticsService, *fakeQueryLogRepo) {
	repo := &fakeQueryLogRepo{}
	return &analyticsService{logRepo: repo, log: logger.NewNopLogger()}, repo
}

func TestHandleQueryCompletedPersistsLog(t *testing.T) {
	s, repo := newAnalyticsFixture()
	queryId, userId := uuid.New(), uuid.New()

	event := events.NewRagQueryCompleted(queryId, userId, map[string]interface{}{
		"result_count":      4,
		"top_similarity":    0.91,
		"cache_hit":         true,
		"total_duration_ms": int64(120),
	})

	require.NoError(t, s.handleQueryCompleted(context.Background(), event))
	require.Len(t, repo.created, 1)
	assert.Equal(t, queryId, repo.created[0].QueryId)
	assert.Equal(t, userId, repo.created[0].UserId)
	assert.Equal(t, 4, repo.created[0].ResultCount)
	assert.True(t, repo.created[0].CacheHit)
}

func TestHandleFeedbackScopesUpdateToOwner(t *testing.T) {
	s, repo := newAnalyticsFixture()
	queryId, userId := uuid.New(), uuid.New()

	event := events.NewRagFeedback(queryId, userId, true, "outdated", "stale notes")

	require.NoError(t, s.handleFeedback(context.Background(), event))
	require.Equal(t, 1, repo.feedbackCalls)
	assert.Equal(t, queryId, repo.feedbackQueryId)
	assert.Equal(t, userId, repo.feedbackUserId)
}

func TestHandleFeedbackDropsEventWithoutOwner(t *testing.T) {
	s, repo := newAnalyticsFixture()

	event := events.BaseEvent{
		Type: events.TypeRagFeedback,
		Data: map[string]interface{}{
			"query_id": uuid.New().String(),
			"helpful":  true,
		},
	}

	require.NoError(t, s.handleFeedback(context.Background(), event))
	assert.Zero(t, repo.feedbackCalls)
}
