package contract

import (
	"context"

	"second-brain-be/internal/entity"

	"github.com/google/uuid"
)

type RagQueryLogRepository interface {
	Create(ctx context.Context, log *entity.RagQueryLog) error
	// AttachFeedback updates the feedback fields of an existing log row,
	// scoped to its owner. Missing rows are not an error; feedback may
	// arrive before the telemetry consumer caught up.
	AttachFeedback(ctx context.Context, queryId, userId uuid.UUID, helpful bool, category, comment string) error
	FindRecentByUserId(ctx context.Context, userId uuid.UUID, limit int) ([]*entity.RagQueryLog, error)
}
