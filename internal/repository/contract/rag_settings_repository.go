package contract

import (
	"context"

	"second-brain-be/internal/entity"

	"github.com/google/uuid"
)

type RagSettingsRepository interface {
	// FindByUserId returns nil when the user has no stored overrides.
	FindByUserId(ctx context.Context, userId uuid.UUID) (*entity.RagSettings, error)
	Upsert(ctx context.Context, settings *entity.RagSettings) error
	DeleteByUserId(ctx context.Context, userId uuid.UUID) error
}
