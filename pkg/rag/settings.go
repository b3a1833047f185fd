package rag

import (
	"context"

	"github.com/google/uuid"
)

// Settings are the per-user retrieval knobs. Absent a user override the
// system defaults apply.
type Settings struct {
	TopK                int
	SimilarityThreshold float64

	// Fusion weights. They should sum to 1.0 so combined scores stay
	// comparable across deployments.
	VectorWeight  float64
	KeywordWeight float64

	// InitialRetrievalCount bounds the fused candidate pool handed to the
	// reranker; it is intentionally larger than TopK.
	InitialRetrievalCount int

	// MaxContextChars is the assembled context budget. Whole chunks only,
	// lowest-ranked dropped first.
	MaxContextChars int

	MinRerankScore float64

	EnableHybrid         bool
	EnableRerank         bool
	EnableHyDE           bool
	EnableQueryExpansion bool
	EnableAnalytics      bool

	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int

	// VectorStore optionally overrides the composite store's default mode
	// ("pgvector", "qdrant", "both").
	VectorStore string
}

// DefaultSettings returns the system defaults used when a user has no
// overrides stored.
func DefaultSettings() Settings {
	return Settings{
		TopK:                  10,
		SimilarityThreshold:   0.35,
		VectorWeight:          0.7,
		KeywordWeight:         0.3,
		InitialRetrievalCount: 30,
		MaxContextChars:       12000,
		MinRerankScore:        0.3,
		EnableHybrid:          true,
		EnableRerank:          false,
		EnableHyDE:            false,
		EnableQueryExpansion:  false,
		EnableAnalytics:       true,
	}
}

// SettingsProvider supplies per-user settings at query time.
type SettingsProvider interface {
	ForUser(ctx context.Context, userId uuid.UUID) (Settings, error)
}

// StaticSettings is a SettingsProvider that always returns the same settings.
// Used as the fallback when no settings store is wired, and in tests.
type StaticSettings struct {
	Settings Settings
}

func (s StaticSettings) ForUser(ctx context.Context, userId uuid.UUID) (Settings, error) {
	return s.Settings, nil
}
