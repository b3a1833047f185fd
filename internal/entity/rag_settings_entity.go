package entity

import (
	"time"

	"github.com/google/uuid"
)

// RagSettings are one user's stored retrieval overrides. Zero-value numeric
// fields mean "use the system default".
type RagSettings struct {
	Id     uuid.UUID
	UserId uuid.UUID

	TopK                  int
	SimilarityThreshold   float64
	VectorWeight          float64
	KeywordWeight         float64
	InitialRetrievalCount int
	MaxContextChars       int

	EnableHybrid         *bool
	EnableRerank         *bool
	EnableHyDE           *bool
	EnableQueryExpansion *bool
	EnableAnalytics      *bool

	EmbeddingProvider string
	EmbeddingModel    string
	VectorStore       string

	CreatedAt time.Time
	UpdatedAt *time.Time
}
