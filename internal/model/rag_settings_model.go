package model

import (
	"time"

	"github.com/google/uuid"
)

type RagSettings struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`

	TopK                  int     `gorm:"default:0"`
	SimilarityThreshold   float64 `gorm:"default:0"`
	VectorWeight          float64 `gorm:"default:0"`
	KeywordWeight         float64 `gorm:"default:0"`
	InitialRetrievalCount int     `gorm:"default:0"`
	MaxContextChars       int     `gorm:"default:0"`

	EnableHybrid         *bool
	EnableRerank         *bool
	EnableHyDE           *bool
	EnableQueryExpansion *bool
	EnableAnalytics      *bool

	EmbeddingProvider string `gorm:"type:varchar(32)"`
	EmbeddingModel    string `gorm:"type:varchar(128)"`
	VectorStore       string `gorm:"type:varchar(16)"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (RagSettings) TableName() string {
	return "rag_settings"
}
