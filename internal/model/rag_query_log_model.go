package model

import (
	"time"

	"github.com/google/uuid"
)

type RagQueryLog struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	QueryId        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	UserId         uuid.UUID `gorm:"type:uuid;not null;index"`
	QueryLength    int
	Provider       string `gorm:"type:varchar(32)"`
	Model          string `gorm:"type:varchar(128)"`
	VectorStore    string `gorm:"type:varchar(32)"`
	CandidateCount int
	ResultCount    int
	TopSimilarity  float64
	CacheHit       bool
	Degraded       bool
	TokensUsed     int
	DurationMs     int64

	Helpful  *bool
	Category string `gorm:"size:32"`
	Comment  string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (RagQueryLog) TableName() string {
	return "rag_query_logs"
}
