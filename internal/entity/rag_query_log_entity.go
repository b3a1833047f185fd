package entity

import (
	"time"

	"github.com/google/uuid"
)

// RagQueryLog is one persisted telemetry record, written by the analytics
// consumer from the event bus.
type RagQueryLog struct {
	Id             uuid.UUID
	QueryId        uuid.UUID
	UserId         uuid.UUID
	QueryLength    int
	Provider       string
	Model          string
	VectorStore    string
	CandidateCount int
	ResultCount    int
	TopSimilarity  float64
	CacheHit       bool
	Degraded       bool
	TokensUsed     int
	TotalDuration  time.Duration

	// Feedback fields stay nil until the user submits a verdict.
	Helpful  *bool
	Category string
	Comment  string

	CreatedAt time.Time
}
