package dto

import (
	"time"

	"github.com/google/uuid"
)

type RagQueryRequest struct {
	Query       string  `json:"query" validate:"required"`
	TopK        int     `json:"top_k" validate:"omitempty,min=1,max=50"`
	Threshold   float64 `json:"threshold" validate:"omitempty,gt=0,max=1"`
	VectorStore string  `json:"vector_store" validate:"omitempty,oneof=pgvector qdrant both"`
}

type RetrievedChunk struct {
	NoteId     uuid.UUID `json:"note_id"`
	NoteTitle  string    `json:"note_title"`
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunk_index"`
	Score      float64   `json:"score"`
}

type RagQueryResponse struct {
	QueryId    uuid.UUID        `json:"query_id"`
	Chunks     []RetrievedChunk `json:"chunks"`
	Context    string           `json:"context"`
	Degraded   bool             `json:"degraded"`
	Provider   string           `json:"provider"`
	Model      string           `json:"model"`
	TokensUsed int              `json:"tokens_used"`
	CacheHit   bool             `json:"cache_hit"`
}

type RagFeedbackRequest struct {
	QueryId  uuid.UUID `json:"query_id" validate:"required"`
	Helpful  *bool     `json:"helpful" validate:"required"`
	Category string    `json:"category" validate:"omitempty,oneof=irrelevant outdated incomplete wrong_notes other"`
	Comment  string    `json:"comment"`
}

type IndexStatsResponse struct {
	TotalEmbeddings   int64      `json:"total_embeddings"`
	UniqueNotes       int64      `json:"unique_notes"`
	LastIndexedAt     *time.Time `json:"last_indexed_at"`
	EmbeddingProvider string     `json:"embedding_provider"`
	StoreProvider     string     `json:"store_provider"`
}

type ReindexResponse struct {
	Stale    int `json:"stale"`
	Missing  int `json:"missing"`
	Orphaned int `json:"orphaned"`
	Enqueued int `json:"enqueued"`
}

type RagSettingsRequest struct {
	TopK                  int     `json:"top_k" validate:"omitempty,min=1,max=50"`
	SimilarityThreshold   float64 `json:"similarity_threshold" validate:"omitempty,min=0,max=1"`
	VectorWeight          float64 `json:"vector_weight" validate:"omitempty,min=0,max=1"`
	KeywordWeight         float64 `json:"keyword_weight" validate:"omitempty,min=0,max=1"`
	InitialRetrievalCount int     `json:"initial_retrieval_count" validate:"omitempty,min=1,max=200"`
	MaxContextChars       int     `json:"max_context_chars" validate:"omitempty,min=500"`

	EnableHybrid         *bool `json:"enable_hybrid"`
	EnableRerank         *bool `json:"enable_rerank"`
	EnableHyDE           *bool `json:"enable_hyde"`
	EnableQueryExpansion *bool `json:"enable_query_expansion"`
	EnableAnalytics      *bool `json:"enable_analytics"`

	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	VectorStore       string `json:"vector_store" validate:"omitempty,oneof=pgvector qdrant both"`
}

type RagSettingsResponse struct {
	TopK                  int     `json:"top_k"`
	SimilarityThreshold   float64 `json:"similarity_threshold"`
	VectorWeight          float64 `json:"vector_weight"`
	KeywordWeight         float64 `json:"keyword_weight"`
	InitialRetrievalCount int     `json:"initial_retrieval_count"`
	MaxContextChars       int     `json:"max_context_chars"`

	EnableHybrid         bool `json:"enable_hybrid"`
	EnableRerank         bool `json:"enable_rerank"`
	EnableHyDE           bool `json:"enable_hyde"`
	EnableQueryExpansion bool `json:"enable_query_expansion"`
	EnableAnalytics      bool `json:"enable_analytics"`

	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	VectorStore       string `json:"vector_store"`
}

type RagQueryLogResponse struct {
	QueryId       uuid.UUID `json:"query_id"`
	ResultCount   int       `json:"result_count"`
	TopSimilarity float64   `json:"top_similarity"`
	CacheHit      bool      `json:"cache_hit"`
	Degraded      bool      `json:"degraded"`
	DurationMs    int64     `json:"duration_ms"`
	Helpful       *bool     `json:"helpful"`
	Category      string    `json:"category,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
