package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeRagQueryCompleted = "RAG_QUERY_COMPLETED"
	TypeRagFeedback       = "RAG_FEEDBACK"
	TypeNoteIndexed       = "NOTE_INDEXED"
)

// NewRagQueryCompleted records one finished retrieval pass. The payload is
// what the analytics consumer persists, so every field is flattened to
// JSON-friendly types.
func NewRagQueryCompleted(queryId, userId uuid.UUID, details map[string]interface{}) BaseEvent {
	data := map[string]interface{}{
		"query_id": queryId.String(),
		"user_id":  userId.String(),
	}
	for k, v := range details {
		data[k] = v
	}
	return BaseEvent{
		Type:       TypeRagQueryCompleted,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

// NewRagFeedback records a user's relevance verdict on an earlier query.
func NewRagFeedback(queryId, userId uuid.UUID, helpful bool, category, comment string) BaseEvent {
	return BaseEvent{
		Type: TypeRagFeedback,
		Data: map[string]interface{}{
			"query_id": queryId.String(),
			"user_id":  userId.String(),
			"helpful":  helpful,
			"category": category,
			"comment":  comment,
		},
		OccurredAt: time.Now(),
	}
}

// NewNoteIndexed records a completed (re)index of one note.
func NewNoteIndexed(noteId, userId uuid.UUID, chunkCount int, store string) BaseEvent {
	return BaseEvent{
		Type: TypeNoteIndexed,
		Data: map[string]interface{}{
			"note_id":     noteId.String(),
			"user_id":     userId.String(),
			"chunk_count": chunkCount,
			"store":       store,
		},
		OccurredAt: time.Now(),
	}
}
