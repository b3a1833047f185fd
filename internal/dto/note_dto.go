package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateNoteRequest struct {
	Title   string   `json:"title" validate:"required"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
}

type CreateNoteResponse struct {
	Id uuid.UUID `json:"id"`
}

type ShowNoteResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags"`
	Summary   string     `json:"summary"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type ListNotesRequest struct {
	Title        string     `json:"title"`
	UpdatedSince *time.Time `json:"updated_since"`
	Limit        int        `json:"limit" validate:"omitempty,min=1,max=100"`
	Offset       int        `json:"offset" validate:"omitempty,min=0"`
}

// NoteListItem omits content; listings are for navigation, Show serves the
// full note.
type NoteListItem struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Tags      []string   `json:"tags"`
	Summary   string     `json:"summary"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type UpdateNoteRequest struct {
	Id      uuid.UUID
	Title   string   `json:"title" validate:"required"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
}

type UpdateNoteResponse struct {
	Id uuid.UUID `json:"id"`
}

// PublishIndexNoteMessage is the background queue payload. The consumer
// re-reads the note, so the ID is all it needs.
type PublishIndexNoteMessage struct {
	NoteId uuid.UUID `json:"note_id"`
}
