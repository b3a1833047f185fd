package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"second-brain-be/internal/dto"
	"second-brain-be/internal/entity"
	"second-brain-be/internal/pkg/logger"
	"second-brain-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func newNoteServiceFixture(notes ...*entity.Note) (INoteService, *fakeNoteRepo) {
	repo := newFakeNoteRepo(notes...)
	svc := NewNoteService(repo, &fakePublisher{}, newFakeVectorStore(), logger.NewNopLogger())
	return svc, repo
}

func TestNoteListAppliesFilters(t *testing.T) {
	userId := uuid.New()
	note := testNote(userId, "some content")
	svc, repo := newNoteServiceFixture(note)

	since := time.Now().Add(-time.Hour)
	items, err := svc.List(context.Background(), userId, &dto.ListNotesRequest{
		Title:        note.Title,
		UpdatedSince: &since,
		Limit:        5,
		Offset:       10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, note.Id, items[0].Id)
	assert.Equal(t, note.Title, items[0].Title)

	var owned, byTitle, updatedSince bool
	var pagination *specification.Pagination
	for _, spec := range repo.lastFindSpecs {
		switch s := spec.(type) {
		case specification.NoteOwnedByUser:
			owned = s.UserID == userId
		case specification.ByTitle:
			byTitle = s.Title == note.Title
		case specification.UpdatedSince:
			updatedSince = s.Since.Equal(since)
		case specification.Pagination:
			pagination = &s
		}
	}
	assert.True(t, owned)
	assert.True(t, byTitle)
	assert.True(t, updatedSince)
	require.NotNil(t, pagination)
	assert.Equal(t, 5, pagination.Limit)
	assert.Equal(t, 10, pagination.Offset)
}

func TestNoteListClampsLimit(t *testing.T) {
	userId := uuid.New()
	svc, repo := newNoteServiceFixture(testNote(userId, "content"))

	_, err := svc.List(context.Background(), userId, &dto.ListNotesRequest{Limit: 500})
	require.NoError(t, err)

	var limit int
	for _, spec := range repo.lastFindSpecs {
		if p, ok := spec.(specification.Pagination); ok {
			limit = p.Limit
		}
	}
	assert.Equal(t, 20, limit)
}
