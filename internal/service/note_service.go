package service

import (
	"context"
	"encoding/json"
	"time"

	"second-brain-be/internal/dto"
	"second-brain-be/internal/entity"
	"second-brain-be/internal/pkg/logger"
	"second-brain-be/internal/repository/contract"
	"second-brain-be/internal/repository/specification"
	"second-brain-be/pkg/vectorstore"

	"github.com/google/uuid"
)

type INoteService interface {
	Create(ctx context.Context, userId uuid.UUID, req *dto.CreateNoteRequest) (*dto.CreateNoteResponse, error)
	List(ctx context.Context, userId uuid.UUID, req *dto.ListNotesRequest) ([]*dto.NoteListItem, error)
	Show(ctx context.Context, userId uuid.UUID, id uuid.UUID) (*dto.ShowNoteResponse, error)
	Update(ctx context.Context, userId uuid.UUID, req *dto.UpdateNoteRequest) (*dto.UpdateNoteResponse, error)
	Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error
}

type noteService struct {
	noteRepo  contract.NoteRepository
	publisher IPublisherService
	store     vectorstore.Store
	log       logger.ILogger
}

func NewNoteService(
	noteRepo contract.NoteRepository,
	publisher IPublisherService,
	store vectorstore.Store,
	log logger.ILogger,
) INoteService {
	return &noteService{
		noteRepo:  noteRepo,
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

func (c *noteService) Create(ctx context.Context, userId uuid.UUID, req *dto.CreateNoteRequest) (*dto.CreateNoteResponse, error) {
	note := entity.Note{
		Id:        uuid.New(),
		Title:     req.Title,
		Content:   req.Content,
		Tags:      req.Tags,
		Summary:   req.Summary,
		UserId:    userId,
		CreatedAt: time.Now(),
	}

	if err := c.noteRepo.Create(ctx, &note); err != nil {
		return nil, err
	}

	c.enqueueIndex(ctx, note.Id)

	return &dto.CreateNoteResponse{Id: note.Id}, nil
}

func (c *noteService) List(ctx context.Context, userId uuid.UUID, req *dto.ListNotesRequest) ([]*dto.NoteListItem, error) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	specs := []specification.Specification{
		specification.NoteOwnedByUser{UserID: userId},
	}
	if req.Title != "" {
		specs = append(specs, specification.ByTitle{Title: req.Title})
	}
	if req.UpdatedSince != nil {
		specs = append(specs, specification.UpdatedSince{Since: *req.UpdatedSince})
	}
	specs = append(specs,
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: req.Offset},
	)

	notes, err := c.noteRepo.FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.NoteListItem, len(notes))
	for i, note := range notes {
		out[i] = &dto.NoteListItem{
			Id:        note.Id,
			Title:     note.Title,
			Tags:      note.Tags,
			Summary:   note.Summary,
			CreatedAt: note.CreatedAt,
			UpdatedAt: note.UpdatedAt,
		}
	}
	return out, nil
}

func (c *noteService) Show(ctx context.Context, userId uuid.UUID, id uuid.UUID) (*dto.ShowNoteResponse, error) {
	note, err := c.noteRepo.FindOne(ctx,
		specification.ByID{ID: id},
		specification.NoteOwnedByUser{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, nil // Not found
	}

	return &dto.ShowNoteResponse{
		Id:        note.Id,
		Title:     note.Title,
		Content:   note.Content,
		Tags:      note.Tags,
		Summary:   note.Summary,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}, nil
}

func (c *noteService) Update(ctx context.Context, userId uuid.UUID, req *dto.UpdateNoteRequest) (*dto.UpdateNoteResponse, error) {
	note, err := c.noteRepo.FindOne(ctx,
		specification.ByID{ID: req.Id},
		specification.NoteOwnedByUser{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, nil
	}

	now := time.Now()
	note.Title = req.Title
	note.Content = req.Content
	note.Tags = req.Tags
	note.Summary = req.Summary
	note.UpdatedAt = &now

	if err := c.noteRepo.Update(ctx, note); err != nil {
		return nil, err
	}

	c.enqueueIndex(ctx, note.Id)

	return &dto.UpdateNoteResponse{Id: note.Id}, nil
}

func (c *noteService) Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error {
	note, err := c.noteRepo.FindOne(ctx,
		specification.ByID{ID: id},
		specification.NoteOwnedByUser{UserID: userId},
	)
	if err != nil {
		return err
	}
	if note == nil {
		return nil
	}

	if err := c.noteRepo.Delete(ctx, id); err != nil {
		return err
	}

	// Vector cleanup is best-effort; the reconcile sweep picks up leftovers.
	if ok := c.store.DeleteByNoteId(ctx, id); !ok {
		c.log.Warn("note_service", "failed to delete note vectors", map[string]interface{}{
			"note_id": id.String(),
		})
	}

	return nil
}

// enqueueIndex schedules a background (re)index. Queue failures are logged,
// not returned; the write already succeeded and the stale sweep will recover.
func (c *noteService) enqueueIndex(ctx context.Context, noteId uuid.UUID) {
	payload, err := json.Marshal(dto.PublishIndexNoteMessage{NoteId: noteId})
	if err != nil {
		c.log.Error("note_service", "failed to marshal index message", map[string]interface{}{
			"note_id": noteId.String(),
			"error":   err.Error(),
		})
		return
	}

	if err := c.publisher.Publish(ctx, payload); err != nil {
		c.log.Warn("note_service", "failed to enqueue note for indexing", map[string]interface{}{
			"note_id": noteId.String(),
			"error":   err.Error(),
		})
	}
}
