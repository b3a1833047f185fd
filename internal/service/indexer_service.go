package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"second-brain-be/internal/dto"
	"second-brain-be/internal/entity"
	"second-brain-be/internal/pkg/logger"
	"second-brain-be/internal/repository/contract"
	"second-brain-be/internal/repository/specification"
	"second-brain-be/pkg/embedding"
	"second-brain-be/pkg/events"
	"second-brain-be/pkg/utils"
	"second-brain-be/pkg/vectorstore"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

const (
	// Chunk geometry in characters. 1500 chars is roughly 375 tokens,
	// comfortably inside every supported embedding model's context.
	indexChunkSize    = 1500
	indexChunkOverlap = 200
)

type IIndexerService interface {
	Consume(ctx context.Context) error
	ReindexStale(ctx context.Context, userId uuid.UUID) (*dto.ReindexResponse, error)
}

// EventEmitter is the optional bus notification hook; nil disables it.
type EventEmitter interface {
	Publish(ctx context.Context, event events.Event) error
}

type indexerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	noteRepo  contract.NoteRepository
	provider  embedding.Provider
	store     vectorstore.Store
	publisher IPublisherService
	emitter   EventEmitter
	log       logger.ILogger

	embedOpts []embedding.Option
}

func NewIndexerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	noteRepo contract.NoteRepository,
	provider embedding.Provider,
	store vectorstore.Store,
	publisher IPublisherService,
	emitter EventEmitter,
	log logger.ILogger,
	embedOpts ...embedding.Option,
) IIndexerService {
	return &indexerService{
		pubSub:    pubSub,
		topicName: topicName,
		noteRepo:  noteRepo,
		provider:  provider,
		store:     store,
		publisher: publisher,
		emitter:   emitter,
		log:       log,
		embedOpts: embedOpts,
	}
}

func (s *indexerService) Consume(ctx context.Context) error {
	messages, err := s.pubSub.Subscribe(ctx, s.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (s *indexerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishIndexNoteMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.log.Error("indexer", "failed to unmarshal index message", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack() // malformed payloads would retry forever
		return
	}

	note, err := s.noteRepo.FindOne(ctx, specification.ByID{ID: payload.NoteId})
	if err != nil {
		s.log.Error("indexer", "failed to load note", map[string]interface{}{
			"note_id": payload.NoteId.String(),
			"error":   err.Error(),
		})
		msg.Nack()
		return
	}
	if note == nil {
		// Deleted before the queue caught up. Drop any leftover vectors.
		s.store.DeleteByNoteId(ctx, payload.NoteId)
		msg.Ack()
		return
	}

	if err := s.indexNote(ctx, note); err != nil {
		s.log.Error("indexer", "indexing failed", map[string]interface{}{
			"note_id": note.Id.String(),
			"error":   err.Error(),
		})
		msg.Nack()
		return
	}

	msg.Ack()
}

// indexNote replaces all stored vectors for one note. Delete-then-insert
// keeps chunk counts correct when the note shrank.
func (s *indexerService) indexNote(ctx context.Context, note *entity.Note) error {
	content := buildIndexDocument(note)
	chunks := utils.SplitText(content, indexChunkSize, indexChunkOverlap)

	opts := append([]embedding.Option{embedding.WithTaskType(embedding.TaskRetrievalDocument)}, s.embedOpts...)
	results, err := s.provider.GenerateBatch(ctx, chunks, opts...)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}

	now := time.Now()
	embeddings := make([]*vectorstore.NoteEmbedding, len(results))
	for i, res := range results {
		embeddings[i] = &vectorstore.NoteEmbedding{
			Id:            uuid.NewString(),
			NoteId:        note.Id,
			UserId:        note.UserId,
			ChunkIndex:    i,
			Content:       chunks[i],
			Embedding:     res.Vector,
			Provider:      s.provider.Name(),
			Model:         res.Model,
			NoteTitle:     note.Title,
			NoteTags:      note.Tags,
			NoteSummary:   note.Summary,
			NoteUpdatedAt: noteTimestamp(note),
			CreatedAt:     now,
		}
	}

	if ok := s.store.DeleteByNoteId(ctx, note.Id); !ok {
		return fmt.Errorf("delete old vectors for note %s", note.Id)
	}
	if ok := s.store.UpsertBatch(ctx, embeddings); !ok {
		return fmt.Errorf("store %d vectors for note %s", len(embeddings), note.Id)
	}

	s.log.Info("indexer", "note indexed", map[string]interface{}{
		"note_id": note.Id.String(),
		"chunks":  len(embeddings),
		"store":   s.store.Name(),
	})

	if s.emitter != nil {
		evt := events.NewNoteIndexed(note.Id, note.UserId, len(embeddings), s.store.Name())
		if err := s.emitter.Publish(ctx, evt); err != nil {
			s.log.Warn("indexer", "failed to publish indexed event", map[string]interface{}{
				"note_id": note.Id.String(),
				"error":   err.Error(),
			})
		}
	}

	return nil
}

// ReindexStale reconciles the vector store with the notes table: notes whose
// updated_at is newer than their indexed timestamp are re-enqueued, and
// vectors for deleted notes are removed.
func (s *indexerService) ReindexStale(ctx context.Context, userId uuid.UUID) (*dto.ReindexResponse, error) {
	indexed, err := s.store.GetIndexedNotesWithTimestamps(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("list indexed notes: %w", err)
	}

	notes, err := s.noteRepo.FindAll(ctx, specification.NoteOwnedByUser{UserID: userId})
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	resp := &dto.ReindexResponse{}
	live := make(map[uuid.UUID]bool, len(notes))

	for _, note := range notes {
		live[note.Id] = true

		indexedAt, ok := indexed[note.Id]
		if ok && !noteTimestamp(note).After(indexedAt) {
			continue
		}

		if err := s.enqueue(ctx, note.Id); err != nil {
			s.log.Warn("indexer", "failed to enqueue stale note", map[string]interface{}{
				"note_id": note.Id.String(),
				"error":   err.Error(),
			})
			continue
		}
		if ok {
			resp.Stale++
		} else {
			resp.Missing++
		}
	}

	for noteId := range indexed {
		if live[noteId] {
			continue
		}
		if s.store.DeleteByNoteId(ctx, noteId) {
			resp.Orphaned++
		}
	}

	resp.Enqueued = resp.Stale + resp.Missing
	return resp, nil
}

func (s *indexerService) enqueue(ctx context.Context, noteId uuid.UUID) error {
	payload, err := json.Marshal(dto.PublishIndexNoteMessage{NoteId: noteId})
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, payload)
}

// buildIndexDocument prefixes the chunked content with note metadata so
// title and tag terms are searchable in every chunk's source note.
func buildIndexDocument(note *entity.Note) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Note Title: %s\n", note.Title)
	if len(note.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(note.Tags, ", "))
	}
	if note.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", note.Summary)
	}
	b.WriteString("\n")
	b.WriteString(note.Content)
	return b.String()
}

func noteTimestamp(note *entity.Note) time.Time {
	if note.UpdatedAt != nil {
		return *note.UpdatedAt
	}
	return note.CreatedAt
}
