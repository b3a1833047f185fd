package vectorstore

import (
	"context"
	"fmt"
	"time"

	"second-brain-be/internal/pkg/logger"

	"github.com/google/uuid"
)

// Mode selects which backend(s) a CompositeStore routes to.
type Mode string

const (
	ModePgVector Mode = "pgvector"
	ModeQdrant   Mode = "qdrant"
	ModeBoth     Mode = "both"
)

// ParseMode validates a mode string (e.g. from a per-request override).
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePgVector, ModeQdrant, ModeBoth:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("vectorstore: unknown provider mode %q", s)
	}
}

// CompositeStore presents a single Store over up to two backends.
//
// Writes in "both" mode go to both backends with no short-circuit, so neither
// silently falls behind; aggregate success requires both. Reads go to the
// preferred backend (Qdrant whenever it participates) and, only in "both"
// mode, fall back to the other backend when the preferred one errors.
type CompositeStore struct {
	relational Store // pgvector
	vector     Store // qdrant, may be nil when mode is pgvector-only
	mode       Mode
	log        logger.ILogger
}

func NewCompositeStore(relational, vector Store, mode Mode, log logger.ILogger) *CompositeStore {
	return &CompositeStore{
		relational: relational,
		vector:     vector,
		mode:       mode,
		log:        log,
	}
}

// Mode returns the currently configured routing mode.
func (c *CompositeStore) Mode() Mode { return c.mode }

// WithMode returns a view of the store routing with the given mode. Used for
// per-call overrides; the receiver is not modified. A mode whose backend was
// never wired is refused and the current routing is kept, so an override to a
// backend that failed at startup cannot route calls into a nil store.
func (c *CompositeStore) WithMode(mode Mode) *CompositeStore {
	if mode == c.mode {
		return c
	}
	if !c.supports(mode) {
		c.log.Warn("composite_store", "requested mode has no wired backend, keeping current mode", map[string]interface{}{
			"requested": string(mode),
			"mode":      string(c.mode),
		})
		return c
	}
	clone := *c
	clone.mode = mode
	return &clone
}

func (c *CompositeStore) supports(mode Mode) bool {
	switch mode {
	case ModeQdrant:
		return c.vector != nil
	case ModeBoth:
		return c.relational != nil && c.vector != nil
	default:
		return c.relational != nil
	}
}

func (c *CompositeStore) Name() string { return "composite(" + string(c.mode) + ")" }

// preferred is the read-side backend; fallback is non-nil only in "both" mode.
func (c *CompositeStore) readTargets() (preferred, fallback Store) {
	switch c.mode {
	case ModeQdrant:
		return c.vector, nil
	case ModeBoth:
		return c.vector, c.relational
	default:
		return c.relational, nil
	}
}

func (c *CompositeStore) writeTargets() []Store {
	switch c.mode {
	case ModeQdrant:
		return []Store{c.vector}
	case ModeBoth:
		return []Store{c.relational, c.vector}
	default:
		return []Store{c.relational}
	}
}

func (c *CompositeStore) Upsert(ctx context.Context, embedding *NoteEmbedding) bool {
	ok := true
	for _, store := range c.writeTargets() {
		if !store.Upsert(ctx, embedding) {
			ok = false
		}
	}
	return ok
}

func (c *CompositeStore) UpsertBatch(ctx context.Context, embeddings []*NoteEmbedding) bool {
	ok := true
	for _, store := range c.writeTargets() {
		if !store.UpsertBatch(ctx, embeddings) {
			ok = false
		}
	}
	return ok
}

func (c *CompositeStore) DeleteByNoteId(ctx context.Context, noteId uuid.UUID) bool {
	ok := true
	for _, store := range c.writeTargets() {
		if !store.DeleteByNoteId(ctx, noteId) {
			ok = false
		}
	}
	return ok
}

func (c *CompositeStore) DeleteByUserId(ctx context.Context, userId uuid.UUID) bool {
	ok := true
	for _, store := range c.writeTargets() {
		if !store.DeleteByUserId(ctx, userId) {
			ok = false
		}
	}
	return ok
}

func (c *CompositeStore) Search(ctx context.Context, queryVector []float32, userId uuid.UUID, topK int, similarityThreshold float64) ([]SearchResult, error) {
	preferred, fallback := c.readTargets()

	results, err := preferred.Search(ctx, queryVector, userId, topK, similarityThreshold)
	if err == nil {
		return results, nil
	}
	if fallback == nil {
		return nil, err
	}

	c.log.Warn("composite_store", "preferred backend search failed, falling back", map[string]interface{}{
		"preferred": preferred.Name(),
		"fallback":  fallback.Name(),
		"user_id":   userId.String(),
		"error":     err.Error(),
	})
	return fallback.Search(ctx, queryVector, userId, topK, similarityThreshold)
}

func (c *CompositeStore) GetIndexStats(ctx context.Context, userId uuid.UUID) (*IndexStats, error) {
	preferred, fallback := c.readTargets()

	stats, err := preferred.GetIndexStats(ctx, userId)
	if err == nil {
		return stats, nil
	}
	if fallback == nil {
		return nil, err
	}

	c.log.Warn("composite_store", "preferred backend stats failed, falling back", map[string]interface{}{
		"preferred": preferred.Name(),
		"user_id":   userId.String(),
		"error":     err.Error(),
	})
	return fallback.GetIndexStats(ctx, userId)
}

func (c *CompositeStore) GetNoteUpdatedAt(ctx context.Context, noteId uuid.UUID) (*time.Time, error) {
	preferred, fallback := c.readTargets()

	stamp, err := preferred.GetNoteUpdatedAt(ctx, noteId)
	if err == nil {
		return stamp, nil
	}
	if fallback == nil {
		return nil, err
	}
	return fallback.GetNoteUpdatedAt(ctx, noteId)
}

func (c *CompositeStore) GetIndexedNoteIds(ctx context.Context, userId uuid.UUID) ([]uuid.UUID, error) {
	preferred, fallback := c.readTargets()

	ids, err := preferred.GetIndexedNoteIds(ctx, userId)
	if err == nil {
		return ids, nil
	}
	if fallback == nil {
		return nil, err
	}
	return fallback.GetIndexedNoteIds(ctx, userId)
}

func (c *CompositeStore) GetIndexedNotesWithTimestamps(ctx context.Context, userId uuid.UUID) (map[uuid.UUID]time.Time, error) {
	preferred, fallback := c.readTargets()

	stamps, err := preferred.GetIndexedNotesWithTimestamps(ctx, userId)
	if err == nil {
		return stamps, nil
	}
	if fallback == nil {
		return nil, err
	}
	return fallback.GetIndexedNotesWithTimestamps(ctx, userId)
}
