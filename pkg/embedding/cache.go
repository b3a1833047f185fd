package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"second-brain-be/internal/pkg/logger"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache TTLs. The local tier is short to bound memory; the distributed tier
// is long because embeddings are deterministic and expensive to regenerate.
const (
	defaultLocalTTL       = 5 * time.Minute
	defaultDistributedTTL = 24 * time.Hour
)

// cachedEntry is the serialized form stored in both tiers.
type cachedEntry struct {
	Vector     []float32 `json:"vector"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
}

// CachedProvider decorates any Provider with a content-addressed two-tier
// cache. Embeddings are a pure function of (provider, model, dimensions,
// text), so identical inputs never hit the upstream model twice while a
// cached copy lives.
type CachedProvider struct {
	inner   Provider
	local   *gocache.Cache
	rdb     redis.UniversalClient // nil disables the distributed tier
	group   singleflight.Group
	metrics *CacheMetrics
	log     logger.ILogger

	localTTL       time.Duration
	distributedTTL time.Duration
}

// NewCachedProvider wraps inner with the cache. rdb may be nil, in which case
// only the local tier is used. metrics may be nil.
func NewCachedProvider(inner Provider, rdb redis.UniversalClient, metrics *CacheMetrics, log logger.ILogger) *CachedProvider {
	return &CachedProvider{
		inner:          inner,
		local:          gocache.New(defaultLocalTTL, 10*time.Minute),
		rdb:            rdb,
		metrics:        metrics,
		log:            log,
		localTTL:       defaultLocalTTL,
		distributedTTL: defaultDistributedTTL,
	}
}

func (p *CachedProvider) Name() string { return p.inner.Name() }

func (p *CachedProvider) IsAvailable() bool { return p.inner.IsAvailable() }

// cacheKey hashes the identity tuple. Hashing keeps keys bounded and immune
// to delimiter collisions in the text itself.
func (p *CachedProvider) cacheKey(text string, o Options) string {
	dims := "default"
	if o.Dimensions > 0 {
		dims = strconv.Itoa(o.Dimensions)
	}
	model := o.Model
	if model == "" {
		model = "default"
	}

	h := sha256.New()
	h.Write([]byte(p.inner.Name()))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(dims))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "emb:" + fmt.Sprintf("%x", h.Sum(nil))
}

func (p *CachedProvider) Generate(ctx context.Context, text string, opts ...Option) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	o := applyOptions(opts)
	key := p.cacheKey(text, o)

	if res := p.lookup(ctx, key); res != nil {
		return res, nil
	}

	// Concurrent misses for the same key collapse into one upstream call.
	v, err, shared := p.group.Do(key, func() (interface{}, error) {
		start := time.Now()
		res, err := p.inner.Generate(ctx, text, opts...)
		if err != nil {
			return nil, err
		}
		p.metrics.miss(p.inner.Name())
		p.metrics.observeGeneration(p.inner.Name(), time.Since(start).Seconds())
		p.store(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	res := v.(*Result)
	if shared {
		// Waiters did not pay for the generation; report zero cost.
		return asHit(res), nil
	}
	return res, nil
}

// GenerateBatch checks the cache per text and only sends uncached texts
// upstream, splicing results back into the original order.
func (p *CachedProvider) GenerateBatch(ctx context.Context, texts []string, opts ...Option) ([]*Result, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}
	o := applyOptions(opts)

	results := make([]*Result, len(texts))
	var missTexts []string
	var missIdx []int
	var missKeys []string

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyText
		}
		key := p.cacheKey(text, o)
		if res := p.lookup(ctx, key); res != nil {
			results[i] = res
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
		missKeys = append(missKeys, key)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	start := time.Now()
	generated, err := p.inner.GenerateBatch(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}
	if len(generated) != len(missTexts) {
		return nil, &ProviderError{
			Provider: p.inner.Name(),
			Message:  fmt.Sprintf("batch returned %d embeddings for %d texts", len(generated), len(missTexts)),
		}
	}
	elapsed := time.Since(start).Seconds()

	for j, res := range generated {
		p.metrics.miss(p.inner.Name())
		p.store(ctx, missKeys[j], res)
		results[missIdx[j]] = res
	}
	p.metrics.observeGeneration(p.inner.Name(), elapsed)

	return results, nil
}

// lookup checks local then distributed tier. A distributed hit backfills the
// local tier.
func (p *CachedProvider) lookup(ctx context.Context, key string) *Result {
	if v, found := p.local.Get(key); found {
		p.metrics.hit(p.inner.Name(), "local")
		return asHit(v.(*Result))
	}

	if p.rdb == nil {
		return nil
	}

	raw, err := p.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			p.log.Warn("embedding_cache", "distributed cache read failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil
	}

	var entry cachedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		p.log.Warn("embedding_cache", "corrupt distributed cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil
	}

	res := &Result{
		Vector:     entry.Vector,
		Model:      entry.Model,
		Dimensions: entry.Dimensions,
	}
	p.local.Set(key, res, p.localTTL)
	p.metrics.hit(p.inner.Name(), "distributed")
	return asHit(res)
}

func (p *CachedProvider) store(ctx context.Context, key string, res *Result) {
	p.local.Set(key, res, p.localTTL)

	if p.rdb == nil {
		return
	}
	raw, err := json.Marshal(cachedEntry{
		Vector:     res.Vector,
		Model:      res.Model,
		Dimensions: res.Dimensions,
	})
	if err != nil {
		return
	}
	if err := p.rdb.Set(ctx, key, raw, p.distributedTTL).Err(); err != nil {
		// Write-back failure only costs a future regeneration.
		p.log.Warn("embedding_cache", "distributed cache write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// asHit copies a cached result, zeroing the token cost: the caller of a hit
// did not consume any upstream tokens.
func asHit(res *Result) *Result {
	return &Result{
		Vector:     res.Vector,
		Model:      res.Model,
		Dimensions: res.Dimensions,
		TokensUsed: 0,
		CacheHit:   true,
	}
}
