package embedding

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"second-brain-be/internal/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns a deterministic vector per text and counts upstream calls.
type fakeProvider struct {
	calls      int64
	batchCalls int64
	delay      time.Duration
	fail       bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) IsAvailable() bool { return true }

func (f *fakeProvider) vectorFor(text string) []float32 {
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r)
	}
	return v
}

func (f *fakeProvider) Generate(ctx context.Context, text string, opts ...Option) (*Result, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		return nil, &ProviderError{Provider: f.Name(), Message: "simulated failure"}
	}
	return &Result{
		Vector:     f.vectorFor(text),
		Model:      "fake-model",
		Dimensions: 4,
		TokensUsed: len(text),
	}, nil
}

func (f *fakeProvider) GenerateBatch(ctx context.Context, texts []string, opts ...Option) ([]*Result, error) {
	atomic.AddInt64(&f.batchCalls, 1)
	if f.fail {
		return nil, &ProviderError{Provider: f.Name(), Message: "simulated failure"}
	}
	results := make([]*Result, len(texts))
	for i, text := range texts {
		results[i] = &Result{
			Vector:     f.vectorFor(text),
			Model:      "fake-model",
			Dimensions: 4,
			TokensUsed: len(text),
		}
	}
	return results, nil
}

func newTestCache(t *testing.T, inner Provider) *CachedProvider {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCachedProvider(inner, rdb, nil, logger.NewNopLogger())
}

func TestCacheSecondCallIsHitWithZeroTokens(t *testing.T) {
	fake := &fakeProvider{}
	cached := newTestCache(t, fake)
	ctx := context.Background()

	first, err := cached.Generate(ctx, "hello world")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Greater(t, first.TokensUsed, 0)

	second, err := cached.Generate(ctx, "hello world")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 0, second.TokensUsed)
	assert.Equal(t, first.Vector, second.Vector)

	assert.Equal(t, int64(1), atomic.LoadInt64(&fake.calls))
}

func TestCacheDistributedTierSurvivesLocalEviction(t *testing.T) {
	fake := &fakeProvider{}
	cached := newTestCache(t, fake)
	ctx := context.Background()

	_, err := cached.Generate(ctx, "persists in redis")
	require.NoError(t, err)

	// Simulate local tier eviction; the distributed tier should still hit.
	cached.local.Flush()

	res, err := cached.Generate(ctx, "persists in redis")
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fake.calls))
}

func TestCacheKeyIncludesModelAndDimensions(t *testing.T) {
	fake := &fakeProvider{}
	cached := newTestCache(t, fake)
	ctx := context.Background()

	_, err := cached.Generate(ctx, "same text")
	require.NoError(t, err)
	_, err = cached.Generate(ctx, "same text", WithModel("other-model"))
	require.NoError(t, err)
	_, err = cached.Generate(ctx, "same text", WithDimensions(256))
	require.NoError(t, err)

	// Three distinct tuples, three upstream calls.
	assert.Equal(t, int64(3), atomic.LoadInt64(&fake.calls))
}

func TestCacheEmptyTextRejectedLocally(t *testing.T) {
	fake := &fakeProvider{}
	cached := newTestCache(t, fake)

	_, err := cached.Generate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, int64(0), atomic.LoadInt64(&fake.calls))
}

func TestCacheStampedeCollapsesToSingleCall(t *testing.T) {
	fake := &fakeProvider{delay: 50 * time.Millisecond}
	cached := newTestCache(t, fake)
	ctx := context.Background()

	const waiters = 10
	var wg sync.WaitGroup
	results := make([]*Result, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cached.Generate(ctx, "stampede")
		}(i)
	}
	wg.Wait()

	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Vector, results[i].Vector)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&fake.calls))
}

func TestCacheBatchPreservesOrderWithMixedHits(t *testing.T) {
	fake := &fakeProvider{}
	cached := newTestCache(t, fake)
	ctx := context.Background()

	// Warm "b" so the batch mixes hits and misses.
	_, err := cached.Generate(ctx, "b")
	require.NoError(t, err)

	results, err := cached.GenerateBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, fake.vectorFor("a"), results[0].Vector)
	assert.Equal(t, fake.vectorFor("b"), results[1].Vector)
	assert.Equal(t, fake.vectorFor("c"), results[2].Vector)

	assert.False(t, results[0].CacheHit)
	assert.True(t, results[1].CacheHit)
	assert.Equal(t, 0, results[1].TokensUsed)
	assert.False(t, results[2].CacheHit)

	// One direct call for the warmup, one batch call for the two misses.
	assert.Equal(t, int64(1), atomic.LoadInt64(&fake.batchCalls))
}

func TestCacheBatchFullyCachedSkipsUpstream(t *testing.T) {
	fake := &fakeProvider{}
	cached := newTestCache(t, fake)
	ctx := context.Background()

	texts := []string{"x", "y"}
	_, err := cached.GenerateBatch(ctx, texts)
	require.NoError(t, err)

	results, err := cached.GenerateBatch(ctx, texts)
	require.NoError(t, err)
	for _, res := range results {
		assert.True(t, res.CacheHit)
		assert.Equal(t, 0, res.TokensUsed)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&fake.batchCalls))
}

func TestCacheUpstreamFailurePropagates(t *testing.T) {
	fake := &fakeProvider{fail: true}
	cached := newTestCache(t, fake)

	_, err := cached.Generate(context.Background(), "will fail")
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "fake", perr.Provider)
}

func TestCacheWorksWithoutRedis(t *testing.T) {
	fake := &fakeProvider{}
	cached := NewCachedProvider(fake, nil, nil, logger.NewNopLogger())
	ctx := context.Background()

	_, err := cached.Generate(ctx, "local only")
	require.NoError(t, err)

	res, err := cached.Generate(ctx, "local only")
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fake.calls))
}

func TestCacheDeterminismAcrossManyTexts(t *testing.T) {
	fake := &fakeProvider{}
	cached := newTestCache(t, fake)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		text := fmt.Sprintf("note content %d", i)
		first, err := cached.Generate(ctx, text)
		require.NoError(t, err)
		second, err := cached.Generate(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, first.Vector, second.Vector)
	}
}
