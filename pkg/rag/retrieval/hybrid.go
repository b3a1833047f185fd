// Package retrieval combines dense (vector) and sparse (keyword) search over
// the same corpus and fuses the two ranked lists into one.
package retrieval

import (
	"context"
	"sort"

	"second-brain-be/internal/pkg/logger"
	"second-brain-be/pkg/vectorstore"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Params for one retrieval pass.
type Params struct {
	UserId uuid.UUID
	Query  string

	// QueryVectors holds one or more embeddings (the raw query plus any
	// expansion/HyDE variants). Dense results are unioned keeping the best
	// score per chunk.
	QueryVectors [][]float32

	// InitialCount bounds the fused candidate pool.
	InitialCount        int
	SimilarityThreshold float64

	VectorWeight  float64
	KeywordWeight float64

	// Hybrid disables the keyword leg when false.
	Hybrid bool
}

// Result is the fused, deduplicated candidate list plus a degraded flag set
// when one retrieval leg failed and fusion proceeded best-effort.
type Result struct {
	Candidates []vectorstore.SearchResult
	Degraded   bool
}

type Retriever struct {
	keyword vectorstore.KeywordSearcher
	log     logger.ILogger
}

func NewRetriever(keyword vectorstore.KeywordSearcher, log logger.ILogger) *Retriever {
	return &Retriever{keyword: keyword, log: log}
}

// Retrieve fans out the dense and sparse sub-queries concurrently, joins
// them, and fuses the ranked lists. A failed leg logs and contributes
// nothing; only when every leg fails is the error returned.
func (r *Retriever) Retrieve(ctx context.Context, store vectorstore.Store, p Params) (*Result, error) {
	var dense []vectorstore.SearchResult
	var sparse []vectorstore.SearchResult
	var denseErr, sparseErr error

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dense, denseErr = r.denseSearch(gctx, store, p)
		return nil
	})

	if p.Hybrid && r.keyword != nil {
		g.Go(func() error {
			sparse, sparseErr = r.keyword.KeywordSearch(gctx, p.Query, p.UserId, p.InitialCount)
			return nil
		})
	}

	// Legs swallow their own errors, so this never fails.
	_ = g.Wait()

	degraded := false
	if denseErr != nil {
		degraded = true
		r.log.Warn("hybrid_retriever", "dense search failed", map[string]interface{}{
			"user_id": p.UserId.String(),
			"error":   denseErr.Error(),
		})
	}
	if sparseErr != nil {
		degraded = true
		r.log.Warn("hybrid_retriever", "keyword search failed", map[string]interface{}{
			"user_id": p.UserId.String(),
			"error":   sparseErr.Error(),
		})
	}

	if denseErr != nil && (!p.Hybrid || sparseErr != nil) {
		return nil, denseErr
	}

	fused := fuse(dense, sparse, p)
	return &Result{Candidates: fused, Degraded: degraded}, nil
}

// denseSearch runs one vector search per query embedding and unions the
// results, keeping the best similarity per chunk.
func (r *Retriever) denseSearch(ctx context.Context, store vectorstore.Store, p Params) ([]vectorstore.SearchResult, error) {
	best := make(map[string]vectorstore.SearchResult)
	var lastErr error
	succeeded := false

	for _, vector := range p.QueryVectors {
		results, err := store.Search(ctx, vector, p.UserId, p.InitialCount, p.SimilarityThreshold)
		if err != nil {
			lastErr = err
			continue
		}
		succeeded = true
		for _, res := range results {
			if existing, ok := best[res.Id]; !ok || res.Similarity > existing.Similarity {
				best[res.Id] = res
			}
		}
	}

	if !succeeded && lastErr != nil {
		return nil, lastErr
	}

	union := make([]vectorstore.SearchResult, 0, len(best))
	for _, res := range best {
		union = append(union, res)
	}
	sort.Slice(union, func(i, j int) bool { return union[i].Similarity > union[j].Similarity })
	return union, nil
}

type fusedCandidate struct {
	result       vectorstore.SearchResult
	vectorScore  float64
	keywordScore float64
	combined     float64
}

// fuse merges the two ranked lists, deduplicating by chunk ID. A chunk in
// both lists gets a weighted combination of its vector similarity and its
// max-normalized keyword rank; ties prefer the higher raw vector similarity.
func fuse(dense, sparse []vectorstore.SearchResult, p Params) []vectorstore.SearchResult {
	candidates := make(map[string]*fusedCandidate)

	for _, res := range dense {
		candidates[res.Id] = &fusedCandidate{result: res, vectorScore: res.Similarity}
	}

	// Keyword ranks are backend-specific; normalize by the max so they live
	// on the same 0..1 scale as cosine similarity before weighting.
	var maxRank float64
	for _, res := range sparse {
		if res.Similarity > maxRank {
			maxRank = res.Similarity
		}
	}
	for _, res := range sparse {
		norm := 0.0
		if maxRank > 0 {
			norm = res.Similarity / maxRank
		}
		if existing, ok := candidates[res.Id]; ok {
			existing.keywordScore = norm
		} else {
			candidates[res.Id] = &fusedCandidate{result: res, keywordScore: norm}
		}
	}

	fused := make([]*fusedCandidate, 0, len(candidates))
	for _, c := range candidates {
		c.combined = p.VectorWeight*c.vectorScore + p.KeywordWeight*c.keywordScore
		fused = append(fused, c)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].combined != fused[j].combined {
			return fused[i].combined > fused[j].combined
		}
		// Semantic match is the primary signal on ties.
		return fused[i].vectorScore > fused[j].vectorScore
	})

	if p.InitialCount > 0 && len(fused) > p.InitialCount {
		fused = fused[:p.InitialCount]
	}

	results := make([]vectorstore.SearchResult, len(fused))
	for i, c := range fused {
		res := c.result
		res.Similarity = c.combined
		results[i] = res
	}
	return results
}
