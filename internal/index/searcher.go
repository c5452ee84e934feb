package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/emera/sattur/internal/embedding"
	"github.com/emera/sattur/internal/store"
)

// SearchOptions tunes the diversity-aware lookup.
type SearchOptions struct {
	// K is the number of chunks returned.
	K int `yaml:"k"`

	// FetchK is the size of the nearest-neighbour candidate pool that K is
	// chosen from. Must be >= K.
	FetchK int `yaml:"fetch_k"`

	// Lambda trades relevance (1) against diversity (0).
	Lambda float64 `yaml:"lambda"`
}

// DefaultSearchOptions returns K=4 out of FetchK=20 with an even balance.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{K: 4, FetchK: 20, Lambda: 0.5}
}

// Searcher holds a loaded index in memory. It is read-only after
// construction and safe for concurrent use.
type Searcher struct {
	engine embedding.Engine
	chunks []store.IndexChunk
	opts   SearchOptions
}

// NewSearcher builds a Searcher over chunks. Every chunk must carry an
// embedding produced by engine.
func NewSearcher(engine embedding.Engine, chunks []store.IndexChunk, opts SearchOptions) *Searcher {
	if opts.K <= 0 {
		opts.K = DefaultSearchOptions().K
	}
	if opts.FetchK < opts.K {
		opts.FetchK = opts.K
	}
	return &Searcher{engine: engine, chunks: chunks, opts: opts}
}

// Len returns the number of indexed chunks.
func (s *Searcher) Len() int {
	return len(s.chunks)
}

// Search embeds query, takes the FetchK nearest chunks and returns the K
// chosen by maximal marginal relevance.
func (s *Searcher) Search(ctx context.Context, query string) ([]Chunk, error) {
	if len(s.chunks) == 0 {
		return nil, nil
	}
	q, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		idx   int
		score float64
	}
	all := make([]scored, len(s.chunks))
	for i, c := range s.chunks {
		all[i] = scored{idx: i, score: similarity(q, c.Embedding)}
	}
	// Stable on ties so equal inputs always give equal results.
	sort.SliceStable(all, func(a, b int) bool { return all[a].score > all[b].score })
	pool := all[:min(s.opts.FetchK, len(all))]

	vecs := make([][]float32, len(pool))
	for i, p := range pool {
		vecs[i] = s.chunks[p.idx].Embedding
	}

	picked := selectMMR(q, vecs, s.opts.K, s.opts.Lambda)
	out := make([]Chunk, len(picked))
	for i, p := range picked {
		c := s.chunks[pool[p].idx]
		out[i] = Chunk{Source: c.Source, Content: c.Content, Score: pool[p].score}
	}
	return out, nil
}
