package memoryindex

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// candidatePoolMultiplier controls how many extra candidates each side of
// the fusion considers beyond topK, so reranking and neighbor expansion
// have room to promote a result that wasn't already in the top K.
const candidatePoolMultiplier = 4

// ScoredChunk is one fused search result.
type ScoredChunk struct {
	Chunk      Chunk
	Score      float64
	VectorRank int // 0 = not present in the vector candidate set
	TextRank   int // 0 = not present in the text candidate set
}

// PolicyGate filters candidates against caller-side authorization after a
// mutating hook runs, so a hook can never smuggle in a chunk the caller
// wasn't allowed to see.
type PolicyGate func(chunks []Chunk) []Chunk

// SearchHooks are optional, applied in this order: Prefilter, then fusion
// and boosting, then NeighborExpansion, then Rerank. PolicyGate, if set, is
// re-applied immediately after Prefilter, NeighborExpansion, and Rerank.
type SearchHooks struct {
	Prefilter         func(chunks []Chunk) []Chunk
	NeighborExpansion func(results []ScoredChunk) []ScoredChunk
	Rerank            func(results []ScoredChunk) []ScoredChunk
	PolicyGate        PolicyGate
}

// SearchOptions configures one semantic search call (spec.md §4.6).
type SearchOptions struct {
	ScopeID          string
	QueryText        string
	QueryEmbedding   Embedding
	TopK             int
	VectorWeight     float64
	TextWeight       float64
	RRFK             int
	RecencyHalfLife  float64 // days
	AccessWeight     float64
	MinScore         float64
	NowMs            int64
	Hooks            SearchHooks
}

func (o *SearchOptions) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	if o.VectorWeight == 0 && o.TextWeight == 0 {
		o.VectorWeight, o.TextWeight = 1, 1
	}
	if o.RRFK == 0 {
		o.RRFK = 60
	}
	if o.RecencyHalfLife == 0 {
		o.RecencyHalfLife = 30
	}
	if o.MinScore == 0 {
		o.MinScore = 0.005
	}
}

// Engine runs hybrid (vector + text) semantic search over a Store.
type Engine struct {
	store *Store
}

func NewEngine(store *Store) *Engine {
	return &Engine{store: store}
}

// Search fuses vector-similarity and full-text candidate rankings with
// reciprocal rank fusion, applies recency and access-frequency boosts, runs
// any configured hooks, and marks the returned chunks as accessed.
func (e *Engine) Search(opts SearchOptions) ([]ScoredChunk, error) {
	opts.applyDefaults()
	poolSize := opts.TopK * candidatePoolMultiplier

	vectorRanked, err := e.vectorCandidates(opts, poolSize)
	if err != nil {
		return nil, err
	}
	textRanked, err := e.textCandidates(opts, poolSize)
	if err != nil {
		return nil, err
	}

	vectorRanked = filterResultsByChunks(vectorRanked, e.applyPrefilterHook(chunksOf(vectorRanked), opts.Hooks))
	textRanked = filterResultsByChunks(textRanked, e.applyPrefilterHook(chunksOf(textRanked), opts.Hooks))

	fused := fuseRankings(vectorRanked, textRanked, opts.VectorWeight, opts.TextWeight, opts.RRFK)

	results := make([]ScoredChunk, 0, len(fused))
	for idx, sc := range fused {
		chunk := sc.Chunk
		sc.Score *= recencyBoost(chunk.CreatedAtMs, opts.NowMs, opts.RecencyHalfLife)
		sc.Score *= accessBoost(chunk.AccessCount, opts.AccessWeight)
		fused[idx] = sc
		if sc.Score >= opts.MinScore {
			results = append(results, sc)
		}
	}
	sortByScoreDesc(results)

	results = e.applyNeighborExpansionHook(results, opts.Hooks)
	results = e.applyRerankHook(results, opts.Hooks)

	sortByScoreDesc(results)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	idxs := make([]int64, len(results))
	for i, r := range results {
		idxs[i] = r.Chunk.ChunkIdx
	}
	if len(idxs) > 0 {
		if err := e.store.MarkAccessed(idxs, opts.NowMs); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (e *Engine) vectorCandidates(opts SearchOptions, poolSize int) ([]ScoredChunk, error) {
	if len(opts.QueryEmbedding) == 0 {
		return nil, nil
	}
	all, err := e.store.AllActiveChunks()
	if err != nil {
		return nil, err
	}
	var scored []ScoredChunk
	for _, c := range all {
		if opts.ScopeID != "" && c.ScopeID != opts.ScopeID {
			continue
		}
		sim := cosineSimilarity(opts.QueryEmbedding, c.Embedding)
		scored = append(scored, ScoredChunk{Chunk: c, Score: sim})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > poolSize {
		scored = scored[:poolSize]
	}
	for i := range scored {
		scored[i].VectorRank = i + 1
	}
	return scored, nil
}

func (e *Engine) textCandidates(opts SearchOptions, poolSize int) ([]ScoredChunk, error) {
	query := strings.TrimSpace(opts.QueryText)
	if query == "" {
		return nil, nil
	}
	rows, err := e.store.db.Query(
		`SELECT `+ftsChunkColumns()+`
		 FROM chunks_fts
		 JOIN chunks ON chunks.chunk_idx = chunks_fts.rowid
		 WHERE chunks_fts MATCH ? AND chunks.active = 1
		 ORDER BY bm25(chunks_fts)
		 LIMIT ?`,
		query, poolSize,
	)
	if err != nil {
		return nil, fmt.Errorf("memoryindex: text search: %w", err)
	}
	defer rows.Close()

	var out []ScoredChunk
	rank := 0
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		if opts.ScopeID != "" && c.ScopeID != opts.ScopeID {
			continue
		}
		rank++
		out = append(out, ScoredChunk{Chunk: c, TextRank: rank})
	}
	return out, rows.Err()
}

// ftsChunkColumns mirrors chunkColumns, qualified for the chunks_fts join.
func ftsChunkColumns() string {
	cols := strings.Split(chunkColumns, ", ")
	for i, c := range cols {
		cols[i] = "chunks." + c
	}
	return strings.Join(cols, ", ")
}

// fuseRankings merges two independently ranked candidate lists with
// reciprocal rank fusion: score = weight/(k+rank) summed across whichever
// lists a chunk appears in.
func fuseRankings(vector, text []ScoredChunk, vectorWeight, textWeight float64, k int) []ScoredChunk {
	byIdx := make(map[int64]*ScoredChunk)
	order := make([]int64, 0, len(vector)+len(text))

	add := func(sc ScoredChunk) *ScoredChunk {
		if existing, ok := byIdx[sc.Chunk.ChunkIdx]; ok {
			return existing
		}
		cp := sc
		cp.Score = 0
		byIdx[sc.Chunk.ChunkIdx] = &cp
		order = append(order, sc.Chunk.ChunkIdx)
		return byIdx[sc.Chunk.ChunkIdx]
	}

	for _, sc := range vector {
		entry := add(sc)
		entry.VectorRank = sc.VectorRank
		entry.Score += vectorWeight / float64(k+sc.VectorRank)
	}
	for _, sc := range text {
		entry := add(sc)
		entry.TextRank = sc.TextRank
		entry.Score += textWeight / float64(k+sc.TextRank)
	}

	out := make([]ScoredChunk, len(order))
	for i, idx := range order {
		out[i] = *byIdx[idx]
	}
	return out
}

func recencyBoost(createdAtMs, nowMs int64, halfLifeDays float64) float64 {
	if nowMs <= createdAtMs || halfLifeDays <= 0 {
		return 2.0
	}
	ageDays := float64(nowMs-createdAtMs) / float64(dayMsSearch)
	return 1 + math.Pow(2, -ageDays/halfLifeDays)
}

func accessBoost(accessCount int, accessWeight float64) float64 {
	if accessCount <= 0 || accessWeight <= 0 {
		return 1
	}
	return 1 + math.Log1p(float64(accessCount))*accessWeight
}

const dayMsSearch = 24 * 60 * 60 * 1000

func sortByScoreDesc(results []ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

func chunksOf(results []ScoredChunk) []Chunk {
	out := make([]Chunk, len(results))
	for i, r := range results {
		out[i] = r.Chunk
	}
	return out
}

func filterResultsByChunks(results []ScoredChunk, allowed []Chunk) []ScoredChunk {
	allowedIdx := make(map[int64]bool, len(allowed))
	for _, c := range allowed {
		allowedIdx[c.ChunkIdx] = true
	}
	out := results[:0:0]
	for _, r := range results {
		if allowedIdx[r.Chunk.ChunkIdx] {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) applyPrefilterHook(chunks []Chunk, hooks SearchHooks) []Chunk {
	if hooks.Prefilter == nil {
		return chunks
	}
	chunks = hooks.Prefilter(chunks)
	if hooks.PolicyGate != nil {
		chunks = hooks.PolicyGate(chunks)
	}
	return chunks
}

func (e *Engine) applyNeighborExpansionHook(results []ScoredChunk, hooks SearchHooks) []ScoredChunk {
	if hooks.NeighborExpansion == nil {
		return results
	}
	results = hooks.NeighborExpansion(results)
	if hooks.PolicyGate != nil {
		chunks := e.applyPolicyGateToResults(results, hooks.PolicyGate)
		results = filterResultsByChunks(results, chunks)
	}
	return results
}

func (e *Engine) applyRerankHook(results []ScoredChunk, hooks SearchHooks) []ScoredChunk {
	if hooks.Rerank == nil {
		return results
	}
	results = hooks.Rerank(results)
	if hooks.PolicyGate != nil {
		chunks := e.applyPolicyGateToResults(results, hooks.PolicyGate)
		results = filterResultsByChunks(results, chunks)
	}
	return results
}

func (e *Engine) applyPolicyGateToResults(results []ScoredChunk, gate PolicyGate) []Chunk {
	return gate(chunksOf(results))
}
