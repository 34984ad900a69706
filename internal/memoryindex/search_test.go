package memoryindex

import (
	"testing"
)

func insertTestChunk(t *testing.T, store *Store, chunkID, scopeID, path, content string, emb Embedding, createdAtMs int64) Chunk {
	t.Helper()
	idx, _, err := store.InsertChunkIgnoreConflict(Chunk{
		ChunkID:     chunkID,
		ScopeID:     scopeID,
		Path:        path,
		StartLine:   0,
		EndLine:     0,
		Content:     content,
		ContentHash: contentHash(content),
		TokenCount:  estimateTokens(content),
		Embedding:   emb,
		CreatedAtMs: createdAtMs,
	})
	if err != nil {
		t.Fatalf("insert chunk %s: %v", chunkID, err)
	}
	c, err := store.ChunkByIdx(idx)
	if err != nil {
		t.Fatalf("ChunkByIdx: %v", err)
	}
	return c
}

func TestEngine_Search_VectorOnlyRanksByCosineSimilarity(t *testing.T) {
	store := openTestStore(t)
	insertTestChunk(t, store, "c1", "scope-a", "notes.md", "grocery list for the week", Embedding{1, 0, 0}, 1000)
	insertTestChunk(t, store, "c2", "scope-a", "notes.md", "unrelated content about cars", Embedding{0, 1, 0}, 1000)

	engine := NewEngine(store)
	results, err := engine.Search(SearchOptions{
		ScopeID:        "scope-a",
		QueryEmbedding: Embedding{1, 0, 0},
		TopK:           5,
		NowMs:          1000,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one result")
	}
	if results[0].Chunk.ChunkID != "c1" {
		t.Fatalf("expected c1 ranked first, got %s", results[0].Chunk.ChunkID)
	}
}

func TestEngine_Search_ScopeIsolation(t *testing.T) {
	store := openTestStore(t)
	insertTestChunk(t, store, "c1", "scope-a", "notes.md", "shared topic keyword", Embedding{1, 0, 0}, 1000)
	insertTestChunk(t, store, "c2", "scope-b", "notes.md", "shared topic keyword", Embedding{1, 0, 0}, 1000)

	engine := NewEngine(store)
	results, err := engine.Search(SearchOptions{
		ScopeID:        "scope-a",
		QueryEmbedding: Embedding{1, 0, 0},
		TopK:           5,
		NowMs:          1000,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Chunk.ScopeID != "scope-a" {
			t.Fatalf("result leaked chunk from scope %s", r.Chunk.ScopeID)
		}
	}
}

func TestEngine_Search_MinScoreCutoffDropsWeakMatches(t *testing.T) {
	store := openTestStore(t)
	insertTestChunk(t, store, "c1", "scope-a", "notes.md", "strong match", Embedding{1, 0, 0}, 1000)
	insertTestChunk(t, store, "c2", "scope-a", "notes.md", "orthogonal", Embedding{0, 1, 0}, 1000)

	engine := NewEngine(store)
	results, err := engine.Search(SearchOptions{
		ScopeID:        "scope-a",
		QueryEmbedding: Embedding{1, 0, 0},
		TopK:           5,
		MinScore:       0.5,
		NowMs:          1000,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Chunk.ChunkID == "c2" {
			t.Fatalf("expected orthogonal chunk to be cut off by minScore")
		}
	}
}

func TestEngine_Search_PrefilterHookNarrowsResults(t *testing.T) {
	store := openTestStore(t)
	insertTestChunk(t, store, "c1", "scope-a", "notes.md", "alpha", Embedding{1, 0, 0}, 1000)
	insertTestChunk(t, store, "c2", "scope-a", "notes.md", "beta", Embedding{0.9, 0.1, 0}, 1000)

	engine := NewEngine(store)
	results, err := engine.Search(SearchOptions{
		ScopeID:        "scope-a",
		QueryEmbedding: Embedding{1, 0, 0},
		TopK:           5,
		NowMs:          1000,
		Hooks: SearchHooks{
			Prefilter: func(chunks []Chunk) []Chunk {
				var out []Chunk
				for _, c := range chunks {
					if c.ChunkID == "c1" {
						out = append(out, c)
					}
				}
				return out
			},
		},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ChunkID != "c1" {
		t.Fatalf("expected prefilter to narrow to c1 only, got %+v", results)
	}
}

func TestEngine_Search_PolicyGateAppliedAfterNeighborExpansion(t *testing.T) {
	store := openTestStore(t)
	allowed := insertTestChunk(t, store, "c1", "scope-a", "notes.md", "allowed content", Embedding{1, 0, 0}, 1000)
	forbidden := insertTestChunk(t, store, "c2", "scope-a", "notes.md", "forbidden content", Embedding{0.9, 0, 0}, 1000)

	engine := NewEngine(store)
	results, err := engine.Search(SearchOptions{
		ScopeID:        "scope-a",
		QueryEmbedding: Embedding{1, 0, 0},
		TopK:           5,
		NowMs:          1000,
		Hooks: SearchHooks{
			NeighborExpansion: func(results []ScoredChunk) []ScoredChunk {
				return append(results, ScoredChunk{Chunk: forbidden, Score: 0.9})
			},
			PolicyGate: func(chunks []Chunk) []Chunk {
				var out []Chunk
				for _, c := range chunks {
					if c.ChunkID == allowed.ChunkID {
						out = append(out, c)
					}
				}
				return out
			},
		},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Chunk.ChunkID == forbidden.ChunkID {
			t.Fatalf("policy gate should have excluded the forbidden chunk injected by neighbor expansion")
		}
	}
}

func TestEngine_Search_MarksAccessedChunks(t *testing.T) {
	store := openTestStore(t)
	c := insertTestChunk(t, store, "c1", "scope-a", "notes.md", "content", Embedding{1, 0, 0}, 1000)

	engine := NewEngine(store)
	_, err := engine.Search(SearchOptions{
		ScopeID:        "scope-a",
		QueryEmbedding: Embedding{1, 0, 0},
		TopK:           5,
		NowMs:          5000,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	updated, err := store.ChunkByIdx(c.ChunkIdx)
	if err != nil {
		t.Fatalf("ChunkByIdx: %v", err)
	}
	if updated.AccessCount != 1 {
		t.Fatalf("expected access count 1, got %d", updated.AccessCount)
	}
	if updated.AccessedAtMs == nil || *updated.AccessedAtMs != 5000 {
		t.Fatalf("expected accessedAtMs 5000, got %v", updated.AccessedAtMs)
	}
}
