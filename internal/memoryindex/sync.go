package memoryindex

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Embedder computes embeddings for a batch of texts in one round trip. The
// remote embedding API is a named out-of-scope external collaborator
// (spec.md §1); this package only depends on the interface.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
}

// Manager runs the markdown and transcript sync algorithms against a Store.
type Manager struct {
	store               *Store
	embedder            Embedder
	similarityThreshold float64
	maxNewLinesPerSync  int
	logger              *slog.Logger
}

// NewManager constructs a Manager with the spec's defaults: similarity
// threshold 0.9, 200 new transcript lines per sync (spec.md §4.5).
func NewManager(store *Store, embedder Embedder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:               store,
		embedder:            embedder,
		similarityThreshold: 0.9,
		maxNewLinesPerSync:  200,
		logger:              logger,
	}
}

func fileContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SyncMarkdownScope runs the markdown sync algorithm (spec.md §4.5) over
// every .md file under dir, tracked against scopeID.
func (m *Manager) SyncMarkdownScope(ctx context.Context, scopeID, dir string, nowMs int64) error {
	present := make(map[string]bool)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return fmt.Errorf("memoryindex: read dir %s: %w", dir, err)
		}
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		present[filepath.Join(dir, e.Name())] = true
	}

	tracked, err := m.store.FilesForScope(scopeID)
	if err != nil {
		return fmt.Errorf("memoryindex: list tracked files: %w", err)
	}
	for _, f := range tracked {
		if present[f.Path] {
			continue
		}
		// Step 1: file no longer exists — supersede its active chunks and
		// drop the file row.
		if err := m.store.SupersedeActiveChunksForPath(f.Path); err != nil {
			return err
		}
		if err := m.store.DeleteFile(f.Path); err != nil {
			return err
		}
	}

	for path := range present {
		if err := m.syncMarkdownFile(ctx, scopeID, path, nowMs); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) syncMarkdownFile(ctx context.Context, scopeID, path string, nowMs int64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("memoryindex: read %s: %w", path, err)
	}
	hash := fileContentHash(data)

	existingFile, err := m.store.GetFile(path)
	if err != nil {
		return err
	}
	if existingFile != nil && existingFile.ContentHash == hash {
		return nil // Step 2: unchanged, skip.
	}

	specs := chunkLines(path, string(data))
	if err := m.indexChunks(ctx, scopeID, path, specs); err != nil {
		// Watermark invariant: the file row is only updated after a
		// successful index, so a retry re-chunks the same content.
		return err
	}

	return m.store.UpsertFile(path, scopeID, hash, nowMs)
}

// indexChunks implements steps 3-5 of the markdown sync algorithm: embed
// misses, insert-or-reuse by stable chunk id, and supersede stale chunks by
// cosine similarity to their closest replacement.
func (m *Manager) indexChunks(ctx context.Context, scopeID, path string, specs []chunkSpec) error {
	existing, err := m.store.ActiveChunksForPath(path)
	if err != nil {
		return err
	}
	existingByID := make(map[string]Chunk, len(existing))
	for _, c := range existing {
		existingByID[c.ChunkID] = c
	}

	newIDs := make(map[string]bool, len(specs))
	for _, spec := range specs {
		newIDs[spec.chunkID] = true
	}

	var misses []chunkSpec
	embeddings := make(map[string]Embedding)
	for _, spec := range specs {
		if _, retained := existingByID[spec.chunkID]; retained {
			continue
		}
		cached, ok, err := m.store.GetEmbeddingCache(spec.contentHash)
		if err != nil {
			return err
		}
		if ok {
			embeddings[spec.contentHash] = cached
			continue
		}
		misses = append(misses, spec)
	}

	if len(misses) > 0 {
		texts := make([]string, len(misses))
		for i, spec := range misses {
			texts[i] = spec.content
		}
		newEmbeddings, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("memoryindex: embed batch: %w", err)
		}
		if len(newEmbeddings) != len(misses) {
			return fmt.Errorf("memoryindex: embedder returned %d embeddings for %d inputs", len(newEmbeddings), len(misses))
		}
		for i, spec := range misses {
			embeddings[spec.contentHash] = newEmbeddings[i]
			if err := m.store.SetEmbeddingCache(spec.contentHash, newEmbeddings[i]); err != nil {
				return err
			}
		}
	}

	insertedIdx := make(map[string]int64) // chunkID -> idx
	insertedEmbedding := make(map[string]Embedding)
	for _, spec := range specs {
		if _, retained := existingByID[spec.chunkID]; retained {
			continue
		}
		emb := embeddings[spec.contentHash]
		idx, _, err := m.store.InsertChunkIgnoreConflict(Chunk{
			ChunkID:     spec.chunkID,
			ScopeID:     scopeID,
			Path:        path,
			StartLine:   spec.startLine,
			EndLine:     spec.endLine,
			Content:     spec.content,
			ContentHash: spec.contentHash,
			TokenCount:  estimateTokens(spec.content),
			Embedding:   emb,
			CreatedAtMs: 0,
		})
		if err != nil {
			return err
		}
		insertedIdx[spec.chunkID] = idx
		insertedEmbedding[spec.chunkID] = emb
	}

	var toSupersede []Chunk
	for id, c := range existingByID {
		if !newIDs[id] {
			toSupersede = append(toSupersede, c)
		}
	}
	return m.supersedeAgainst(toSupersede, insertedIdx, insertedEmbedding)
}

// supersedeAgainst finds, for each old chunk, the newly inserted chunk with
// highest cosine similarity, and supersedes it there if the similarity
// clears the threshold — otherwise supersedes with no replacement.
func (m *Manager) supersedeAgainst(old []Chunk, insertedIdx map[string]int64, insertedEmbedding map[string]Embedding) error {
	if len(old) == 0 {
		return nil
	}

	groups := make(map[int64][]int64) // targetIdx -> old idxs
	var noMatch []int64

	for _, oldChunk := range old {
		bestSim := -1.0
		var bestIdx int64
		found := false
		for id, newIdx := range insertedIdx {
			sim := cosineSimilarity(oldChunk.Embedding, insertedEmbedding[id])
			if sim > bestSim {
				bestSim = sim
				bestIdx = newIdx
				found = true
			}
		}
		if found && bestSim >= m.similarityThreshold {
			groups[bestIdx] = append(groups[bestIdx], oldChunk.ChunkIdx)
		} else {
			noMatch = append(noMatch, oldChunk.ChunkIdx)
		}
	}

	targets := make([]int64, 0, len(groups))
	for t := range groups {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	for _, t := range targets {
		target := t
		if err := m.store.SupersedeChunks(groups[t], &target); err != nil {
			return err
		}
	}
	if len(noMatch) > 0 {
		if err := m.store.SupersedeChunks(noMatch, nil); err != nil {
			return err
		}
	}
	return nil
}

// resolveEmbeddings returns an embedding per content hash for specs,
// filling the embedding cache for any miss with a single batched call.
func (m *Manager) resolveEmbeddings(ctx context.Context, specs []chunkSpec) (map[string]Embedding, error) {
	embeddings := make(map[string]Embedding, len(specs))
	var misses []chunkSpec
	for _, spec := range specs {
		if _, ok := embeddings[spec.contentHash]; ok {
			continue
		}
		cached, ok, err := m.store.GetEmbeddingCache(spec.contentHash)
		if err != nil {
			return nil, err
		}
		if ok {
			embeddings[spec.contentHash] = cached
			continue
		}
		misses = append(misses, spec)
	}
	if len(misses) == 0 {
		return embeddings, nil
	}

	texts := make([]string, len(misses))
	for i, spec := range misses {
		texts[i] = spec.content
	}
	newEmbeddings, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("memoryindex: embed batch: %w", err)
	}
	if len(newEmbeddings) != len(misses) {
		return nil, fmt.Errorf("memoryindex: embedder returned %d embeddings for %d inputs", len(newEmbeddings), len(misses))
	}
	for i, spec := range misses {
		embeddings[spec.contentHash] = newEmbeddings[i]
		if err := m.store.SetEmbeddingCache(spec.contentHash, newEmbeddings[i]); err != nil {
			return nil, err
		}
	}
	return embeddings, nil
}

// chunkTranscriptLines windows freshly read transcript lines into chunkSpecs
// whose line numbers are absolute offsets into the transcript file, so the
// derived chunk ids stay stable across syncs.
func chunkTranscriptLines(path string, startOffset int, lines []string) []chunkSpec {
	var specs []chunkSpec
	for start := 0; start < len(lines); start += linesPerChunk {
		end := start + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		startLine := startOffset + start
		endLine := startOffset + end - 1
		specs = append(specs, chunkSpec{
			startLine:   startLine,
			endLine:     endLine,
			content:     body,
			contentHash: contentHash(body),
			chunkID:     stableChunkID(path, startLine, endLine),
		})
	}
	return specs
}

// SyncTranscript implements the transcript sync algorithm (spec.md §4.5):
// read up to maxNewLinesPerSync new lines past the stored watermark, chunk
// and embed them, insert idempotently, and only on full success advance the
// watermark. Any error along the way must leave the persisted watermark
// untouched so the next sync retries the same range.
func (m *Manager) SyncTranscript(ctx context.Context, scopeID, transcriptPath string, nowMs int64) error {
	watermarkKey := scopeTranscriptKey(scopeID)
	watermarkStr, ok, err := m.store.GetMeta(watermarkKey)
	if err != nil {
		return err
	}
	startOffset := 0
	if ok {
		startOffset, err = strconv.Atoi(watermarkStr)
		if err != nil {
			return fmt.Errorf("memoryindex: malformed transcript watermark %q: %w", watermarkStr, err)
		}
	}

	f, err := os.Open(transcriptPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("memoryindex: open transcript %s: %w", transcriptPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	var newLines []string
	for scanner.Scan() {
		if lineNo >= startOffset && len(newLines) < m.maxNewLinesPerSync {
			newLines = append(newLines, scanner.Text())
		}
		lineNo++
		if len(newLines) >= m.maxNewLinesPerSync {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("memoryindex: scan transcript %s: %w", transcriptPath, err)
	}
	if len(newLines) == 0 {
		return nil
	}

	specs := chunkTranscriptLines(transcriptPath, startOffset, newLines)
	embeddings, err := m.resolveEmbeddings(ctx, specs)
	if err != nil {
		// Watermark stays untouched: next sync re-reads the same range.
		return err
	}
	for _, spec := range specs {
		_, _, err := m.store.InsertChunkIgnoreConflict(Chunk{
			ChunkID:     spec.chunkID,
			ScopeID:     scopeID,
			Path:        transcriptPath,
			StartLine:   spec.startLine,
			EndLine:     spec.endLine,
			Content:     spec.content,
			ContentHash: spec.contentHash,
			TokenCount:  estimateTokens(spec.content),
			Embedding:   embeddings[spec.contentHash],
			CreatedAtMs: nowMs,
		})
		if err != nil {
			return err
		}
	}

	endOffset := startOffset + len(newLines)
	if err := m.store.SetMeta(watermarkKey, strconv.Itoa(endOffset)); err != nil {
		return err
	}
	return m.store.SetMeta(scopeTranscriptIndexedAtKey(scopeID), strconv.FormatInt(nowMs, 10))
}

func scopeTranscriptKey(scopeID string) string {
	return TranscriptWatermarkKey + ":" + scopeID
}

func scopeTranscriptIndexedAtKey(scopeID string) string {
	return TranscriptLastIndexedAtKey + ":" + scopeID
}
