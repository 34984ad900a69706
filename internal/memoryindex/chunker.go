package memoryindex

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// linesPerChunk bounds how many source lines are grouped into one chunk.
// Matching the "chunk the file" instruction in spec.md §4.5 without a
// prescribed chunk size; 40 lines keeps chunks small enough for embedding
// while avoiding a chunk per line.
const linesPerChunk = 40

// chunkSpec is one candidate chunk before it is embedded or persisted.
type chunkSpec struct {
	startLine   int
	endLine     int
	content     string
	contentHash string
	chunkID     string
}

// stableChunkID derives a deterministic id from the source path and the
// chunk's line boundaries, so re-chunking an unchanged file always produces
// the same id set (spec.md glossary: "stable chunk id").
func stableChunkID(path string, startLine, endLine int) string {
	sum := sha256.Sum256([]byte(path + "#" + strconv.Itoa(startLine) + "-" + strconv.Itoa(endLine)))
	return hex.EncodeToString(sum[:16])
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// chunkLines splits content into line-windowed chunkSpecs.
func chunkLines(path, content string) []chunkSpec {
	lines := strings.Split(content, "\n")
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
		specs = append(specs, chunkSpec{
			startLine:   start,
			endLine:     end - 1,
			content:     body,
			contentHash: contentHash(body),
			chunkID:     stableChunkID(path, start, end-1),
		})
	}
	return specs
}

// estimateTokens is a rough token-count heuristic (characters / 4), used
// only for reporting, not for truncation decisions.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
