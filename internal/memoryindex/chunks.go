package memoryindex

import (
	"database/sql"
	"errors"
	"fmt"
)

// Chunk is one indexed slice of a source file or transcript, mirroring the
// Chunks table in spec.md §3.
type Chunk struct {
	ChunkIdx     int64
	ChunkID      string
	ScopeID      string
	Path         string
	StartLine    int
	EndLine      int
	Content      string
	ContentHash  string
	TokenCount   int
	Embedding    Embedding
	Active       bool
	SupersededBy *int64
	CreatedAtMs  int64
	AccessedAtMs *int64
	AccessCount  int
}

func scanChunk(row interface{ Scan(...any) error }) (Chunk, error) {
	var c Chunk
	var embBuf []byte
	var active int
	var supersededBy sql.NullInt64
	var accessedAt sql.NullInt64
	err := row.Scan(&c.ChunkIdx, &c.ChunkID, &c.ScopeID, &c.Path, &c.StartLine, &c.EndLine,
		&c.Content, &c.ContentHash, &c.TokenCount, &embBuf, &active, &supersededBy,
		&c.CreatedAtMs, &accessedAt, &c.AccessCount)
	if err != nil {
		return Chunk{}, err
	}
	c.Embedding = decodeEmbedding(embBuf)
	c.Active = active != 0
	if supersededBy.Valid {
		v := supersededBy.Int64
		c.SupersededBy = &v
	}
	if accessedAt.Valid {
		v := accessedAt.Int64
		c.AccessedAtMs = &v
	}
	return c, nil
}

const chunkColumns = `chunk_idx, chunk_id, scope_id, path, start_line, end_line, content, content_hash, token_count, embedding, active, superseded_by, created_at_ms, accessed_at_ms, access_count`

// ActiveChunksForPath returns every active chunk indexed for path.
func (s *Store) ActiveChunksForPath(path string) ([]Chunk, error) {
	rows, err := s.db.Query(`SELECT `+chunkColumns+` FROM chunks WHERE path = ? AND active = 1`, path)
	if err != nil {
		return nil, fmt.Errorf("memoryindex: query active chunks: %w", err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertChunkIgnoreConflict inserts a chunk, or — on a chunk_id conflict —
// returns the existing row's id. This is the mandatory safe path spec.md §9
// calls out: implementers must use the idempotent insert, never a bare
// INSERT that can throw on re-sync.
func (s *Store) InsertChunkIgnoreConflict(c Chunk) (chunkIdx int64, inserted bool, err error) {
	res, err := s.db.Exec(
		`INSERT INTO chunks (chunk_id, scope_id, path, start_line, end_line, content, content_hash, token_count, embedding, active, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		 ON CONFLICT(chunk_id) DO NOTHING`,
		c.ChunkID, c.ScopeID, c.Path, c.StartLine, c.EndLine, c.Content, c.ContentHash, c.TokenCount,
		encodeEmbedding(c.Embedding), c.CreatedAtMs,
	)
	if err != nil {
		return 0, false, fmt.Errorf("memoryindex: insert chunk %s: %w", c.ChunkID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	}

	var existingID int64
	err = s.db.QueryRow(`SELECT chunk_idx FROM chunks WHERE chunk_id = ?`, c.ChunkID).Scan(&existingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, fmt.Errorf("memoryindex: chunk %s conflicted but no existing row found", c.ChunkID)
		}
		return 0, false, err
	}
	return existingID, false, nil
}

// SupersedeChunks marks oldChunkIdxs inactive, pointing supersededBy at
// newChunkIdx (nil when no sufficiently similar replacement was found).
func (s *Store) SupersedeChunks(oldChunkIdxs []int64, newChunkIdx *int64) error {
	if len(oldChunkIdxs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE chunks SET active = 0, superseded_by = ? WHERE chunk_idx = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, idx := range oldChunkIdxs {
		if newChunkIdx == nil {
			if _, err := stmt.Exec(nil, idx); err != nil {
				return fmt.Errorf("memoryindex: supersede chunk %d: %w", idx, err)
			}
			continue
		}
		if *newChunkIdx == idx {
			return fmt.Errorf("memoryindex: chunk %d cannot supersede itself", idx)
		}
		if _, err := stmt.Exec(*newChunkIdx, idx); err != nil {
			return fmt.Errorf("memoryindex: supersede chunk %d: %w", idx, err)
		}
	}
	return tx.Commit()
}

// DeleteChunksForPath removes every chunk row for path (used when a
// tracked markdown file has been deleted from disk).
func (s *Store) DeleteChunksForPath(path string) error {
	_, err := s.db.Exec(`DELETE FROM chunks WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("memoryindex: delete chunks for %s: %w", path, err)
	}
	return nil
}

// SupersedeActiveChunksForPath marks every active chunk for path as
// superseded by nothing (used when the file itself disappears).
func (s *Store) SupersedeActiveChunksForPath(path string) error {
	_, err := s.db.Exec(`UPDATE chunks SET active = 0, superseded_by = NULL WHERE path = ? AND active = 1`, path)
	if err != nil {
		return fmt.Errorf("memoryindex: supersede active chunks for %s: %w", path, err)
	}
	return nil
}

// MarkAccessed bumps the access count and timestamp for the given chunk ids,
// used by the semantic search engine after returning results.
func (s *Store) MarkAccessed(chunkIdxs []int64, atMs int64) error {
	if len(chunkIdxs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`UPDATE chunks SET access_count = access_count + 1, accessed_at_ms = ? WHERE chunk_idx = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, idx := range chunkIdxs {
		if _, err := stmt.Exec(atMs, idx); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ChunkByIdx fetches a single chunk by its auto id.
func (s *Store) ChunkByIdx(idx int64) (Chunk, error) {
	row := s.db.QueryRow(`SELECT `+chunkColumns+` FROM chunks WHERE chunk_idx = ?`, idx)
	return scanChunk(row)
}

// AllActiveChunks returns every active chunk in the store, used by the
// vector side of search (no ANN index: full scan + cosine, acceptable at
// household scale).
func (s *Store) AllActiveChunks() ([]Chunk, error) {
	rows, err := s.db.Query(`SELECT ` + chunkColumns + ` FROM chunks WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("memoryindex: query all active chunks: %w", err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
