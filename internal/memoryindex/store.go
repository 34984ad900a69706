// Package memoryindex is the transcript/memory sync manager and its backing
// vector store: Files/Chunks/EmbeddingCache/Meta tables in a pure-Go sqlite
// database (modernc.org/sqlite, no cgo), with an FTS5 virtual table feeding
// the text side of the semantic search engine's rank fusion.
//
// The cosine-similarity chunk-supersession math is grounded on the
// in-memory vector store in the retrieval pack (index.LocalStore), adapted
// here to run against rows read back from sqlite instead of an in-process
// slice.
package memoryindex

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store owns the sqlite connection backing one halo home's memory index.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and ensures
// its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memoryindex: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer, matches single-process model
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	scope_id TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	updated_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_idx INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id TEXT NOT NULL UNIQUE,
	scope_id TEXT NOT NULL,
	path TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	embedding BLOB,
	active INTEGER NOT NULL DEFAULT 1,
	superseded_by INTEGER,
	created_at_ms INTEGER NOT NULL,
	accessed_at_ms INTEGER,
	access_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);
CREATE INDEX IF NOT EXISTS idx_chunks_scope_active ON chunks(scope_id, active);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	content,
	content='chunks',
	content_rowid='chunk_idx'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
	INSERT INTO chunks_fts(rowid, content) VALUES (new.chunk_idx, new.content);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.chunk_idx, old.content);
END;

CREATE TABLE IF NOT EXISTS embedding_cache (
	content_hash TEXT PRIMARY KEY,
	embedding BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("memoryindex: migrate: %w", err)
	}
	return nil
}
