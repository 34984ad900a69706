package memoryindex

import (
	"database/sql"
	"errors"
	"fmt"
)

// TranscriptWatermarkKey is the meta key holding the last-indexed transcript
// offset (spec.md §4.5).
const TranscriptWatermarkKey = "transcript_last_indexed_offset"

// TranscriptLastIndexedAtKey records the wall-clock time of the last
// successful transcript sync.
const TranscriptLastIndexedAtKey = "transcript_last_indexed_at_ms"

// GetMeta returns the stored value for key, or ("", false, nil) if unset.
func (s *Store) GetMeta(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("memoryindex: get meta %s: %w", key, err)
	}
	return v, true, nil
}

// SetMeta upserts key/value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("memoryindex: set meta %s: %w", key, err)
	}
	return nil
}

// GetEmbeddingCache returns the cached embedding for contentHash, if any.
func (s *Store) GetEmbeddingCache(contentHash string) (Embedding, bool, error) {
	var buf []byte
	err := s.db.QueryRow(`SELECT embedding FROM embedding_cache WHERE content_hash = ?`, contentHash).Scan(&buf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("memoryindex: get embedding cache %s: %w", contentHash, err)
	}
	return decodeEmbedding(buf), true, nil
}

// SetEmbeddingCache stores an embedding by content hash.
func (s *Store) SetEmbeddingCache(contentHash string, emb Embedding) error {
	_, err := s.db.Exec(
		`INSERT INTO embedding_cache (content_hash, embedding) VALUES (?, ?) ON CONFLICT(content_hash) DO UPDATE SET embedding = excluded.embedding`,
		contentHash, encodeEmbedding(emb),
	)
	if err != nil {
		return fmt.Errorf("memoryindex: set embedding cache %s: %w", contentHash, err)
	}
	return nil
}
