package memoryindex

import (
	"database/sql"
	"errors"
	"fmt"
)

// FileRow tracks one source file's last-indexed content hash.
type FileRow struct {
	Path        string
	ScopeID     string
	ContentHash string
	UpdatedAtMs int64
}

// GetFile returns the tracked row for path, or (nil, nil) if untracked.
func (s *Store) GetFile(path string) (*FileRow, error) {
	var f FileRow
	err := s.db.QueryRow(`SELECT path, scope_id, content_hash, updated_at_ms FROM files WHERE path = ?`, path).
		Scan(&f.Path, &f.ScopeID, &f.ContentHash, &f.UpdatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memoryindex: get file %s: %w", path, err)
	}
	return &f, nil
}

// UpsertFile records path's current content hash and scope.
func (s *Store) UpsertFile(path, scopeID, contentHash string, nowMs int64) error {
	_, err := s.db.Exec(
		`INSERT INTO files (path, scope_id, content_hash, updated_at_ms) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET content_hash = excluded.content_hash, updated_at_ms = excluded.updated_at_ms`,
		path, scopeID, contentHash, nowMs,
	)
	if err != nil {
		return fmt.Errorf("memoryindex: upsert file %s: %w", path, err)
	}
	return nil
}

// DeleteFile removes path's tracked row.
func (s *Store) DeleteFile(path string) error {
	_, err := s.db.Exec(`DELETE FROM files WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("memoryindex: delete file %s: %w", path, err)
	}
	return nil
}

// FilesForScope lists every tracked file path under a scope.
func (s *Store) FilesForScope(scopeID string) ([]FileRow, error) {
	rows, err := s.db.Query(`SELECT path, scope_id, content_hash, updated_at_ms FROM files WHERE scope_id = ?`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("memoryindex: list files for scope %s: %w", scopeID, err)
	}
	defer rows.Close()
	var out []FileRow
	for rows.Next() {
		var f FileRow
		if err := rows.Scan(&f.Path, &f.ScopeID, &f.ContentHash, &f.UpdatedAtMs); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
