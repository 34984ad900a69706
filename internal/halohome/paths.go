// Package halohome resolves the HALO_HOME directory layout and the
// scope-id-to-filename hashing scheme shared by the session store, the
// transcript store, the markdown memory tree, and the scope file registry.
package halohome

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// Root resolves HALO_HOME, defaulting to ~/.halo.
func Root() string {
	if v := os.Getenv("HALO_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".halo"
	}
	return filepath.Join(home, ".halo")
}

// HashScope returns the SHA-256 hex digest of a scope id, used as the
// filename stem for per-scope session/transcript files.
func HashScope(scopeID string) string {
	sum := sha256.Sum256([]byte(scopeID))
	return hex.EncodeToString(sum[:])
}

// ConfigPath returns the top-level runtime config path.
func ConfigPath(root string) string { return filepath.Join(root, "config.json") }

// FamilyConfigPath returns the default legacy v1 family config path.
func FamilyConfigPath(root string) string { return filepath.Join(root, "config", "family.json") }

// SessionsDir, TranscriptsDir, MemoryScopesDir, FileMemoryDir, LogsDir,
// AuditDir and IncidentsDir mirror the persisted layout in spec.md §6.
func SessionsDir(root string) string   { return filepath.Join(root, "sessions") }
func TranscriptsDir(root string) string { return filepath.Join(root, "transcripts") }
func MemoryScopesDir(root string) string { return filepath.Join(root, "memory", "scopes") }
func FileMemoryDir(root string) string { return filepath.Join(root, "file-memory", "scopes") }
func LogsDir(root string) string       { return filepath.Join(root, "logs") }
func AuditDir(root string) string      { return filepath.Join(root, "audit") }
func IncidentsDir(root string) string  { return filepath.Join(root, "incidents") }

// SessionFile returns the path to a scope's session JSONL file.
func SessionFile(root, scopeID string) string {
	return filepath.Join(SessionsDir(root), HashScope(scopeID)+".jsonl")
}

// TranscriptFile returns the path to a scope's transcript JSONL file.
func TranscriptFile(root, scopeID string) string {
	return filepath.Join(TranscriptsDir(root), HashScope(scopeID)+".jsonl")
}

// MemoryScopeDir returns the directory holding a scope's markdown context files.
func MemoryScopeDir(root, scopeID string) string {
	return filepath.Join(MemoryScopesDir(root), HashScope(scopeID))
}

// FileRegistryPath returns the path to a scope's file registry. Unlike
// sessions/transcripts/memory, scope directories here are NOT hashed — the
// raw scope id is used verbatim as a directory name (spec.md §6).
func FileRegistryPath(root, scopeID string) string {
	return filepath.Join(FileMemoryDir(root), scopeID, "registry.json")
}

// EventsLogFile returns the path to the event log read by /events/tail.
func EventsLogFile(root string) string { return filepath.Join(LogsDir(root), "events.jsonl") }

// OperationalAuditFile returns the path to the operational audit log.
func OperationalAuditFile(root string) string {
	return filepath.Join(AuditDir(root), "operational.jsonl")
}
