// Package audit appends operational audit entries (lane/backup actions) to
// audit/operational.jsonl, one JSON object per line. Grounded on the
// teacher's atomic-append session persistence (internal/sessions/manager.go),
// adapted from "rewrite the whole file" to "append one line, fsync, close"
// since this is an append-only event log rather than a mutable snapshot.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Action is the closed set of audited operational actions (spec.md §4.7).
type Action string

const (
	ActionLaneExport     Action = "lane_export"
	ActionLaneDelete     Action = "lane_delete"
	ActionLaneRetention  Action = "lane_retention"
	ActionBackupCreate   Action = "backup_create"
	ActionBackupRestore  Action = "backup_restore"
)

// Decision is the outcome recorded for an audited action.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionFail  Decision = "fail"
)

// Entry is one operational audit log line.
type Entry struct {
	ID         string    `json:"id"`
	AtMs       int64     `json:"atMs"`
	Action     Action    `json:"action"`
	ActorID    string    `json:"actorId"`
	Decision   Decision  `json:"decision"`
	Detail     string    `json:"detail,omitempty"`
	TargetID   string    `json:"targetId,omitempty"`
}

// Log appends entries to a single operational audit file, serialized so
// concurrent admin requests never interleave partial JSON lines.
type Log struct {
	path string
	mu   sync.Mutex
}

// NewLog returns a Log appending to path. The parent directory is created
// lazily on first write.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Record appends one entry, always stamping it with a freshly generated
// id. atMs is supplied by the caller's clock (no Date.now()-style global
// access inside this package).
func (l *Log) Record(action Action, actorID string, decision Decision, detail, targetID string, atMs int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		ID:       uuid.NewString(),
		AtMs:     atMs,
		Action:   action,
		ActorID:  actorID,
		Decision: decision,
		Detail:   detail,
		TargetID: targetID,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("audit: mkdir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	return f.Sync()
}
