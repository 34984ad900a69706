// Package registry implements the per-scope file registry: a durable,
// on-disk JSON record of uploaded files for one conversation scope, guarded
// by a keyed per-scope lock so concurrent uploads, indexing, and retention
// runs never tear a write. Persistence follows the teacher's atomic
// temp-file-then-rename save (internal/sessions/manager.go's Save).
package registry

// Status is the closed set of per-file lifecycle states.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// StorageMetadata carries the lane/ownership tags attached to a file at
// upload time, used by the semantic index and by lane-scoped admin queries.
type StorageMetadata struct {
	LaneID        string `json:"laneId,omitempty"`
	ScopeID       string `json:"scopeId,omitempty"`
	OwnerMemberID string `json:"ownerMemberId,omitempty"`
	PolicyVersion string `json:"policyVersion,omitempty"`
	ArtifactType  string `json:"artifactType,omitempty"`
}

// Record is one uploaded file tracked by a scope's registry.
type Record struct {
	TelegramFileID       string           `json:"telegramFileId"`
	TelegramFileUniqueID string           `json:"telegramFileUniqueId"`
	Filename             string           `json:"filename"`
	MimeType             string           `json:"mimeType"`
	SizeBytes            int64            `json:"sizeBytes"`
	OpenAIFileID         *string          `json:"openaiFileId"`
	VectorStoreFileID    *string          `json:"vectorStoreFileId"`
	Status               Status           `json:"status"`
	LastError            *string          `json:"lastError"`
	UploadedBy           string           `json:"uploadedBy"`
	UploadedAtMs         int64            `json:"uploadedAtMs"`
	StorageMetadata      *StorageMetadata `json:"storageMetadata,omitempty"`
}

// MatchesRef reports whether ref identifies this record via any of its
// telegram/openai/vector-store identifiers (spec.md §4.3).
func (r Record) MatchesRef(ref string) bool {
	if ref == "" {
		return false
	}
	if r.TelegramFileUniqueID == ref || r.TelegramFileID == ref {
		return true
	}
	if r.OpenAIFileID != nil && *r.OpenAIFileID == ref {
		return true
	}
	if r.VectorStoreFileID != nil && *r.VectorStoreFileID == ref {
		return true
	}
	return false
}

// Registry is one scope's durable file registry.
type Registry struct {
	ScopeID       string    `json:"scopeId"`
	VectorStoreID *string   `json:"vectorStoreId"`
	CreatedAtMs   int64     `json:"createdAtMs"`
	UpdatedAtMs   int64     `json:"updatedAtMs"`
	Files         []Record  `json:"files"`
}

// valid reports whether a record carries the minimum fields required to be
// kept on normalization-on-read; malformed records are dropped rather than
// failing the whole registry load (spec.md §4.2).
func (r Record) valid() bool {
	return r.TelegramFileUniqueID != ""
}
