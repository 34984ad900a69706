// Package filelifecycle implements file deletion and bulk purge, coordinating
// remote vector-store/file deletion with local scope registry mutation.
package filelifecycle

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/halo/internal/registry"
)

// ErrorCode is the closed set of structured failure codes this package
// returns instead of throwing (spec.md §4.3, §7).
type ErrorCode string

const (
	CodeScopeNotFound     ErrorCode = "scope_not_found"
	CodeFileNotFound      ErrorCode = "file_not_found"
	CodeRemoteDeleteFailed ErrorCode = "remote_delete_failed"
)

// Error is a structured lifecycle failure.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func newError(code ErrorCode, msg string) *Error { return &Error{Code: code, Message: msg} }

// RemoteDeleter performs the out-of-process deletions a file record may
// reference. Both the vector-store collaborator and the OpenAI file API are
// named out-of-scope external collaborators (spec.md §1); this package only
// defines the interface it calls through.
type RemoteDeleter interface {
	DeleteVectorStoreFile(ctx context.Context, vectorStoreFileID string) error
	DeleteOpenAIFile(ctx context.Context, openAIFileID string) error
}

// DeleteResult reports the outcome of a single-file delete.
type DeleteResult struct {
	ScopeID string
	FileRef string
}

// Delete resolves fileRef within scopeID's registry and removes it, deleting
// remote artifacts before mutating the registry. Any remote failure leaves
// the registry untouched.
func Delete(ctx context.Context, store *registry.Store, scopeID, fileRef string, deleteOpenAIFile bool, remote RemoteDeleter, nowMs int64) (DeleteResult, error) {
	reg, err := store.Read(scopeID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("filelifecycle: read registry: %w", err)
	}
	if reg == nil {
		return DeleteResult{}, newError(CodeScopeNotFound, scopeID)
	}

	idx := -1
	for i, rec := range reg.Files {
		if rec.MatchesRef(fileRef) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return DeleteResult{}, newError(CodeFileNotFound, fileRef)
	}
	rec := reg.Files[idx]

	if rec.VectorStoreFileID != nil {
		if err := remote.DeleteVectorStoreFile(ctx, *rec.VectorStoreFileID); err != nil {
			return DeleteResult{}, newError(CodeRemoteDeleteFailed, err.Error())
		}
	}
	if deleteOpenAIFile && rec.OpenAIFileID != nil {
		if err := remote.DeleteOpenAIFile(ctx, *rec.OpenAIFileID); err != nil {
			return DeleteResult{}, newError(CodeRemoteDeleteFailed, err.Error())
		}
	}

	remaining := make([]registry.Record, 0, len(reg.Files)-1)
	for i, r := range reg.Files {
		if i != idx {
			remaining = append(remaining, r)
		}
	}
	if _, err := store.Replace(scopeID, remaining, nowMs); err != nil {
		return DeleteResult{}, fmt.Errorf("filelifecycle: persist registry: %w", err)
	}

	return DeleteResult{ScopeID: scopeID, FileRef: fileRef}, nil
}

// FileError pairs a file reference with the message from a failed delete
// during Purge.
type FileError struct {
	FileRef string
	Message string
}

// PurgeResult reports the outcome of deleting every file in a scope.
type PurgeResult struct {
	OK             bool
	RemovedCount   int
	RemainingCount int
	Errors         []FileError
}

// Purge deletes every file in scopeID's registry, collecting per-file errors
// rather than aborting. Files that fail to delete are kept.
func Purge(ctx context.Context, store *registry.Store, scopeID string, deleteOpenAIFile bool, remote RemoteDeleter, nowMs int64) (PurgeResult, error) {
	reg, err := store.Read(scopeID)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("filelifecycle: read registry: %w", err)
	}
	if reg == nil {
		return PurgeResult{OK: true}, nil
	}

	var errs []FileError
	var removed int

	for _, rec := range reg.Files {
		ref := rec.TelegramFileUniqueID
		if rec.VectorStoreFileID != nil {
			if err := remote.DeleteVectorStoreFile(ctx, *rec.VectorStoreFileID); err != nil {
				errs = append(errs, FileError{FileRef: ref, Message: err.Error()})
				continue
			}
		}
		if deleteOpenAIFile && rec.OpenAIFileID != nil {
			if err := remote.DeleteOpenAIFile(ctx, *rec.OpenAIFileID); err != nil {
				errs = append(errs, FileError{FileRef: ref, Message: err.Error()})
				continue
			}
		}
		removed++
		_ = ref
	}

	keep := make([]registry.Record, 0, len(reg.Files)-removed)
	failedRefs := make(map[string]bool, len(errs))
	for _, e := range errs {
		failedRefs[e.FileRef] = true
	}
	for _, rec := range reg.Files {
		if failedRefs[rec.TelegramFileUniqueID] {
			keep = append(keep, rec)
		}
	}

	if _, err := store.Replace(scopeID, keep, nowMs); err != nil {
		return PurgeResult{}, fmt.Errorf("filelifecycle: persist registry: %w", err)
	}

	return PurgeResult{
		OK:             len(errs) == 0,
		RemovedCount:   removed,
		RemainingCount: len(keep),
		Errors:         errs,
	}, nil
}
