// Package externals provides safe default stand-ins for the named
// out-of-scope remote collaborators (the vector-store file deleter and the
// embedding API — spec.md §1) so cmd/halo can start without them
// configured. Stand-ins for the other out-of-scope collaborators (session
// store, distiller, backup/lane ops) are not provided here. Each default
// fails loudly with a structured error instead of silently no-opping,
// matching spec.md §7's "remote delete failure is a structured result"
// contract: an unconfigured collaborator surfaces as a run failure with a
// clear message rather than a false success.
package externals

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/halo/internal/memoryindex"
)

// ErrNotConfigured is wrapped into every stand-in's error so callers can
// recognize "never wired up" distinctly from "wired up but failing".
var ErrNotConfigured = fmt.Errorf("external collaborator not configured")

// UnconfiguredRemoteDeleter implements filelifecycle.RemoteDeleter by
// failing every call. cmd/halo's serve and retention commands always use it,
// whether or not OPENAI_API_KEY is set.
type UnconfiguredRemoteDeleter struct{}

func (UnconfiguredRemoteDeleter) DeleteVectorStoreFile(ctx context.Context, vectorStoreFileID string) error {
	return fmt.Errorf("delete vector store file %s: %w (set OPENAI_API_KEY)", vectorStoreFileID, ErrNotConfigured)
}

func (UnconfiguredRemoteDeleter) DeleteOpenAIFile(ctx context.Context, openAIFileID string) error {
	return fmt.Errorf("delete openai file %s: %w (set OPENAI_API_KEY)", openAIFileID, ErrNotConfigured)
}

// UnconfiguredEmbedder implements memoryindex.Embedder by failing every
// call. cmd/halo's serve command always uses it, whether or not
// OPENAI_API_KEY is set; the sync manager's watermark-safety invariant means
// this never corrupts index state — it just leaves new content unindexed.
type UnconfiguredEmbedder struct{}

func (UnconfiguredEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]memoryindex.Embedding, error) {
	return nil, fmt.Errorf("embed %d texts: %w (set OPENAI_API_KEY)", len(texts), ErrNotConfigured)
}
