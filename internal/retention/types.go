// Package retention implements the file retention scheduler: an
// interval-driven, FIFO-serialized background worker that deletes stale
// files across scope registries under a layered filter pipeline, following
// the teacher's "promise queue becomes one serial worker task" translation
// (spec.md §9) grounded on the keyed-lock idiom in
// internal/channels/ratelimit.go.
package retention

import "github.com/nextlevelbuilder/halo/internal/registry"

// PolicyPreset is the closed set of scope-classification presets.
type PolicyPreset string

const (
	PresetAll             PolicyPreset = "all"
	PresetParentsOnly     PolicyPreset = "parents_only"
	PresetExcludeChildren PolicyPreset = "exclude_children"
	PresetCustom          PolicyPreset = "custom"
)

const dayMs = int64(24 * 60 * 60 * 1000)

// Config is resolved once at construction. Invalid numerics disable the
// scheduler rather than erroring the program (spec.md §4.4).
type Config struct {
	Enabled                  bool
	MaxAgeDays               int
	IntervalMs               int
	DeleteOpenAIFiles        bool
	MaxFilesPerRun           int
	DryRun                   bool
	KeepRecentPerScope       int
	MaxDeletesPerScopePerRun int
	AllowScopeIDs            []string
	DenyScopeIDs             []string
	PolicyPreset             PolicyPreset
}

// effectiveEnabled applies the "invalid numerics disable the scheduler" rule.
func (c Config) effectiveEnabled() bool {
	if !c.Enabled {
		return false
	}
	if c.MaxAgeDays <= 0 || c.IntervalMs <= 0 || c.MaxFilesPerRun <= 0 || c.MaxDeletesPerScopePerRun <= 0 || c.KeepRecentPerScope < 0 {
		return false
	}
	switch c.PolicyPreset {
	case PresetAll, PresetParentsOnly, PresetExcludeChildren, PresetCustom:
	default:
		return false
	}
	return true
}

// RunOptions parameterizes a single runNow request (spec.md §4.4 step 5, §5).
// Embedded in RunSummary.Filters on the wire, so its field names are part of
// the same stable public contract (spec.md §6).
type RunOptions struct {
	DryRun           *bool    `json:"dryRun,omitempty"`
	UploadedBy       []string `json:"uploadedBy,omitempty"`
	Extensions       []string `json:"extensions,omitempty"`
	MimePrefixes     []string `json:"mimePrefixes,omitempty"`
	UploadedAfterMs  *int64   `json:"uploadedAfterMs,omitempty"`
	UploadedBeforeMs *int64   `json:"uploadedBeforeMs,omitempty"`
}

func (o RunOptions) resolveDryRun(cfgDryRun bool) bool {
	if o.DryRun != nil {
		return *o.DryRun
	}
	return cfgDryRun
}

// DeleteRequest is passed to the external deleteScopedFile collaborator,
// which performs both the remote deletion and the registry mutation (named
// out of scope per spec.md §1).
type DeleteRequest struct {
	ScopeID           string
	FileRef           string
	DeleteOpenAIFile  bool
}

// DeleteScopedFileFunc is the external file-deletion collaborator.
type DeleteScopedFileFunc func(req DeleteRequest) error

// RegistrySource lists scopes and reads their registries; an external
// collaborator boundary per spec.md §1 ("listScopeRegistries").
type RegistrySource interface {
	ListScopeIDs() ([]string, error)
	Read(scopeID string) (*registry.Registry, error)
}

// LastError records the most recent deletion failure.
type LastError struct {
	ScopeID string `json:"scopeId"`
	FileRef string `json:"fileRef"`
	Message string `json:"message"`
	AtMs    int64  `json:"atMs"`
}

// RunSummary reports one run's outcome, field-for-field with spec.md §4.4.
// Field names are a stable public wire contract (spec.md §6).
type RunSummary struct {
	ScopeCount              int        `json:"scopeCount"`
	StaleCount              int        `json:"staleCount"`
	CandidateCount          int        `json:"candidateCount"`
	AttemptedCount          int        `json:"attemptedCount"`
	DeletedCount            int        `json:"deletedCount"`
	FailedCount             int        `json:"failedCount"`
	DryRun                  bool       `json:"dryRun"`
	SkippedDryRunCount      int        `json:"skippedDryRunCount"`
	SkippedInProgressCount  int        `json:"skippedInProgressCount"`
	ProtectedRecentCount    int        `json:"protectedRecentCount"`
	DeferredByRunCapCount   int        `json:"deferredByRunCapCount"`
	DeferredByScopeCapCount int        `json:"deferredByScopeCapCount"`
	ExcludedByAllowCount    int        `json:"excludedByAllowCount"`
	ExcludedByDenyCount     int        `json:"excludedByDenyCount"`
	ExcludedByPresetCount   int        `json:"excludedByPresetCount"`
	ExcludedByUploaderCount int        `json:"excludedByUploaderCount"`
	ExcludedByTypeCount     int        `json:"excludedByTypeCount"`
	ExcludedByDateCount     int        `json:"excludedByDateCount"`
	Filters                 RunOptions `json:"filters"`
}

// Status is the deep-copyable status snapshot surfaced to the admin handler.
// Field names are a stable public wire contract (spec.md §4.4, §6).
type Status struct {
	Enabled                  bool          `json:"enabled"`
	IntervalMinutes          float64       `json:"intervalMinutes"`
	MaxAgeDays               int           `json:"maxAgeDays"`
	DeleteOpenAIFiles        bool          `json:"deleteOpenAIFiles"`
	MaxFilesPerRun           int           `json:"maxFilesPerRun"`
	DryRun                   bool          `json:"dryRun"`
	KeepRecentPerScope       int           `json:"keepRecentPerScope"`
	MaxDeletesPerScopePerRun int           `json:"maxDeletesPerScopePerRun"`
	AllowScopeIDs            []string      `json:"allowScopeIds"`
	DenyScopeIDs             []string      `json:"denyScopeIds"`
	PolicyPreset             PolicyPreset  `json:"policyPreset"`
	Running                  bool          `json:"running"`
	LastRunStartedAtMs       int64         `json:"lastRunStartedAtMs"`
	LastRunFinishedAtMs      int64         `json:"lastRunFinishedAtMs"`
	LastSuccessAtMs          int64         `json:"lastSuccessAtMs"`
	TotalRuns                int64         `json:"totalRuns"`
	TotalDeleted             int64         `json:"totalDeleted"`
	TotalFailures            int64         `json:"totalFailures"`
	LastError                *LastError    `json:"lastError"`
	LastRunSummary           *RunSummary   `json:"lastRunSummary"`
}

// clone returns a deep copy so observers cannot mutate scheduler-internal
// state (spec.md §4.4 "deep-copied on read").
func (s Status) clone() Status {
	out := s
	out.AllowScopeIDs = append([]string{}, s.AllowScopeIDs...)
	out.DenyScopeIDs = append([]string{}, s.DenyScopeIDs...)
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	if s.LastRunSummary != nil {
		rs := *s.LastRunSummary
		rs.Filters = s.LastRunSummary.Filters
		out.LastRunSummary = &rs
	}
	return out
}
