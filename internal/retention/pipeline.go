package retention

import (
	"sort"
	"strings"

	"github.com/nextlevelbuilder/halo/internal/config"
	"github.com/nextlevelbuilder/halo/internal/registry"
)

type scopeCategory string

const (
	categoryParentsGroup scopeCategory = "parents_group"
	categoryParent        scopeCategory = "parent"
	categoryChild          scopeCategory = "child"
	categoryUnknownMember  scopeCategory = "unknown_member"
	categoryOther          scopeCategory = "other"
)

// classifyScope resolves a scope id to its policy-preset category (spec.md
// §4.4 step 2).
func classifyScope(scopeID string, memberRoles map[string]config.Role) scopeCategory {
	switch {
	case strings.HasPrefix(scopeID, "telegram:parents_group:"):
		return categoryParentsGroup
	case strings.HasPrefix(scopeID, "telegram:dm:"):
		memberID := strings.TrimPrefix(scopeID, "telegram:dm:")
		role, ok := memberRoles[memberID]
		if !ok {
			return categoryUnknownMember
		}
		if role == config.RoleParent {
			return categoryParent
		}
		return categoryChild
	default:
		return categoryOther
	}
}

func allowedByPreset(preset PolicyPreset, cat scopeCategory) bool {
	switch preset {
	case PresetAll, PresetCustom:
		return true
	case PresetParentsOnly:
		return cat == categoryParent || cat == categoryParentsGroup
	case PresetExcludeChildren:
		return cat != categoryChild
	default:
		return false
	}
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// candidate is one file record staged for deletion, annotated with its
// owning scope.
type candidate struct {
	scopeID string
	record  registry.Record
}

// scanResult is the output of filtering every scope's registry, before the
// global cap is applied.
type scanResult struct {
	scopeCount int
	staleCount int
	candidates []candidate
	summary    RunSummary
}

// scanScopes runs filter pipeline steps 1-5 of spec.md §4.4 across every
// scope known to registries, returning the surviving candidates in no
// particular cross-scope order (the cap step re-sorts globally).
func scanScopes(cfg Config, memberRoles map[string]config.Role, registries RegistrySource, opts RunOptions, nowMs int64) (scanResult, error) {
	var res scanResult

	scopeIDs, err := registries.ListScopeIDs()
	if err != nil {
		return res, err
	}

	allowSet := cfg.AllowScopeIDs
	denySet := cfg.DenyScopeIDs
	staleCutoff := nowMs - int64(cfg.MaxAgeDays)*dayMs

	for _, scopeID := range scopeIDs {
		reg, err := registries.Read(scopeID)
		if err != nil || reg == nil {
			continue
		}
		fileCount := len(reg.Files)
		if fileCount == 0 {
			continue
		}

		if containsString(denySet, scopeID) {
			res.summary.ExcludedByDenyCount += fileCount
			continue
		}
		if len(allowSet) > 0 && !containsString(allowSet, scopeID) {
			res.summary.ExcludedByAllowCount += fileCount
			continue
		}
		cat := classifyScope(scopeID, memberRoles)
		if !allowedByPreset(cfg.PolicyPreset, cat) {
			res.summary.ExcludedByPresetCount += fileCount
			continue
		}

		res.scopeCount++

		active := make([]registry.Record, 0, fileCount)
		for _, rec := range reg.Files {
			if rec.Status == registry.StatusInProgress {
				res.summary.SkippedInProgressCount++
				continue
			}
			active = append(active, rec)
		}

		sort.SliceStable(active, func(i, j int) bool {
			return active[i].UploadedAtMs > active[j].UploadedAtMs
		})

		protect := cfg.KeepRecentPerScope
		if protect > len(active) {
			protect = len(active)
		}
		res.summary.ProtectedRecentCount += protect
		rest := active[protect:]

		for _, rec := range rest {
			if rec.UploadedAtMs > staleCutoff {
				continue
			}
			res.staleCount++

			if len(opts.UploadedBy) > 0 && !containsString(opts.UploadedBy, rec.UploadedBy) {
				res.summary.ExcludedByUploaderCount++
				continue
			}
			if len(opts.Extensions) > 0 && !matchesExtension(rec.Filename, opts.Extensions) {
				res.summary.ExcludedByTypeCount++
				continue
			}
			if len(opts.MimePrefixes) > 0 && !matchesMimePrefix(rec.MimeType, opts.MimePrefixes) {
				res.summary.ExcludedByTypeCount++
				continue
			}
			if !withinDateRange(rec.UploadedAtMs, opts.UploadedAfterMs, opts.UploadedBeforeMs) {
				res.summary.ExcludedByDateCount++
				continue
			}

			res.candidates = append(res.candidates, candidate{scopeID: scopeID, record: rec})
		}
	}

	return res, nil
}

func matchesExtension(filename string, extensions []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(lastExt(filename), "."))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimPrefix(e, "."))
		if e == ext {
			return true
		}
	}
	return false
}

func lastExt(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return filename[idx:]
}

func matchesMimePrefix(mimeType string, prefixes []string) bool {
	mimeType = strings.ToLower(mimeType)
	for _, p := range prefixes {
		if strings.HasPrefix(mimeType, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func withinDateRange(uploadedAtMs int64, afterMs, beforeMs *int64) bool {
	after, before := afterMs, beforeMs
	if after != nil && before != nil && *after > *before {
		after, before = before, after
	}
	if after != nil && uploadedAtMs < *after {
		return false
	}
	if before != nil && uploadedAtMs > *before {
		return false
	}
	return true
}

// applyCaps sorts candidates ascending by uploadedAtMs and admits them until
// the global and per-scope caps are reached (spec.md §4.4 step 6).
func applyCaps(candidates []candidate, maxFilesPerRun, maxDeletesPerScopePerRun int) (admitted []candidate, deferredByRunCap, deferredByScopeCap int) {
	sorted := append([]candidate{}, candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].record.UploadedAtMs < sorted[j].record.UploadedAtMs
	})

	perScope := make(map[string]int)
	for _, c := range sorted {
		if perScope[c.scopeID] >= maxDeletesPerScopePerRun {
			deferredByScopeCap++
			continue
		}
		if len(admitted) >= maxFilesPerRun {
			deferredByRunCap++
			continue
		}
		admitted = append(admitted, c)
		perScope[c.scopeID]++
	}
	return admitted, deferredByRunCap, deferredByScopeCap
}
