package envelope

import "sort"

// sortedUnique returns ss sorted and deduplicated, matching the envelope's
// determinism contract for allowed capabilities and lanes.
func sortedUnique(ss []string) []string {
	if len(ss) == 0 {
		return []string{}
	}
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// applySetAddRemove adds then removes entries from base, reporting whether
// the resulting set differs from base (by sorted-unique comparison).
func applySetAddRemove(base, additions, removals []string) (result []string, changed bool) {
	before := sortedUnique(base)

	removeSet := make(map[string]bool, len(removals))
	for _, r := range removals {
		removeSet[r] = true
	}

	merged := make([]string, 0, len(base)+len(additions))
	merged = append(merged, base...)
	merged = append(merged, additions...)

	filtered := make([]string, 0, len(merged))
	for _, m := range merged {
		if removeSet[m] {
			continue
		}
		filtered = append(filtered, m)
	}

	after := sortedUnique(filtered)
	changed = !stringSlicesEqual(before, after)
	return after, changed
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsAll(haystack, needles []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if !set[n] {
			return false
		}
	}
	return true
}

func expandLaneTemplate(lane, memberID string) string {
	const placeholder = "{memberId}"
	out := make([]byte, 0, len(lane))
	i := 0
	for i < len(lane) {
		if i+len(placeholder) <= len(lane) && lane[i:i+len(placeholder)] == placeholder {
			out = append(out, memberID...)
			i += len(placeholder)
			continue
		}
		out = append(out, lane[i])
		i++
	}
	return string(out)
}

func expandLaneTemplates(lanes []string, memberID string) []string {
	out := make([]string, len(lanes))
	for i, l := range lanes {
		out[i] = expandLaneTemplate(l, memberID)
	}
	return out
}
