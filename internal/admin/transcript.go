package admin

import (
	"github.com/nextlevelbuilder/halo/internal/config"
	"github.com/nextlevelbuilder/halo/internal/halohome"
)

// handleSessionTranscript implements GET /sessions/{scopeId}/transcript?role=parent
// (spec.md §4.7): allowed only when the requester asserts the parent role
// and the scope's member is a child; teen/young_adult children additionally
// require parentalVisibility=true on their member record.
func (rt *Router) handleSessionTranscript(req Request, scopeID string) Response {
	if req.Query.Get("role") != "parent" {
		return errResp(403, "forbidden", "transcript view requires role=parent")
	}
	if rt.deps.Sessions == nil {
		return errResp(503, "sessions_unavailable", "no session store attached")
	}

	memberID, role, ageGroup, ok := rt.deps.Sessions.MemberRoleForScope(scopeID)
	if !ok || role != config.RoleChild {
		return errResp(403, "forbidden", "transcript view requires a child-scoped conversation")
	}

	if ageGroup == config.AgeGroupTeen || ageGroup == config.AgeGroupYoungAdult {
		if !rt.memberHasParentalVisibility(memberID) {
			return errResp(403, "forbidden", "parentalVisibility is not enabled for this member")
		}
	}

	limit := queryInt(req.Query.Get("limit"), 200)
	lines, err := tailLines(halohome.TranscriptFile(rt.deps.Root, scopeID), limit)
	if err != nil {
		return errResp(500, "internal_error", err.Error())
	}
	return okResp(map[string]any{"scopeId": scopeID, "memberId": memberID, "lines": lines})
}

func (rt *Router) memberHasParentalVisibility(memberID string) bool {
	if rt.deps.Family == nil {
		return false
	}
	m, ok := rt.deps.Family.MemberByID(memberID)
	if !ok {
		return false
	}
	return m.ParentalVisibility != nil && *m.ParentalVisibility
}
