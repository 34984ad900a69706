package admin

import (
	"encoding/json"

	"github.com/nextlevelbuilder/halo/internal/audit"
)

// authorizeManager resolves the memberId query param to a configured
// operational manager (spec.md §4.7: parent whose memberId is listed in
// controlPlane.operations.managerMemberIds). The allow/deny/fail outcome is
// always audited by the caller once the action name is known.
func (rt *Router) authorizeManager(req Request) (memberID string, resp *Response) {
	memberID = req.Query.Get("memberId")
	if memberID == "" {
		r := errResp(400, "missing_member_id", "memberId query param is required")
		return "", &r
	}
	if rt.deps.Family == nil || !rt.deps.Family.IsOperationalManager(memberID) {
		r := errResp(403, "forbidden", "memberId is not an operational manager")
		return memberID, &r
	}
	return memberID, nil
}

func (rt *Router) auditRecord(action audit.Action, actorID string, decision audit.Decision, detail, targetID string) {
	if rt.deps.Audit == nil {
		return
	}
	if err := rt.deps.Audit.Record(action, actorID, decision, detail, targetID, rt.now()); err != nil {
		rt.deps.Logger.Error("admin.audit_write_failed", "error", err, "action", action)
	}
}

// handleOperations dispatches /operations/backup/{create,restore}.
func (rt *Router) handleOperations(req Request, segs []string) Response {
	if len(segs) < 3 || segs[1] != "backup" {
		return errResp(404, "not_found", "unknown operations route")
	}
	action := segs[2]
	var auditAction audit.Action
	switch action {
	case "create":
		auditAction = audit.ActionBackupCreate
	case "restore":
		auditAction = audit.ActionBackupRestore
	default:
		return errResp(404, "not_found", "unknown backup action "+action)
	}

	memberID, denied := rt.authorizeManager(req)
	if denied != nil {
		rt.auditRecord(auditAction, memberID, audit.DecisionDeny, "authorization failed", "")
		return *denied
	}

	if rt.deps.Backup == nil {
		rt.auditRecord(auditAction, memberID, audit.DecisionFail, "no backup collaborator attached", "")
		return errResp(503, "backup_unavailable", "no backup collaborator attached")
	}

	switch action {
	case "create":
		id, err := rt.deps.Backup.Create()
		if err != nil {
			rt.auditRecord(auditAction, memberID, audit.DecisionFail, err.Error(), "")
			return errResp(500, "internal_error", err.Error())
		}
		rt.auditRecord(auditAction, memberID, audit.DecisionAllow, "", id)
		return okResp(map[string]any{"ok": true, "backupId": id})

	case "restore":
		var body struct {
			BackupID string `json:"backupId"`
		}
		if err := json.Unmarshal(req.Body, &body); err != nil || body.BackupID == "" {
			rt.auditRecord(auditAction, memberID, audit.DecisionFail, "missing backupId", "")
			return errResp(400, "invalid_body", "backupId is required")
		}
		if err := rt.deps.Backup.Restore(body.BackupID); err != nil {
			rt.auditRecord(auditAction, memberID, audit.DecisionFail, err.Error(), body.BackupID)
			return errResp(500, "internal_error", err.Error())
		}
		rt.auditRecord(auditAction, memberID, audit.DecisionAllow, "", body.BackupID)
		return okResp(map[string]any{"ok": true, "backupId": body.BackupID})
	}
	return errResp(404, "not_found", "unknown backup action "+action)
}

// handleMemoryLanes dispatches /memory/lanes/{laneId}/{export,delete,retention}.
func (rt *Router) handleMemoryLanes(req Request, segs []string) Response {
	if len(segs) < 4 {
		return errResp(404, "not_found", "unknown lane route")
	}
	laneID := segs[2]
	action := segs[3]

	memberID, denied := rt.authorizeManager(req)

	var auditAction audit.Action
	switch action {
	case "export":
		auditAction = audit.ActionLaneExport
	case "delete":
		auditAction = audit.ActionLaneDelete
	case "retention":
		auditAction = audit.ActionLaneRetention
	default:
		return errResp(404, "not_found", "unknown lane action "+action)
	}

	if denied != nil {
		rt.auditRecord(auditAction, memberID, audit.DecisionDeny, "authorization failed", laneID)
		return *denied
	}

	if rt.deps.Lanes == nil {
		rt.auditRecord(auditAction, memberID, audit.DecisionFail, "no lane collaborator attached", laneID)
		return errResp(503, "lanes_unavailable", "no lane collaborator attached")
	}

	switch action {
	case "export":
		if req.Method != "GET" && req.Method != "POST" {
			return errResp(404, "not_found", "unsupported method")
		}
		data, err := rt.deps.Lanes.Export(laneID)
		if err != nil {
			rt.auditRecord(auditAction, memberID, audit.DecisionFail, err.Error(), laneID)
			return errResp(500, "internal_error", err.Error())
		}
		rt.auditRecord(auditAction, memberID, audit.DecisionAllow, "", laneID)
		return okResp(map[string]any{"ok": true, "laneId": laneID, "data": json.RawMessage(data)})

	case "delete":
		if req.Method != "POST" {
			return errResp(404, "not_found", "unsupported method")
		}
		if err := rt.deps.Lanes.Delete(laneID); err != nil {
			rt.auditRecord(auditAction, memberID, audit.DecisionFail, err.Error(), laneID)
			return errResp(500, "internal_error", err.Error())
		}
		rt.auditRecord(auditAction, memberID, audit.DecisionAllow, "", laneID)
		return okResp(map[string]any{"ok": true, "laneId": laneID})

	case "retention":
		if req.Method != "POST" {
			return errResp(404, "not_found", "unsupported method")
		}
		days := rt.defaultLaneRetentionDays(laneID)
		var body struct {
			Days *int `json:"days"`
		}
		if len(req.Body) > 0 {
			if err := json.Unmarshal(req.Body, &body); err == nil && body.Days != nil {
				days = *body.Days
			}
		}
		removed, err := rt.deps.Lanes.ApplyRetention(laneID, days)
		if err != nil {
			rt.auditRecord(auditAction, memberID, audit.DecisionFail, err.Error(), laneID)
			return errResp(500, "internal_error", err.Error())
		}
		rt.auditRecord(auditAction, memberID, audit.DecisionAllow, "", laneID)
		return okResp(map[string]any{"ok": true, "laneId": laneID, "removed": removed, "days": days})
	}
	return errResp(404, "not_found", "unknown lane action "+action)
}

// defaultLaneRetentionDays resolves a lane's retention window from
// controlPlane.operations.laneRetention (spec.md §3), falling back to the
// default when the lane has no override.
func (rt *Router) defaultLaneRetentionDays(laneID string) int {
	if rt.deps.Family == nil || rt.deps.Family.ControlPlane == nil || rt.deps.Family.ControlPlane.Operations == nil {
		return 0
	}
	lr := rt.deps.Family.ControlPlane.Operations.LaneRetention
	if lr == nil {
		return 0
	}
	if d, ok := lr.ByLaneID[laneID]; ok {
		return d
	}
	return lr.DefaultDays
}
