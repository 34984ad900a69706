package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/halo/internal/audit"
	"github.com/nextlevelbuilder/halo/internal/config"
	"github.com/nextlevelbuilder/halo/internal/filelifecycle"
	"github.com/nextlevelbuilder/halo/internal/halohome"
	"github.com/nextlevelbuilder/halo/internal/memoryindex"
	"github.com/nextlevelbuilder/halo/internal/registry"
	"github.com/nextlevelbuilder/halo/internal/retention"
)

// Deps are the Router's injected collaborators. Several are named external
// boundaries per spec.md §1 (session store, distiller, backup/lane ops,
// remote file deletion) and are accepted as interfaces rather than concrete
// types, the same boundary shape used by retention.DeleteScopedFileFunc and
// filelifecycle.RemoteDeleter.
type Deps struct {
	Root string // HALO_HOME root

	Family *config.Family

	Scheduler     *retention.Scheduler // nil when no scheduler is attached
	RegistryStore *registry.Store
	SyncManager   *memoryindex.Manager
	SearchEngine  *memoryindex.Engine
	Remote        filelifecycle.RemoteDeleter

	Sessions  SessionSource
	Distiller Distiller
	Backup    BackupOps
	Lanes     LaneOps
	Audit     *audit.Log

	Clock func() int64

	FileMemoryEnabled    bool
	RetentionEnabled     bool
	DistillationEnabled  bool
	DeleteOpenAIFiles    bool

	Logger *slog.Logger
}

// Router dispatches admin requests. Besides its own per-remote-address rate
// limiter, it holds no mutable state of its own — the rest lives in Deps's
// collaborators, so Router itself is safe to share across concurrent
// requests (spec.md §4.7: "pure request router").
type Router struct {
	deps    Deps
	limiter *keyedLimiter
}

// NewRouter constructs a Router over deps, defaulting a nil logger to
// slog.Default() in the teacher's constructor style.
func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Router{deps: deps, limiter: newKeyedLimiter()}
}

// Handle routes req to the matching handler. Any panic from a handler is
// recovered into a 500 internal_error response, matching spec.md §7's "any
// uncaught throw becomes 500 internal_error". Every non-healthz call is
// rate limited per remote address first (spec.md §11: token-bucket limiting
// of admin calls).
func (rt *Router) Handle(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			rt.deps.Logger.Error("admin.panic_recovered", "panic", r, "path", req.Path)
			resp = errResp(500, "internal_error", fmt.Sprintf("%v", r))
		}
	}()
	if req.Path != "/healthz" && !rt.limiter.Allow(req.RemoteAddr) {
		return errResp(429, "rate_limited", "too many admin requests from this address")
	}
	return rt.route(req)
}

func (rt *Router) route(req Request) Response {
	segs := splitPath(req.Path)

	switch {
	case req.Method == "GET" && req.Path == "/healthz":
		return rt.handleHealthz()
	case req.Method == "GET" && req.Path == "/status":
		return rt.handleStatus()
	case req.Method == "GET" && req.Path == "/sessions":
		return rt.handleSessions(false)
	case req.Method == "GET" && req.Path == "/sessions-with-counts":
		return rt.handleSessions(true)
	case req.Method == "GET" && req.Path == "/policy/status":
		return rt.handlePolicyStatus()

	case req.Method == "GET" && req.Path == "/events/tail":
		if !rt.requireLoopback(req) {
			return forbidden()
		}
		return rt.handleEventsTail(req)
	case req.Method == "GET" && req.Path == "/transcripts/tail":
		if !rt.requireLoopback(req) {
			return forbidden()
		}
		return rt.handleTranscriptsTail(req)

	case req.Method == "POST" && req.Path == "/file-retention/run":
		if !rt.requireLoopback(req) {
			return forbidden()
		}
		return rt.handleFileRetentionRun(req)

	case req.Method == "POST" && matchPrefix(segs, "operations"):
		if !rt.requireLoopback(req) {
			return forbidden()
		}
		return rt.handleOperations(req, segs)

	case matchPrefix(segs, "memory", "lanes"):
		if !rt.requireLoopback(req) {
			return forbidden()
		}
		return rt.handleMemoryLanes(req, segs)
	}

	if matchPrefix(segs, "sessions") && len(segs) >= 2 {
		scopeID := segs[1]
		if scopeID == "" {
			return errResp(400, "missing_scope_id", "scope id is required")
		}

		switch {
		case req.Method == "GET" && len(segs) == 3 && segs[2] == "transcript":
			return rt.handleSessionTranscript(req, scopeID)
		case req.Method == "POST" && len(segs) == 3 && isSessionAction(segs[2]):
			if !rt.requireLoopback(req) {
				return forbidden()
			}
			return rt.handleSessionAction(req, scopeID, segs[2])
		case len(segs) >= 3 && segs[2] == "files":
			if !rt.requireLoopback(req) {
				return forbidden()
			}
			return rt.handleFiles(req, scopeID, segs[3:])
		}
	}

	return errResp(404, "not_found", "no route matches "+req.Method+" "+req.Path)
}

func forbidden() Response { return errResp(403, "forbidden", "loopback required") }

func (rt *Router) requireLoopback(req Request) bool {
	return isLoopback(req.RemoteAddr)
}

func isSessionAction(action string) bool {
	switch action {
	case "clear", "purge", "distill", "semantic-sync":
		return true
	}
	return false
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func matchPrefix(segs []string, prefix ...string) bool {
	if len(segs) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if segs[i] != p {
			return false
		}
	}
	return true
}

func (rt *Router) now() int64 {
	if rt.deps.Clock != nil {
		return rt.deps.Clock()
	}
	return 0
}

// --- simple status/session endpoints ---

func (rt *Router) handleHealthz() Response {
	return okResp(map[string]any{"ok": true})
}

func (rt *Router) handleStatus() Response {
	body := map[string]any{"ok": true}
	if rt.deps.Family != nil {
		if hash, err := rt.deps.Family.Hash(); err == nil {
			body["configHash"] = hash
		}
		body["familyId"] = rt.deps.Family.FamilyID
		body["schemaVersion"] = rt.deps.Family.SchemaVersion
		if rt.deps.Family.ControlPlane != nil {
			body["policyVersion"] = rt.deps.Family.ControlPlane.PolicyVersion
		}
	}
	if rt.deps.Scheduler != nil {
		body["retention"] = rt.deps.Scheduler.Status()
	}
	return okResp(body)
}

func (rt *Router) handleSessions(withCounts bool) Response {
	if rt.deps.Sessions == nil {
		return okResp(map[string]any{"sessions": []SessionSummary{}})
	}
	list, err := rt.deps.Sessions.ListSessions()
	if err != nil {
		return errResp(500, "internal_error", err.Error())
	}
	if !withCounts {
		for i := range list {
			list[i].ItemCount = 0
		}
	}
	return okResp(map[string]any{"sessions": list})
}

func (rt *Router) handlePolicyStatus() Response {
	body := map[string]any{}
	if rt.deps.Family != nil && rt.deps.Family.ControlPlane != nil {
		body["policyVersion"] = rt.deps.Family.ControlPlane.PolicyVersion
		body["activeProfileId"] = rt.deps.Family.ControlPlane.ActiveProfileID
		body["scopes"] = rt.deps.Family.ControlPlane.Scopes
	}
	return okResp(body)
}

// --- tail endpoints ---

func (rt *Router) handleEventsTail(req Request) Response {
	limit := queryInt(req.Query.Get("limit"), 100)
	lines, err := tailLines(halohome.EventsLogFile(rt.deps.Root), limit)
	if err != nil {
		return errResp(500, "internal_error", err.Error())
	}
	return okResp(map[string]any{"lines": lines})
}

func (rt *Router) handleTranscriptsTail(req Request) Response {
	scopeID := req.Query.Get("scopeId")
	if scopeID == "" {
		return errResp(400, "missing_scope_id", "scopeId query param is required")
	}
	limit := queryInt(req.Query.Get("limit"), 100)
	lines, err := tailLines(halohome.TranscriptFile(rt.deps.Root, scopeID), limit)
	if err != nil {
		return errResp(500, "internal_error", err.Error())
	}
	return okResp(map[string]any{"scopeId": scopeID, "lines": lines})
}

// --- session actions ---

func (rt *Router) handleSessionAction(req Request, scopeID, action string) Response {
	switch action {
	case "clear":
		if rt.deps.Sessions == nil {
			return errResp(503, "sessions_unavailable", "no session store attached")
		}
		if err := rt.deps.Sessions.Clear(scopeID); err != nil {
			return errResp(500, "internal_error", err.Error())
		}
		return okResp(map[string]any{"ok": true, "scopeId": scopeID})

	case "purge":
		confirm := req.Query.Get("confirm")
		if confirm != scopeID {
			return errResp(400, "confirm_required", "confirm query param must equal the scope id")
		}
		if rt.deps.Sessions == nil {
			return errResp(503, "sessions_unavailable", "no session store attached")
		}
		if err := rt.deps.Sessions.Purge(scopeID); err != nil {
			return errResp(500, "internal_error", err.Error())
		}
		return okResp(map[string]any{"ok": true, "scopeId": scopeID})

	case "distill":
		if !rt.deps.DistillationEnabled {
			return errResp(409, "distillation_disabled", "distillation is disabled")
		}
		if rt.deps.Distiller == nil {
			return errResp(503, "distiller_unavailable", "no distiller attached")
		}
		if err := rt.deps.Distiller.Distill(scopeID); err != nil {
			return errResp(500, "internal_error", err.Error())
		}
		return okResp(map[string]any{"ok": true, "scopeId": scopeID})

	case "semantic-sync":
		return rt.handleSemanticSync(scopeID)
	}
	return errResp(404, "not_found", "unknown session action "+action)
}

func (rt *Router) handleSemanticSync(scopeID string) Response {
	if rt.deps.SyncManager == nil {
		return errResp(503, "sync_unavailable", "no sync manager attached")
	}
	ctx := context.Background()
	nowMs := rt.now()

	dir := halohome.MemoryScopeDir(rt.deps.Root, scopeID)
	if err := rt.deps.SyncManager.SyncMarkdownScope(ctx, scopeID, dir, nowMs); err != nil {
		return errResp(500, "internal_error", err.Error())
	}
	transcriptPath := halohome.TranscriptFile(rt.deps.Root, scopeID)
	if err := rt.deps.SyncManager.SyncTranscript(ctx, scopeID, transcriptPath, nowMs); err != nil {
		return errResp(500, "internal_error", err.Error())
	}
	return okResp(map[string]any{"ok": true, "scopeId": scopeID})
}

// --- file retention run ---

type fileRetentionRunBody struct {
	DryRun           *bool    `json:"dryRun"`
	UploadedBy       []string `json:"uploadedBy"`
	Extensions       []string `json:"extensions"`
	MimePrefixes     []string `json:"mimePrefixes"`
	UploadedAfterMs  *int64   `json:"uploadedAfterMs"`
	UploadedBeforeMs *int64   `json:"uploadedBeforeMs"`
}

func (rt *Router) handleFileRetentionRun(req Request) Response {
	if !rt.deps.FileMemoryEnabled {
		return errResp(409, "file_memory_disabled", "file memory is disabled")
	}
	if !rt.deps.RetentionEnabled {
		return errResp(409, "retention_disabled", "file retention is disabled")
	}
	if rt.deps.Scheduler == nil {
		return errResp(503, "scheduler_unavailable", "no retention scheduler attached")
	}

	var body fileRetentionRunBody
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return errResp(400, "invalid_body", err.Error())
		}
	}

	opts := retention.RunOptions{
		DryRun:           body.DryRun,
		UploadedBy:       body.UploadedBy,
		Extensions:       body.Extensions,
		MimePrefixes:     body.MimePrefixes,
		UploadedAfterMs:  body.UploadedAfterMs,
		UploadedBeforeMs: body.UploadedBeforeMs,
	}

	summary := rt.deps.Scheduler.RunNow(context.Background(), opts)
	return okResp(map[string]any{"ok": true, "requested": opts, "status": summary})
}

// --- file operations under /sessions/{scopeId}/files/* ---

type fileRefBody struct {
	FileRef          string `json:"fileRef"`
	DeleteOpenAIFile *bool  `json:"deleteOpenAIFile"`
}

func (rt *Router) handleFiles(req Request, scopeID string, rest []string) Response {
	if rt.deps.RegistryStore == nil {
		return errResp(503, "registry_unavailable", "no file registry store attached")
	}

	switch {
	case req.Method == "GET" && len(rest) == 0:
		reg, err := rt.deps.RegistryStore.Read(scopeID)
		if err != nil {
			return errResp(500, "internal_error", err.Error())
		}
		if reg == nil {
			return okResp(map[string]any{"scopeId": scopeID, "files": []any{}})
		}
		return okResp(reg)

	case req.Method == "POST" && len(rest) == 1 && rest[0] == "delete":
		if rt.deps.Remote == nil {
			return errResp(503, "remote_unavailable", "no remote deleter attached")
		}
		var body fileRefBody
		if err := json.Unmarshal(req.Body, &body); err != nil || body.FileRef == "" {
			return errResp(400, "invalid_body", "fileRef is required")
		}
		deleteOpenAI := rt.deps.DeleteOpenAIFiles
		if body.DeleteOpenAIFile != nil {
			deleteOpenAI = *body.DeleteOpenAIFile
		}
		_, err := filelifecycle.Delete(context.Background(), rt.deps.RegistryStore, scopeID, body.FileRef, deleteOpenAI, rt.deps.Remote, rt.now())
		if err != nil {
			return fileLifecycleError(err)
		}
		return okResp(map[string]any{"ok": true, "scopeId": scopeID, "fileRef": body.FileRef})

	case req.Method == "POST" && len(rest) == 1 && rest[0] == "purge":
		if rt.deps.Remote == nil {
			return errResp(503, "remote_unavailable", "no remote deleter attached")
		}
		result, err := filelifecycle.Purge(context.Background(), rt.deps.RegistryStore, scopeID, rt.deps.DeleteOpenAIFiles, rt.deps.Remote, rt.now())
		if err != nil {
			return errResp(500, "internal_error", err.Error())
		}
		return okResp(result)
	}

	return errResp(404, "not_found", "unknown file operation")
}

func fileLifecycleError(err error) Response {
	var lifecycleErr *filelifecycle.Error
	if errors.As(err, &lifecycleErr) {
		status := 500
		switch lifecycleErr.Code {
		case filelifecycle.CodeScopeNotFound, filelifecycle.CodeFileNotFound:
			status = 404
		case filelifecycle.CodeRemoteDeleteFailed:
			status = 502
		}
		return errResp(status, string(lifecycleErr.Code), lifecycleErr.Message)
	}
	return errResp(500, "internal_error", err.Error())
}
