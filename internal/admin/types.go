// Package admin implements the admin handler surface: a pure
// (request -> response) router over status, session, file-retention, and
// operational endpoints, following the teacher's internal/http handler
// shape (internal/http/builtin_tools.go's RegisterRoutes/writeJSON split)
// but kept as a plain function instead of an http.Handler so the transport
// (net/http here, anything else in tests) is a thin adapter on top
// (spec.md §4.7: "the scheduler/admin surface exposes pure handler
// functions").
package admin

import (
	"net/url"

	"github.com/nextlevelbuilder/halo/internal/config"
)

// Request is the transport-agnostic input to Handle.
type Request struct {
	Method     string
	Path       string
	Query      url.Values
	RemoteAddr string
	Body       []byte
}

// Response is the transport-agnostic output of Handle. Body is marshaled to
// JSON by the caller (or by the net/http adapter in http.go).
type Response struct {
	Status int
	Body   any
}

// ErrorBody is the literal error shape spec.md §6 requires:
// {error: <code>, message?: <string>}.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func errResp(status int, code, message string) Response {
	return Response{Status: status, Body: ErrorBody{Error: code, Message: message}}
}

func okResp(body any) Response {
	return Response{Status: 200, Body: body}
}

// SessionSummary describes one scope's session state, surfaced by the
// external session-store collaborator (named out of scope, spec.md §1) via
// the SessionSource interface below.
type SessionSummary struct {
	ScopeID     string `json:"scopeId"`
	ItemCount   int    `json:"itemCount"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
}

// SessionSource lists and mutates per-scope session state. The durable
// session store itself is a named external collaborator (spec.md §1); this
// interface is the boundary the admin surface calls through, mirroring
// retention.RegistrySource / retention.DeleteScopedFileFunc.
type SessionSource interface {
	ListSessions() ([]SessionSummary, error)
	Clear(scopeID string) error
	Purge(scopeID string) error
	MemberRoleForScope(scopeID string) (memberID string, role config.Role, ageGroup config.AgeGroup, ok bool)
}

// Distiller summarizes (distills) a scope's session into a compact memory
// note. Named out of scope as an LLM-orchestration collaborator (spec.md
// §1); admin only depends on the interface.
type Distiller interface {
	Distill(scopeID string) error
}

// BackupOps performs whole-home backup/restore. Named out of scope (file
// I/O collaborator, spec.md §1).
type BackupOps interface {
	Create() (string, error)
	Restore(backupID string) error
}

// LaneOps performs per-lane memory export/delete/retention. Named out of
// scope (durable session/memory store collaborator, spec.md §1).
type LaneOps interface {
	Export(laneID string) ([]byte, error)
	Delete(laneID string) error
	ApplyRetention(laneID string, days int) (int, error)
}
