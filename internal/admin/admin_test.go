package admin

import (
	"net/url"
	"testing"

	"github.com/nextlevelbuilder/halo/internal/config"
)

type fakeSessions struct {
	cleared []string
	purged  []string
	role    config.Role
	age     config.AgeGroup
	member  string
}

func (f *fakeSessions) ListSessions() ([]SessionSummary, error) {
	return []SessionSummary{{ScopeID: "telegram:dm:kid", ItemCount: 3}}, nil
}
func (f *fakeSessions) Clear(scopeID string) error { f.cleared = append(f.cleared, scopeID); return nil }
func (f *fakeSessions) Purge(scopeID string) error  { f.purged = append(f.purged, scopeID); return nil }
func (f *fakeSessions) MemberRoleForScope(scopeID string) (string, config.Role, config.AgeGroup, bool) {
	return f.member, f.role, f.age, true
}

func testFamily() *config.Family {
	vis := true
	return &config.Family{
		SchemaVersion: 2,
		FamilyID:      "fam1",
		Members: []config.Member{
			{MemberID: "dad", Role: config.RoleParent, TelegramUserIDs: []string{"1"}},
			{MemberID: "kid", Role: config.RoleChild, AgeGroup: config.AgeGroupTeen, ParentalVisibility: &vis, TelegramUserIDs: []string{"2"}},
		},
		ControlPlane: &config.ControlPlane{
			PolicyVersion: "v1",
			Operations: &config.OperationsConfig{
				ManagerMemberIDs: []string{"dad"},
			},
		},
	}
}

func newTestRouter(sessions *fakeSessions) *Router {
	return NewRouter(Deps{
		Family:   testFamily(),
		Sessions: sessions,
		Clock:    func() int64 { return 1000 },
	})
}

func TestHealthzAlwaysOpen(t *testing.T) {
	rt := newTestRouter(&fakeSessions{})
	resp := rt.Handle(Request{Method: "GET", Path: "/healthz", RemoteAddr: "203.0.113.5:1234", Query: url.Values{}})
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
}

func TestLoopbackRequiredForEventsTail(t *testing.T) {
	rt := newTestRouter(&fakeSessions{})

	resp := rt.Handle(Request{Method: "GET", Path: "/events/tail", RemoteAddr: "203.0.113.5:1234", Query: url.Values{}})
	if resp.Status != 403 {
		t.Fatalf("non-loopback: status = %d, want 403", resp.Status)
	}
	body := resp.Body.(ErrorBody)
	if body.Error != "forbidden" {
		t.Fatalf("error code = %q, want forbidden", body.Error)
	}

	resp = rt.Handle(Request{Method: "GET", Path: "/events/tail", RemoteAddr: "127.0.0.1:54321", Query: url.Values{}})
	if resp.Status != 200 {
		t.Fatalf("loopback: status = %d, want 200", resp.Status)
	}
}

func TestPurgeRequiresMatchingConfirm(t *testing.T) {
	sess := &fakeSessions{}
	rt := newTestRouter(sess)

	resp := rt.Handle(Request{
		Method: "POST", Path: "/sessions/telegram:dm:kid/purge",
		RemoteAddr: "127.0.0.1:1", Query: url.Values{"confirm": {"wrong"}},
	})
	if resp.Status != 400 {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
	if resp.Body.(ErrorBody).Error != "confirm_required" {
		t.Fatalf("error = %+v", resp.Body)
	}

	resp = rt.Handle(Request{
		Method: "POST", Path: "/sessions/telegram:dm:kid/purge",
		RemoteAddr: "127.0.0.1:1", Query: url.Values{"confirm": {"telegram:dm:kid"}},
	})
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if len(sess.purged) != 1 || sess.purged[0] != "telegram:dm:kid" {
		t.Fatalf("purged = %v", sess.purged)
	}
}

func TestFileRetentionRunDisabledStates(t *testing.T) {
	rt := NewRouter(Deps{Family: testFamily(), FileMemoryEnabled: false, RetentionEnabled: true})
	resp := rt.Handle(Request{Method: "POST", Path: "/file-retention/run", RemoteAddr: "127.0.0.1:1", Query: url.Values{}})
	if resp.Status != 409 || resp.Body.(ErrorBody).Error != "file_memory_disabled" {
		t.Fatalf("resp = %+v", resp)
	}

	rt = NewRouter(Deps{Family: testFamily(), FileMemoryEnabled: true, RetentionEnabled: true, Scheduler: nil})
	resp = rt.Handle(Request{Method: "POST", Path: "/file-retention/run", RemoteAddr: "127.0.0.1:1", Query: url.Values{}})
	if resp.Status != 503 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestManagerAuthorizationOnOperations(t *testing.T) {
	fakeBackup := &fakeBackupOps{id: "backup-1"}
	rt := NewRouter(Deps{Family: testFamily(), Backup: fakeBackup, Clock: func() int64 { return 1 }})

	resp := rt.Handle(Request{Method: "POST", Path: "/operations/backup/create", RemoteAddr: "127.0.0.1:1", Query: url.Values{}})
	if resp.Status != 400 || resp.Body.(ErrorBody).Error != "missing_member_id" {
		t.Fatalf("missing memberId: resp = %+v", resp)
	}

	resp = rt.Handle(Request{Method: "POST", Path: "/operations/backup/create", RemoteAddr: "127.0.0.1:1", Query: url.Values{"memberId": {"kid"}}})
	if resp.Status != 403 {
		t.Fatalf("non-manager: resp = %+v", resp)
	}

	resp = rt.Handle(Request{Method: "POST", Path: "/operations/backup/create", RemoteAddr: "127.0.0.1:1", Query: url.Values{"memberId": {"dad"}}})
	if resp.Status != 200 {
		t.Fatalf("manager: resp = %+v", resp)
	}
}

func TestSessionTranscriptRequiresParentRoleAndVisibility(t *testing.T) {
	sess := &fakeSessions{role: config.RoleChild, age: config.AgeGroupTeen, member: "kid"}
	rt := newTestRouter(sess)

	resp := rt.Handle(Request{Method: "GET", Path: "/sessions/telegram:dm:kid/transcript", RemoteAddr: "127.0.0.1:1", Query: url.Values{}})
	if resp.Status != 403 {
		t.Fatalf("missing role=parent: resp = %+v", resp)
	}

	resp = rt.Handle(Request{Method: "GET", Path: "/sessions/telegram:dm:kid/transcript", RemoteAddr: "127.0.0.1:1", Query: url.Values{"role": {"parent"}}})
	if resp.Status != 200 {
		t.Fatalf("teen with parentalVisibility=true: resp = %+v", resp)
	}
}

type fakeBackupOps struct{ id string }

func (f *fakeBackupOps) Create() (string, error)       { return f.id, nil }
func (f *fakeBackupOps) Restore(backupID string) error { return nil }
