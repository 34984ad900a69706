package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.SchemaVersion != Default().SchemaVersion {
		t.Fatalf("schemaVersion = %d, want default", f.SchemaVersion)
	}
}

func TestLoadV1Schema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "family.json")
	data := `{
		"schemaVersion": 1,
		"familyId": "fam1",
		"members": [
			{"memberId": "wags", "role": "parent", "telegramUserIds": ["456"]}
		]
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.SchemaVersion != 1 {
		t.Fatalf("schemaVersion = %d, want 1", f.SchemaVersion)
	}
	if len(f.Members) != 1 || f.Members[0].MemberID != "wags" {
		t.Fatalf("members = %+v", f.Members)
	}
	if f.ControlPlane != nil {
		t.Fatalf("v1 config should not carry a control plane")
	}
}

func TestLoadLegacySchemaVersionZeroTreatedAsV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "family.json")
	data := `{"familyId": "fam1", "members": [{"memberId": "a", "role": "parent"}]}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.SchemaVersion != 1 {
		t.Fatalf("schemaVersion = %d, want 1 (normalized from 0)", f.SchemaVersion)
	}
}

func TestLoadMalformedJSONErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "family.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "family.json")
	f := Default()
	f.FamilyID = "fam1"
	f.Members = []Member{{MemberID: "wags", Role: RoleParent}}

	if err := Save(path, f); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.FamilyID != "fam1" || len(got.Members) != 1 {
		t.Fatalf("round-tripped config = %+v", got)
	}
}
