package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// schemaEnvelope peeks at schemaVersion before committing to a shape, the
// same "peek the discriminant, then unmarshal the concrete type" approach
// the teacher uses for provider-specific payloads.
type schemaEnvelope struct {
	SchemaVersion int `json:"schemaVersion"`
}

// familyV1 is the legacy shape: members only, no control plane.
type familyV1 struct {
	FamilyID     string        `json:"familyId"`
	Members      []Member      `json:"members"`
	ParentsGroup *ParentsGroup `json:"parentsGroup,omitempty"`
	Onboarding   *OnboardingContract `json:"onboarding,omitempty"`
}

// Load reads and normalizes the family config at path, routing on
// schemaVersion to produce a single Family value regardless of which schema
// the file was authored against. A missing file is not an error: callers get
// Default() back, matching the teacher's config_load.go Load() tolerance for
// a missing config.json on first run.
func Load(path string) (*Family, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var env schemaEnvelope
	if err := json5.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	switch env.SchemaVersion {
	case 0, 1:
		var v1 familyV1
		if err := json5.Unmarshal(data, &v1); err != nil {
			return nil, fmt.Errorf("config: parse v1 %s: %w", path, err)
		}
		return &Family{
			SchemaVersion: 1,
			FamilyID:      v1.FamilyID,
			Members:       v1.Members,
			ParentsGroup:  v1.ParentsGroup,
			ControlPlane:  nil,
			Onboarding:    v1.Onboarding,
		}, nil
	case 2:
		var f Family
		if err := json5.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("config: parse v2 %s: %w", path, err)
		}
		f.SchemaVersion = 2
		return &f, nil
	default:
		return nil, fmt.Errorf("config: %s: unsupported schemaVersion %d", path, env.SchemaVersion)
	}
}

// Default returns an empty, schema-2 family config with no members and no
// control plane, the starting point before onboarding bootstraps a household.
func Default() *Family {
	return &Family{
		SchemaVersion: 2,
		Members:       []Member{},
	}
}

// Save writes f to path as indented JSON. Matches the teacher's Save(path,
// cfg) in config_load.go: MarshalIndent, create parent dirs, 0600 permissions
// since the file may embed telegram chat ids considered moderately sensitive.
func Save(path string, f *Family) error {
	data, err := marshalIndent(f)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
