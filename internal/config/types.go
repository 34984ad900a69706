// Package config parses and validates the household/family configuration —
// the onboarding/household contract is the data contract consumed by the
// decision envelope engine. Both the legacy v1 schema and the v2
// control-plane schema normalize to the same Family value.
//
// Matching the teacher's FlexibleStringSlice pattern (config.go), telegram
// ids may appear as either JSON strings or numbers in hand-edited configs;
// FlexibleStringSlice tolerates both.
package config

import (
	"encoding/json"
	"fmt"
)

// FlexibleStringSlice accepts both ["123"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Role is a household member's role.
type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// AgeGroup refines a child member's age bracket.
type AgeGroup string

const (
	AgeGroupChild       AgeGroup = "child"
	AgeGroupTeen        AgeGroup = "teen"
	AgeGroupYoungAdult  AgeGroup = "young_adult"
)

// ScopeType identifies the kind of conversation scope.
type ScopeType string

const (
	ScopeDM           ScopeType = "dm"
	ScopeParentsGroup ScopeType = "parents_group"
	ScopeFamilyGroup  ScopeType = "family_group"
)

// RiskLevel is a safety signal's assessed risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Member is one normalized household member.
type Member struct {
	MemberID            string   `json:"memberId"`
	Role                Role     `json:"role"`
	AgeGroup            AgeGroup `json:"ageGroup,omitempty"`
	ProfileID           string   `json:"profileId,omitempty"`
	ParentalVisibility  *bool    `json:"parentalVisibility,omitempty"`
	TelegramUserIDs     []string `json:"telegramUserIds"`
}

// ParentsGroup identifies the parents-only group scope.
type ParentsGroup struct {
	TelegramChatID string `json:"telegramChatId"`
}

// CapabilityTier names a set of allowed capabilities.
type CapabilityTier struct {
	Capabilities []string `json:"capabilities"`
}

// MemoryLanePolicy defines read/write lane templates. "{memberId}" in a
// template is expanded to the speaker's member id at resolution time.
type MemoryLanePolicy struct {
	ReadLanes  []string `json:"readLanes"`
	WriteLanes []string `json:"writeLanes"`
}

// ModelPolicy names the model plan for a profile.
type ModelPolicy struct {
	Tier   string `json:"tier"`
	Model  string `json:"model"`
	Reason string `json:"reason"`
}

// SafetyPolicy names the safety/escalation plan for a profile.
type SafetyPolicy struct {
	RiskLevel          RiskLevel `json:"riskLevel"`
	EscalationPolicyID string    `json:"escalationPolicyId"`
}

// Profile binds a member's effective policy set.
type Profile struct {
	CapabilityTierID   string `json:"capabilityTierId"`
	MemoryLanePolicyID string `json:"memoryLanePolicyId"`
	ModelPolicyID      string `json:"modelPolicyId"`
	SafetyPolicyID     string `json:"safetyPolicyId"`
}

// ScopeConfig maps a configured scope type to an optional telegram chat id.
type ScopeConfig struct {
	ScopeType      ScopeType `json:"scopeType"`
	TelegramChatID string    `json:"telegramChatId,omitempty"`
}

// LaneRetention configures per-lane retention days, used by operations
// tooling (not the file retention scheduler, which is file-based).
type LaneRetention struct {
	DefaultDays int            `json:"defaultDays"`
	ByLaneID    map[string]int `json:"byLaneId,omitempty"`
}

// OperationsConfig names the household's operational managers.
type OperationsConfig struct {
	ManagerMemberIDs []string       `json:"managerMemberIds"`
	LaneRetention    *LaneRetention `json:"laneRetention,omitempty"`
}

// ControlPlane is present only for schemaVersion 2.
type ControlPlane struct {
	PolicyVersion    string                      `json:"policyVersion"`
	ActiveProfileID  string                      `json:"activeProfileId"`
	Profiles         map[string]Profile          `json:"profiles"`
	Scopes           []ScopeConfig               `json:"scopes"`
	CapabilityTiers  map[string]CapabilityTier   `json:"capabilityTiers"`
	MemoryLanePolicies map[string]MemoryLanePolicy `json:"memoryLanePolicies"`
	ModelPolicies    map[string]ModelPolicy       `json:"modelPolicies"`
	SafetyPolicies   map[string]SafetyPolicy      `json:"safetyPolicies"`
	Operations       *OperationsConfig            `json:"operations,omitempty"`
}

// Family is the normalized, immutable family/household configuration value
// consumed by the decision envelope engine. It is the union output of
// parsing either schema version 1 or 2; callers never branch on
// SchemaVersion after normalization.
type Family struct {
	SchemaVersion int           `json:"schemaVersion"`
	FamilyID      string        `json:"familyId"`
	Members       []Member      `json:"members"`
	ParentsGroup  *ParentsGroup `json:"parentsGroup,omitempty"`
	ControlPlane  *ControlPlane `json:"controlPlane,omitempty"`

	// Onboarding is the optional onboarding/household contract subtree,
	// persisted alongside the config (spec.md §3).
	Onboarding *OnboardingContract `json:"onboarding,omitempty"`
}

// MemberByTelegramID finds the member owning a telegram user id, if any.
func (f *Family) MemberByTelegramID(telegramID string) (*Member, bool) {
	for i := range f.Members {
		for _, id := range f.Members[i].TelegramUserIDs {
			if id == telegramID {
				return &f.Members[i], true
			}
		}
	}
	return nil, false
}

// MemberByID finds a member by memberId.
func (f *Family) MemberByID(memberID string) (*Member, bool) {
	for i := range f.Members {
		if f.Members[i].MemberID == memberID {
			return &f.Members[i], true
		}
	}
	return nil, false
}

// FamilyGroupChatID returns the configured family-group telegram chat id, if any.
func (f *Family) FamilyGroupChatID() (string, bool) {
	if f.ControlPlane == nil {
		return "", false
	}
	for _, sc := range f.ControlPlane.Scopes {
		if sc.ScopeType == ScopeFamilyGroup && sc.TelegramChatID != "" {
			return sc.TelegramChatID, true
		}
	}
	return "", false
}

// IsOperationalManager reports whether memberID is a parent listed as an
// operations manager (spec.md §4.7).
func (f *Family) IsOperationalManager(memberID string) bool {
	m, ok := f.MemberByID(memberID)
	if !ok || m.Role != RoleParent {
		return false
	}
	if f.ControlPlane == nil || f.ControlPlane.Operations == nil {
		return false
	}
	for _, id := range f.ControlPlane.Operations.ManagerMemberIDs {
		if id == memberID {
			return true
		}
	}
	return false
}
