// Package envelope implements the decision envelope engine: the
// deterministic, precedence-ordered policy evaluator that turns an inbound
// message plus the normalized family config into an allow/deny/approval
// decision, following the same "ordered pipeline narrows a working state"
// shape as the teacher's tool policy pipeline (internal/tools/policy.go).
package envelope

import (
	"encoding/json"

	"github.com/nextlevelbuilder/halo/internal/config"
)

// Action is the closed set of decision outcomes.
type Action string

const (
	ActionAllow                   Action = "allow"
	ActionDeny                    Action = "deny"
	ActionRequiresParentApproval  Action = "requires_parent_approval"
)

// Speaker is a tagged sum type: either a known household member or unknown.
// Encoded as a struct with a Known flag rather than a pointer-to-member, so
// the zero value is an explicit, addressable "unknown" rather than nil.
type Speaker struct {
	Known     bool
	MemberID  string
	Role      config.Role
	ProfileID string
}

// UnknownSpeaker is the canonical unknown-speaker value.
var UnknownSpeaker = Speaker{}

// MarshalJSON encodes the tagged sum as either the literal string "unknown"
// or {memberId,role,profileId}, matching spec.md §3's documented wire shape
// (`speaker{memberId,role,profileId}|unknown`).
func (s Speaker) MarshalJSON() ([]byte, error) {
	if !s.Known {
		return json.Marshal("unknown")
	}
	return json.Marshal(struct {
		MemberID  string      `json:"memberId"`
		Role      config.Role `json:"role"`
		ProfileID string      `json:"profileId"`
	}{MemberID: s.MemberID, Role: s.Role, ProfileID: s.ProfileID})
}

// Scope identifies the resolved conversation scope.
type Scope struct {
	ScopeID   string           `json:"scopeId"`
	ScopeType config.ScopeType `json:"scopeType"`
}

// Intent carries the inbound message's addressing signal.
type Intent struct {
	IsMentioned bool   `json:"isMentioned"`
	Command     string `json:"command,omitempty"`
}

// Chat is the inbound chat/message addressing info.
type Chat struct {
	ID      string
	IsGroup bool
}

// SafetySignal is an optional upstream risk classification for the message.
type SafetySignal struct {
	RiskLevel config.RiskLevel
}

// ProfilePolicy carries per-profile override defaults not present in the
// static family config (notification defaults for risk escalation).
type ProfilePolicy struct {
	HighRiskParentNotificationDefault   *bool
	MediumRiskParentNotificationDefault *bool
	HighRiskEscalationPolicyID          string
}

// Overrides carries explicit per-request policy overrides.
type Overrides struct {
	CapabilityAdditions       []string
	CapabilityRemovals        []string
	Model                     string
	MediumRiskParentNotification *bool
}

// Compatibility carries model/capability compatibility tables.
type Compatibility struct {
	SupportedCapabilitiesByModel map[string][]string
	FallbackModelByTier          map[string]string
}

// ModelPlan names the resolved model tier/id for the envelope.
type ModelPlan struct {
	Tier   string `json:"tier"`
	Model  string `json:"model"`
	Reason string `json:"reason"`
}

// SafetyPlan names the resolved risk level and escalation policy.
type SafetyPlan struct {
	RiskLevel          config.RiskLevel `json:"riskLevel"`
	EscalationPolicyID string           `json:"escalationPolicyId"`
}

// Request is the full input to Resolve.
type Request struct {
	PolicyVersion     string
	Family            *config.Family
	Chat              Chat
	FromID            string
	Intent            Intent
	FamilyGroupChatID string
	SafetySignal      *SafetySignal
	ProfilePolicies   map[string]ProfilePolicy
	Overrides         *Overrides
	Compatibility     *Compatibility
}

// DecisionEnvelope is the pure, deterministic output of Resolve. Field
// names are a stable public wire contract (spec.md §3, §6).
type DecisionEnvelope struct {
	PolicyVersion           string     `json:"policyVersion"`
	Speaker                 Speaker    `json:"speaker"`
	Scope                   Scope      `json:"scope"`
	Intent                  Intent     `json:"intent"`
	Action                  Action     `json:"action"`
	AllowedCapabilities     []string   `json:"allowedCapabilities"`
	AllowedMemoryReadLanes  []string   `json:"allowedMemoryReadLanes"`
	AllowedMemoryWriteLanes []string   `json:"allowedMemoryWriteLanes"`
	ModelPlan               ModelPlan  `json:"modelPlan"`
	SafetyPlan              SafetyPlan `json:"safetyPlan"`
	Rationale               []string   `json:"rationale"`
}
