package envelope

import (
	"fmt"

	"github.com/nextlevelbuilder/halo/internal/config"
)

// Resolve runs the precedence pipeline described in the policy spec and
// returns a decision envelope. Resolve never panics or returns an error:
// every malformed input that cannot be resolved into a decision terminates
// in a deny envelope whose rationale names the reason, matching the
// "diagnostic deny instead of throw" contract that governs this engine.
func Resolve(req Request) DecisionEnvelope {
	var rationale []string

	// Step 1: scope resolution.
	scope, groupNotApproved := resolveScope(req)

	// Step 2: member lookup.
	speaker := UnknownSpeaker
	if req.Family != nil {
		if m, ok := req.Family.MemberByTelegramID(req.FromID); ok {
			speaker = Speaker{Known: true, MemberID: m.MemberID, Role: m.Role, ProfileID: m.ProfileID}
		}
	}
	if !speaker.Known {
		rationale = append(rationale, "unknown_user")
		return denyEnvelope(req, speaker, scope, rationale)
	}

	// Step 3: unapproved group.
	if groupNotApproved {
		rationale = append(rationale, "group_not_approved")
		return denyEnvelope(req, speaker, scope, rationale)
	}

	// Step 4: safety hard deny (parent, high risk).
	riskLevel := config.RiskLow
	if req.SafetySignal != nil && req.SafetySignal.RiskLevel != "" {
		riskLevel = req.SafetySignal.RiskLevel
	}
	if riskLevel == config.RiskHigh && speaker.Role == config.RoleParent {
		rationale = append(rationale, "safety_high_risk_hard_deny")
		return denyEnvelope(req, speaker, scope, rationale)
	}

	// Step 5: scope admission.
	switch scope.ScopeType {
	case config.ScopeDM:
		// dm admits the member unconditionally.
	case config.ScopeParentsGroup:
		if speaker.Role != config.RoleParent {
			rationale = append(rationale, "child_in_parents_group")
			return denyEnvelope(req, speaker, scope, rationale)
		}
	case config.ScopeFamilyGroup:
		if !req.Intent.IsMentioned {
			rationale = append(rationale, "mention_required_in_family_group", "family_group_mention_exceptions_none")
			return denyEnvelope(req, speaker, scope, rationale)
		}
	default:
		rationale = append(rationale, "group_not_approved")
		return denyEnvelope(req, speaker, scope, rationale)
	}

	// Step 6: role/profile baseline plan.
	caps, readLanes, writeLanes, modelPlan, safetyPlan, baseRationale := resolveBaseline(req, speaker, scope.ScopeType, riskLevel)
	rationale = append(rationale, baseRationale...)

	action := ActionAllow

	// Step 7: override step.
	action, caps, safetyPlan, rationale = applyRiskOverrides(req, speaker, riskLevel, action, caps, safetyPlan, rationale)
	caps, modelPlan, rationale = applyExplicitOverrides(req, caps, modelPlan, rationale)

	// Step 8: compatibility fallback.
	modelPlan, rationale = applyCompatibilityFallback(req, caps, modelPlan, rationale)

	return DecisionEnvelope{
		PolicyVersion:           req.PolicyVersion,
		Speaker:                 speaker,
		Scope:                   scope,
		Intent:                  req.Intent,
		Action:                  action,
		AllowedCapabilities:     sortedUnique(caps),
		AllowedMemoryReadLanes:  sortedUnique(readLanes),
		AllowedMemoryWriteLanes: sortedUnique(writeLanes),
		ModelPlan:               modelPlan,
		SafetyPlan:              safetyPlan,
		Rationale:               rationale,
	}
}

func resolveScope(req Request) (Scope, bool) {
	if !req.Chat.IsGroup {
		fromID := req.FromID
		if fromID == "" {
			fromID = "unknown"
		}
		return Scope{ScopeType: config.ScopeDM, ScopeID: "telegram:dm:" + fromID}, false
	}

	if req.Family != nil && req.Family.ParentsGroup != nil && req.Family.ParentsGroup.TelegramChatID != "" &&
		req.Family.ParentsGroup.TelegramChatID == req.Chat.ID {
		return Scope{ScopeType: config.ScopeParentsGroup, ScopeID: "telegram:parents_group:" + req.Chat.ID}, false
	}

	familyGroupChatID := req.FamilyGroupChatID
	if familyGroupChatID == "" && req.Family != nil {
		if id, ok := req.Family.FamilyGroupChatID(); ok {
			familyGroupChatID = id
		}
	}
	if familyGroupChatID != "" && familyGroupChatID == req.Chat.ID {
		return Scope{ScopeType: config.ScopeFamilyGroup, ScopeID: "telegram:family_group:" + req.Chat.ID}, false
	}

	return Scope{ScopeType: "", ScopeID: "telegram:group:" + req.Chat.ID}, true
}

func denyEnvelope(req Request, speaker Speaker, scope Scope, rationale []string) DecisionEnvelope {
	return DecisionEnvelope{
		PolicyVersion:           req.PolicyVersion,
		Speaker:                 speaker,
		Scope:                   scope,
		Intent:                  req.Intent,
		Action:                  ActionDeny,
		AllowedCapabilities:     []string{},
		AllowedMemoryReadLanes:  []string{},
		AllowedMemoryWriteLanes: []string{},
		ModelPlan:               ModelPlan{},
		SafetyPlan:              SafetyPlan{RiskLevel: config.RiskLow, EscalationPolicyID: "none"},
		Rationale:               rationale,
	}
}

// defaultEscalationPolicyID is the hardcoded fallback used when no profile
// safety policy resolves (v1 schema, or a profile reference that is absent).
func defaultEscalationPolicyID(role config.Role) string {
	if role == config.RoleChild {
		return "minor_default"
	}
	return "none"
}

func resolveBaseline(req Request, speaker Speaker, scopeType config.ScopeType, riskLevel config.RiskLevel) (caps, readLanes, writeLanes []string, modelPlan ModelPlan, safetyPlan SafetyPlan, rationale []string) {
	safetyPlan = SafetyPlan{RiskLevel: riskLevel, EscalationPolicyID: defaultEscalationPolicyID(speaker.Role)}

	switch scopeType {
	case config.ScopeParentsGroup:
		return []string{"chat.respond.group_safe"}, []string{"parents_shared"}, []string{"parents_shared"},
			ModelPlan{Tier: "parent_group_safe", Model: "parent_group_safe", Reason: "scope_default"}, safetyPlan, nil
	case config.ScopeFamilyGroup:
		return []string{"chat.respond.group_safe"}, []string{"family_shared"}, []string{"family_shared"},
			ModelPlan{Tier: "group_safe", Model: "group_safe", Reason: "scope_default"}, safetyPlan, nil
	}

	// dm
	caps = []string{"chat.respond"}

	cp := req.Family.ControlPlane
	if cp == nil {
		lane := fmt.Sprintf("member_private:%s", speaker.MemberID)
		readLanes, writeLanes = []string{lane}, []string{lane}
		modelPlan = ModelPlan{Tier: "default", Model: "default", Reason: "no_control_plane_fallback"}
		rationale = []string{"v1_schema_baseline"}
		return caps, readLanes, writeLanes, modelPlan, safetyPlan, rationale
	}

	profile, hasProfile := cp.Profiles[speaker.ProfileID]
	if !hasProfile {
		lane := fmt.Sprintf("member_private:%s", speaker.MemberID)
		readLanes, writeLanes = []string{lane}, []string{lane}
		modelPlan = ModelPlan{Tier: "default", Model: "default", Reason: "no_profile_fallback"}
		rationale = []string{"unresolved_profile_baseline"}
		return caps, readLanes, writeLanes, modelPlan, safetyPlan, rationale
	}

	if lanePolicy, ok := cp.MemoryLanePolicies[profile.MemoryLanePolicyID]; ok {
		readLanes = expandLaneTemplates(lanePolicy.ReadLanes, speaker.MemberID)
		writeLanes = expandLaneTemplates(lanePolicy.WriteLanes, speaker.MemberID)
	} else {
		lane := fmt.Sprintf("member_private:%s", speaker.MemberID)
		readLanes, writeLanes = []string{lane}, []string{lane}
	}

	if modelPolicy, ok := cp.ModelPolicies[profile.ModelPolicyID]; ok {
		modelPlan = ModelPlan{Tier: modelPolicy.Tier, Model: modelPolicy.Model, Reason: modelPolicy.Reason}
	} else {
		modelPlan = ModelPlan{Tier: "default", Model: "default", Reason: "no_model_policy_fallback"}
	}

	if safetyPolicy, ok := cp.SafetyPolicies[profile.SafetyPolicyID]; ok {
		if safetyPolicy.EscalationPolicyID != "" {
			safetyPlan.EscalationPolicyID = safetyPolicy.EscalationPolicyID
		}
	}

	return caps, readLanes, writeLanes, modelPlan, safetyPlan, rationale
}

func applyRiskOverrides(req Request, speaker Speaker, riskLevel config.RiskLevel, action Action, caps []string, safetyPlan SafetyPlan, rationale []string) (Action, []string, SafetyPlan, []string) {
	if speaker.Role != config.RoleChild {
		return action, caps, safetyPlan, rationale
	}

	var policy ProfilePolicy
	if req.ProfilePolicies != nil {
		policy = req.ProfilePolicies[speaker.ProfileID]
	}

	switch riskLevel {
	case config.RiskHigh:
		notify := true
		source := "_default"
		if policy.HighRiskParentNotificationDefault != nil {
			notify = *policy.HighRiskParentNotificationDefault
			source = "_profile_default"
		}
		if policy.HighRiskEscalationPolicyID != "" {
			safetyPlan.EscalationPolicyID = policy.HighRiskEscalationPolicyID
		}
		if notify {
			action = ActionRequiresParentApproval
		} else {
			action = ActionDeny
		}
		rationale = append(rationale, "high_risk_child_override"+source)
	case config.RiskMedium:
		notify := false
		source := "_default"
		if req.Overrides != nil && req.Overrides.MediumRiskParentNotification != nil {
			notify = *req.Overrides.MediumRiskParentNotification
			source = ""
		} else if policy.MediumRiskParentNotificationDefault != nil {
			notify = *policy.MediumRiskParentNotificationDefault
			source = "_profile_default"
		}
		if notify {
			action = ActionRequiresParentApproval
		}
		rationale = append(rationale, "medium_risk_parent_notification_override"+source)
	}

	return action, caps, safetyPlan, rationale
}

// applyExplicitOverrides applies capability-set and model overrides and, if
// anything changed, appends parent_overrides_applied once (spec.md §4.1
// step 7: "if anything changed, append parent_overrides_applied" — this
// covers both the capability set and an explicit model override).
func applyExplicitOverrides(req Request, caps []string, modelPlan ModelPlan, rationale []string) ([]string, ModelPlan, []string) {
	if req.Overrides == nil {
		return caps, modelPlan, rationale
	}

	result, capsChanged := applySetAddRemove(caps, req.Overrides.CapabilityAdditions, req.Overrides.CapabilityRemovals)

	modelChanged := false
	if req.Overrides.Model != "" && req.Overrides.Model != modelPlan.Model {
		modelPlan.Model = req.Overrides.Model
		modelChanged = true
	}

	if capsChanged || modelChanged {
		rationale = append(rationale, "parent_overrides_applied")
	}
	return result, modelPlan, rationale
}

func applyCompatibilityFallback(req Request, caps []string, modelPlan ModelPlan, rationale []string) (ModelPlan, []string) {
	if req.Compatibility == nil {
		return modelPlan, rationale
	}
	supported, ok := req.Compatibility.SupportedCapabilitiesByModel[modelPlan.Model]
	if !ok || containsAll(supported, caps) {
		return modelPlan, rationale
	}
	fallback, ok := req.Compatibility.FallbackModelByTier[modelPlan.Tier]
	if !ok {
		return modelPlan, rationale
	}
	fallbackSupported, ok := req.Compatibility.SupportedCapabilitiesByModel[fallback]
	if !ok || !containsAll(fallbackSupported, caps) {
		return modelPlan, rationale
	}
	modelPlan.Model = fallback
	rationale = append(rationale, "compatibility_fallback_model")
	return modelPlan, rationale
}
