package envelope

import (
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/halo/internal/config"
)

func familyWithWagsAndKid() *config.Family {
	return &config.Family{
		SchemaVersion: 1,
		FamilyID:      "fam1",
		Members: []config.Member{
			{MemberID: "wags", Role: config.RoleParent, TelegramUserIDs: []string{"456"}},
			{MemberID: "kid", Role: config.RoleChild, AgeGroup: config.AgeGroupTeen, TelegramUserIDs: []string{"999"}},
		},
	}
}

func TestResolve_UnknownUserDeterministicDeny(t *testing.T) {
	req := Request{
		Family: familyWithWagsAndKid(),
		Chat:   Chat{ID: "111", IsGroup: false},
		FromID: "111",
	}
	env := Resolve(req)
	if env.Action != ActionDeny {
		t.Fatalf("action = %v, want deny", env.Action)
	}
	if env.Speaker.Known {
		t.Fatalf("speaker should be unknown")
	}
	if !containsRationale(env.Rationale, "unknown_user") {
		t.Fatalf("rationale %v missing unknown_user", env.Rationale)
	}

	// Determinism: identical input yields identical output.
	env2 := Resolve(req)
	if !reflect.DeepEqual(env, env2) {
		t.Fatalf("resolve is not deterministic: %+v != %+v", env, env2)
	}
}

func TestResolve_FamilyGroupMentionGating(t *testing.T) {
	family := familyWithWagsAndKid()

	notMentioned := Request{
		Family:            family,
		Chat:              Chat{ID: "888", IsGroup: true},
		FromID:            "456",
		FamilyGroupChatID: "888",
		Intent:            Intent{IsMentioned: false},
	}
	env := Resolve(notMentioned)
	if env.Action != ActionDeny {
		t.Fatalf("action = %v, want deny", env.Action)
	}
	if !containsRationale(env.Rationale, "mention_required_in_family_group") || !containsRationale(env.Rationale, "family_group_mention_exceptions_none") {
		t.Fatalf("rationale %v missing mention gating codes", env.Rationale)
	}

	mentioned := notMentioned
	mentioned.Intent = Intent{IsMentioned: true}
	env2 := Resolve(mentioned)
	if env2.Action != ActionAllow {
		t.Fatalf("action = %v, want allow", env2.Action)
	}
	if env2.Scope.ScopeType != config.ScopeFamilyGroup {
		t.Fatalf("scopeType = %v, want family_group", env2.Scope.ScopeType)
	}
	if !containsRationale(env2.AllowedCapabilities, "chat.respond.group_safe") {
		t.Fatalf("capabilities %v missing chat.respond.group_safe", env2.AllowedCapabilities)
	}
}

func TestResolve_HighRiskAdultHardDenyBeatsDMAllow(t *testing.T) {
	req := Request{
		Family:       familyWithWagsAndKid(),
		Chat:         Chat{ID: "456", IsGroup: false},
		FromID:       "456",
		SafetySignal: &SafetySignal{RiskLevel: config.RiskHigh},
	}
	env := Resolve(req)
	if env.Action != ActionDeny {
		t.Fatalf("action = %v, want deny", env.Action)
	}
	if !containsRationale(env.Rationale, "safety_high_risk_hard_deny") {
		t.Fatalf("rationale %v missing safety_high_risk_hard_deny", env.Rationale)
	}
}

func TestResolve_HighRiskChildNotifiesParentByDefault(t *testing.T) {
	req := Request{
		Family:       familyWithWagsAndKid(),
		Chat:         Chat{ID: "999", IsGroup: false},
		FromID:       "999",
		SafetySignal: &SafetySignal{RiskLevel: config.RiskHigh},
	}
	env := Resolve(req)
	if env.Action != ActionRequiresParentApproval {
		t.Fatalf("action = %v, want requires_parent_approval", env.Action)
	}
	if !containsRationale(env.Rationale, "high_risk_child_override_default") {
		t.Fatalf("rationale %v missing high_risk_child_override_default", env.Rationale)
	}
}

func TestResolve_ChildInParentsGroupDenied(t *testing.T) {
	family := familyWithWagsAndKid()
	family.ParentsGroup = &config.ParentsGroup{TelegramChatID: "777"}
	req := Request{
		Family: family,
		Chat:   Chat{ID: "777", IsGroup: true},
		FromID: "999",
	}
	env := Resolve(req)
	if env.Action != ActionDeny {
		t.Fatalf("action = %v, want deny", env.Action)
	}
	if !containsRationale(env.Rationale, "child_in_parents_group") {
		t.Fatalf("rationale %v missing child_in_parents_group", env.Rationale)
	}
}

func TestResolve_OverridesAreSortedAndDeduped(t *testing.T) {
	req := Request{
		Family: familyWithWagsAndKid(),
		Chat:   Chat{ID: "456", IsGroup: false},
		FromID: "456",
		Overrides: &Overrides{
			CapabilityAdditions: []string{"tools.web", "chat.respond"},
		},
	}
	env := Resolve(req)
	if !reflect.DeepEqual(env.AllowedCapabilities, []string{"chat.respond", "tools.web"}) {
		t.Fatalf("capabilities = %v", env.AllowedCapabilities)
	}
	if !containsRationale(env.Rationale, "parent_overrides_applied") {
		t.Fatalf("rationale %v missing parent_overrides_applied", env.Rationale)
	}
}

func containsRationale(list []string, want string) bool {
	for _, r := range list {
		if r == want {
			return true
		}
	}
	return false
}
