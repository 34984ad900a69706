package config

import "fmt"

// Validate cross-checks the normalized Family value's internal references.
// It returns every issue found rather than failing fast, matching the
// teacher's preference for structured diagnostic results over single errors
// (cmd/doctor.go reports a list of checks, not the first failure).
func Validate(f *Family) []string {
	if f == nil {
		return []string{"family: config is nil"}
	}
	var issues []string

	seenMembers := make(map[string]bool, len(f.Members))
	for _, m := range f.Members {
		if m.MemberID == "" {
			issues = append(issues, "family.members[]: memberId must not be empty")
			continue
		}
		if seenMembers[m.MemberID] {
			issues = append(issues, fmt.Sprintf("family.members: duplicate memberId %q", m.MemberID))
		}
		seenMembers[m.MemberID] = true

		switch m.Role {
		case RoleParent, RoleChild:
		default:
			issues = append(issues, fmt.Sprintf("family.members[%s]: unknown role %q", m.MemberID, m.Role))
		}

		if m.Role == RoleChild {
			switch m.AgeGroup {
			case AgeGroupChild, AgeGroupTeen, AgeGroupYoungAdult:
			default:
				issues = append(issues, fmt.Sprintf("family.members[%s]: child role requires a valid ageGroup, got %q", m.MemberID, m.AgeGroup))
			}
		}

		if m.ProfileID != "" && f.ControlPlane != nil {
			if _, ok := f.ControlPlane.Profiles[m.ProfileID]; !ok {
				issues = append(issues, fmt.Sprintf("family.members[%s]: profileId %q not found in controlPlane.profiles", m.MemberID, m.ProfileID))
			}
		}
	}

	if f.ControlPlane != nil {
		cp := f.ControlPlane
		if cp.ActiveProfileID != "" {
			if _, ok := cp.Profiles[cp.ActiveProfileID]; !ok {
				issues = append(issues, fmt.Sprintf("controlPlane: activeProfileId %q not found in profiles", cp.ActiveProfileID))
			}
		}
		for id, p := range cp.Profiles {
			if p.CapabilityTierID != "" {
				if _, ok := cp.CapabilityTiers[p.CapabilityTierID]; !ok {
					issues = append(issues, fmt.Sprintf("controlPlane.profiles[%s]: capabilityTierId %q not found", id, p.CapabilityTierID))
				}
			}
			if p.MemoryLanePolicyID != "" {
				if _, ok := cp.MemoryLanePolicies[p.MemoryLanePolicyID]; !ok {
					issues = append(issues, fmt.Sprintf("controlPlane.profiles[%s]: memoryLanePolicyId %q not found", id, p.MemoryLanePolicyID))
				}
			}
			if p.ModelPolicyID != "" {
				if _, ok := cp.ModelPolicies[p.ModelPolicyID]; !ok {
					issues = append(issues, fmt.Sprintf("controlPlane.profiles[%s]: modelPolicyId %q not found", id, p.ModelPolicyID))
				}
			}
			if p.SafetyPolicyID != "" {
				if _, ok := cp.SafetyPolicies[p.SafetyPolicyID]; !ok {
					issues = append(issues, fmt.Sprintf("controlPlane.profiles[%s]: safetyPolicyId %q not found", id, p.SafetyPolicyID))
				}
			}
		}
		if cp.Operations != nil {
			for _, mid := range cp.Operations.ManagerMemberIDs {
				if !seenMembers[mid] {
					issues = append(issues, fmt.Sprintf("controlPlane.operations: managerMemberId %q not found in members", mid))
				}
			}
		}
	}

	issues = append(issues, ValidateOnboarding(f.Onboarding)...)

	return issues
}
