package config

import (
	"testing"
	"time"
)

func TestBootstrapIsIdempotent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := Bootstrap(nil, "house1", "The Smiths", "wags", now)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	again, err := Bootstrap(c, "house1", "The Smiths", "wags", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Bootstrap (idempotent): %v", err)
	}
	if again != c {
		t.Fatalf("Bootstrap on existing contract should return the same value unchanged")
	}
}

func TestBootstrapRejectsRebootstrapWithDifferentHousehold(t *testing.T) {
	now := time.Now()
	c, _ := Bootstrap(nil, "house1", "The Smiths", "wags", now)
	if _, err := Bootstrap(c, "house2", "Other", "wags", now); err == nil {
		t.Fatal("expected error rebootstrapping with a different householdId")
	}
}

func TestIssueAcceptInviteLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, _ := Bootstrap(nil, "house1", "The Smiths", "wags", now)

	c, err := IssueInvite(c, "inv1", now, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("IssueInvite: %v", err)
	}
	if len(c.Invites) != 1 || c.Invites[0].State != InviteIssued {
		t.Fatalf("invites = %+v", c.Invites)
	}

	c, err = AcceptInvite(c, "inv1", now.Add(time.Hour), "kid", "999")
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if c.Invites[0].State != InviteAccepted {
		t.Fatalf("state = %v, want accepted", c.Invites[0].State)
	}

	if _, err := AcceptInvite(c, "inv1", now.Add(2*time.Hour), "kid", "999"); err == nil {
		t.Fatal("expected error accepting an already-accepted invite")
	}
}

func TestAcceptInviteAfterExpiryFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, _ := Bootstrap(nil, "house1", "The Smiths", "wags", now)
	c, _ = IssueInvite(c, "inv1", now, now.Add(time.Hour))

	if _, err := AcceptInvite(c, "inv1", now.Add(2*time.Hour), "kid", "999"); err == nil {
		t.Fatal("expected error accepting an invite past its expiry")
	}
}

func TestRevokeInviteRequiresIssuedState(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, _ := Bootstrap(nil, "house1", "The Smiths", "wags", now)
	c, _ = IssueInvite(c, "inv1", now, now.Add(time.Hour))
	c, _ = AcceptInvite(c, "inv1", now.Add(time.Minute), "kid", "999")

	if _, err := RevokeInvite(c, "inv1", now.Add(2*time.Minute), "wags"); err == nil {
		t.Fatal("expected error revoking an accepted invite")
	}
}

func TestRelinkMemberUpdatesExistingLink(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, _ := Bootstrap(nil, "house1", "The Smiths", "wags", now)
	c, err := RelinkMember(c, "kid", "999", "111", now)
	if err != nil {
		t.Fatalf("RelinkMember: %v", err)
	}
	if len(c.MemberLinks) != 1 || c.MemberLinks[0].TelegramUserID != "111" {
		t.Fatalf("memberLinks = %+v", c.MemberLinks)
	}

	c, err = RelinkMember(c, "kid", "111", "222", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("RelinkMember (second): %v", err)
	}
	if len(c.MemberLinks) != 1 || c.MemberLinks[0].TelegramUserID != "222" {
		t.Fatalf("memberLinks after second relink = %+v", c.MemberLinks)
	}
	if len(c.Relinks) != 2 {
		t.Fatalf("relinks = %+v, want 2 history entries", c.Relinks)
	}
}

func TestRelinkMemberRejectsNoOpChange(t *testing.T) {
	now := time.Now()
	c, _ := Bootstrap(nil, "house1", "The Smiths", "wags", now)
	if _, err := RelinkMember(c, "kid", "999", "999", now); err == nil {
		t.Fatal("expected error when previous and next telegram user ids match")
	}
}

func TestValidateOnboardingRequiresFixedScopeTerminology(t *testing.T) {
	now := time.Now()
	c, _ := Bootstrap(nil, "house1", "The Smiths", "wags", now)
	c.MemberLinks = []MemberLink{{MemberID: "wags", TelegramUserID: "456"}}
	c.ScopeTerminology.FamilyGroup = "household chat"

	issues := ValidateOnboarding(c)
	if !containsIssue(issues, "scopeTerminology") {
		t.Fatalf("issues = %v, want scopeTerminology complaint", issues)
	}
}

func TestValidateOnboardingRequiresAtLeastOneMemberLink(t *testing.T) {
	now := time.Now()
	c, _ := Bootstrap(nil, "house1", "The Smiths", "wags", now)

	issues := ValidateOnboarding(c)
	if !containsIssue(issues, "must have at least one entry") {
		t.Fatalf("issues = %v, want memberLinks complaint", issues)
	}
}
