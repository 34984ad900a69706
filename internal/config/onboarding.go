package config

import (
	"fmt"
	"time"
)

// InviteState is the lifecycle state of an onboarding invite.
type InviteState string

const (
	InviteIssued   InviteState = "issued"
	InviteAccepted InviteState = "accepted"
	InviteExpired  InviteState = "expired"
	InviteRevoked  InviteState = "revoked"
)

// Household identifies the onboarded household.
type Household struct {
	HouseholdID string    `json:"householdId"`
	DisplayName string    `json:"displayName"`
	OwnerMemberID string  `json:"ownerMemberId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MemberLink associates a configured member with the onboarding contract.
type MemberLink struct {
	MemberID        string `json:"memberId"`
	TelegramUserID  string `json:"telegramUserId"`
}

// Invite tracks a pending or resolved onboarding invitation.
type Invite struct {
	InviteID   string      `json:"inviteId"`
	State      InviteState `json:"state"`
	IssuedAt   time.Time   `json:"issuedAt"`
	ExpiresAt  time.Time   `json:"expiresAt"`

	// Accepted terminal metadata (required when State == InviteAccepted).
	AcceptedAt             time.Time `json:"acceptedAt,omitzero"`
	AcceptedByMemberID      string    `json:"acceptedByMemberId,omitempty"`
	AcceptedTelegramUserID  string    `json:"acceptedTelegramUserId,omitempty"`

	// Revoked terminal metadata (required when State == InviteRevoked).
	RevokedAt        time.Time `json:"revokedAt,omitzero"`
	RevokedByMemberID string    `json:"revokedByMemberId,omitempty"`

	// Expired terminal metadata (required when State == InviteExpired).
	ExpiredAt time.Time `json:"expiredAt,omitzero"`
}

// Relink records a member's telegram account change.
type Relink struct {
	MemberID               string    `json:"memberId"`
	PreviousTelegramUserID string    `json:"previousTelegramUserId"`
	NextTelegramUserID     string    `json:"nextTelegramUserId"`
	RelinkedAt             time.Time `json:"relinkedAt"`
}

// ScopeTerminology fixes the display literals for scope kinds. Values are
// constant by contract; Validate rejects a contract where they differ.
type ScopeTerminology struct {
	MemberDM     string `json:"memberDM"`
	ParentsGroup string `json:"parentsGroup"`
	FamilyGroup  string `json:"familyGroup"`
}

// DefaultScopeTerminology returns the fixed literals required by spec.md §3.
func DefaultScopeTerminology() ScopeTerminology {
	return ScopeTerminology{
		MemberDM:     "member DM",
		ParentsGroup: "parents group",
		FamilyGroup:  "family group",
	}
}

// OnboardingContract is the optional onboarding/household data subtree.
// It is created only by Bootstrap and mutated only by the onboarding
// operations (Bootstrap, IssueInvite, AcceptInvite, RevokeInvite,
// ExpireInvite, RelinkMember); it is never
// destroyed, only replaced in place alongside the config.
type OnboardingContract struct {
	Household        Household          `json:"household"`
	MemberLinks       []MemberLink       `json:"memberLinks"`
	Invites           []Invite           `json:"invites"`
	Relinks           []Relink           `json:"relinks"`
	ScopeTerminology  ScopeTerminology   `json:"scopeTerminology"`
}

// Bootstrap idempotently creates the onboarding contract for a household.
// Calling Bootstrap again with the same householdID on an already-bootstrapped
// contract is a no-op that returns the existing value unchanged.
func Bootstrap(existing *OnboardingContract, householdID, displayName, ownerMemberID string, now time.Time) (*OnboardingContract, error) {
	if existing != nil {
		if existing.Household.HouseholdID != householdID {
			return nil, fmt.Errorf("onboarding: household %q already bootstrapped, cannot rebootstrap as %q", existing.Household.HouseholdID, householdID)
		}
		return existing, nil
	}
	return &OnboardingContract{
		Household: Household{
			HouseholdID:   householdID,
			DisplayName:   displayName,
			OwnerMemberID: ownerMemberID,
			CreatedAt:     now,
		},
		MemberLinks:      []MemberLink{},
		Invites:          []Invite{},
		Relinks:          []Relink{},
		ScopeTerminology: DefaultScopeTerminology(),
	}, nil
}

// IssueInvite appends a new issued invite. Returns the updated contract (the
// receiver is not mutated in place — callers persist the returned value).
func IssueInvite(c *OnboardingContract, inviteID string, issuedAt, expiresAt time.Time) (*OnboardingContract, error) {
	if c == nil {
		return nil, fmt.Errorf("onboarding: contract not bootstrapped")
	}
	if !expiresAt.After(issuedAt) {
		return nil, fmt.Errorf("onboarding: invite %q expiresAt must be after issuedAt", inviteID)
	}
	for _, inv := range c.Invites {
		if inv.InviteID == inviteID {
			return nil, fmt.Errorf("onboarding: invite %q already exists", inviteID)
		}
	}
	next := *c
	next.Invites = append(append([]Invite{}, c.Invites...), Invite{
		InviteID:  inviteID,
		State:     InviteIssued,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	})
	return &next, nil
}

// AcceptInvite transitions an issued invite to accepted, recording the
// accepting member and telegram user id. acceptedAt must be <= expiresAt.
func AcceptInvite(c *OnboardingContract, inviteID string, acceptedAt time.Time, acceptedByMemberID, acceptedTelegramUserID string) (*OnboardingContract, error) {
	if c == nil {
		return nil, fmt.Errorf("onboarding: contract not bootstrapped")
	}
	next := *c
	next.Invites = append([]Invite{}, c.Invites...)
	found := false
	for i := range next.Invites {
		if next.Invites[i].InviteID != inviteID {
			continue
		}
		found = true
		inv := &next.Invites[i]
		if inv.State != InviteIssued {
			return nil, fmt.Errorf("onboarding: invite %q is %s, cannot accept", inviteID, inv.State)
		}
		if acceptedAt.After(inv.ExpiresAt) {
			return nil, fmt.Errorf("onboarding: invite %q accepted after expiry", inviteID)
		}
		if acceptedByMemberID == "" || acceptedTelegramUserID == "" {
			return nil, fmt.Errorf("onboarding: accept requires acceptedByMemberId and acceptedTelegramUserId")
		}
		inv.State = InviteAccepted
		inv.AcceptedAt = acceptedAt
		inv.AcceptedByMemberID = acceptedByMemberID
		inv.AcceptedTelegramUserID = acceptedTelegramUserID
	}
	if !found {
		return nil, fmt.Errorf("onboarding: invite %q not found", inviteID)
	}
	return &next, nil
}

// RevokeInvite transitions an issued invite to revoked.
func RevokeInvite(c *OnboardingContract, inviteID string, revokedAt time.Time, revokedByMemberID string) (*OnboardingContract, error) {
	if c == nil {
		return nil, fmt.Errorf("onboarding: contract not bootstrapped")
	}
	if revokedByMemberID == "" {
		return nil, fmt.Errorf("onboarding: revoke requires revokedByMemberId")
	}
	next := *c
	next.Invites = append([]Invite{}, c.Invites...)
	found := false
	for i := range next.Invites {
		if next.Invites[i].InviteID != inviteID {
			continue
		}
		found = true
		inv := &next.Invites[i]
		if inv.State != InviteIssued {
			return nil, fmt.Errorf("onboarding: invite %q is %s, cannot revoke", inviteID, inv.State)
		}
		inv.State = InviteRevoked
		inv.RevokedAt = revokedAt
		inv.RevokedByMemberID = revokedByMemberID
	}
	if !found {
		return nil, fmt.Errorf("onboarding: invite %q not found", inviteID)
	}
	return &next, nil
}

// ExpireInvite transitions an issued invite past its expiry to expired.
func ExpireInvite(c *OnboardingContract, inviteID string, expiredAt time.Time) (*OnboardingContract, error) {
	if c == nil {
		return nil, fmt.Errorf("onboarding: contract not bootstrapped")
	}
	next := *c
	next.Invites = append([]Invite{}, c.Invites...)
	found := false
	for i := range next.Invites {
		if next.Invites[i].InviteID != inviteID {
			continue
		}
		found = true
		inv := &next.Invites[i]
		if inv.State != InviteIssued {
			return nil, fmt.Errorf("onboarding: invite %q is %s, cannot expire", inviteID, inv.State)
		}
		if !expiredAt.After(inv.ExpiresAt) {
			return nil, fmt.Errorf("onboarding: invite %q has not reached its expiry", inviteID)
		}
		inv.State = InviteExpired
		inv.ExpiredAt = expiredAt
	}
	if !found {
		return nil, fmt.Errorf("onboarding: invite %q not found", inviteID)
	}
	return &next, nil
}

// RelinkMember records a member's telegram account change, appending to the
// relink history and updating (or adding) the member's link.
func RelinkMember(c *OnboardingContract, memberID, previousTelegramUserID, nextTelegramUserID string, relinkedAt time.Time) (*OnboardingContract, error) {
	if c == nil {
		return nil, fmt.Errorf("onboarding: contract not bootstrapped")
	}
	if previousTelegramUserID == nextTelegramUserID {
		return nil, fmt.Errorf("onboarding: relink requires previousTelegramUserId != nextTelegramUserId")
	}
	next := *c
	next.Relinks = append(append([]Relink{}, c.Relinks...), Relink{
		MemberID:               memberID,
		PreviousTelegramUserID: previousTelegramUserID,
		NextTelegramUserID:     nextTelegramUserID,
		RelinkedAt:             relinkedAt,
	})

	next.MemberLinks = append([]MemberLink{}, c.MemberLinks...)
	updated := false
	for i := range next.MemberLinks {
		if next.MemberLinks[i].MemberID == memberID {
			next.MemberLinks[i].TelegramUserID = nextTelegramUserID
			updated = true
		}
	}
	if !updated {
		next.MemberLinks = append(next.MemberLinks, MemberLink{MemberID: memberID, TelegramUserID: nextTelegramUserID})
	}
	return &next, nil
}

// ValidateOnboarding checks the onboarding contract invariants from spec.md §3.
func ValidateOnboarding(c *OnboardingContract) []string {
	if c == nil {
		return nil
	}
	var issues []string
	if len(c.MemberLinks) == 0 {
		issues = append(issues, "onboarding.memberLinks: must have at least one entry")
	}
	want := DefaultScopeTerminology()
	if c.ScopeTerminology != want {
		issues = append(issues, fmt.Sprintf("onboarding.scopeTerminology: must equal %+v", want))
	}
	for _, inv := range c.Invites {
		switch inv.State {
		case InviteAccepted:
			if inv.AcceptedAt.After(inv.ExpiresAt) {
				issues = append(issues, fmt.Sprintf("onboarding.invites[%s]: acceptedAt must be <= expiresAt", inv.InviteID))
			}
			if inv.AcceptedByMemberID == "" || inv.AcceptedTelegramUserID == "" {
				issues = append(issues, fmt.Sprintf("onboarding.invites[%s]: accepted state requires acceptedByMemberId and acceptedTelegramUserId", inv.InviteID))
			}
		case InviteRevoked:
			if inv.RevokedAt.IsZero() || inv.RevokedByMemberID == "" {
				issues = append(issues, fmt.Sprintf("onboarding.invites[%s]: revoked state requires revokedAt and revokedByMemberId", inv.InviteID))
			}
		case InviteExpired:
			if inv.ExpiredAt.IsZero() {
				issues = append(issues, fmt.Sprintf("onboarding.invites[%s]: expired state requires expiredAt", inv.InviteID))
			}
		case InviteIssued:
			// no terminal metadata required
		default:
			issues = append(issues, fmt.Sprintf("onboarding.invites[%s]: unknown state %q", inv.InviteID, inv.State))
		}
	}
	for _, rl := range c.Relinks {
		if rl.PreviousTelegramUserID == rl.NextTelegramUserID {
			issues = append(issues, fmt.Sprintf("onboarding.relinks[%s]: previousTelegramUserId must differ from nextTelegramUserId", rl.MemberID))
		}
	}
	return issues
}
