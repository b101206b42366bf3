package credits

import "github.com/localhive/backend/internal/models"

// Policy describes how a role is credit-gated. New roles compose by adding a
// table row, not by branching in the service.
type Policy struct {
	// Gated means the role must pass an eligibility check (and consume a
	// credit) before the gated action.
	Gated bool
	// FreeFirstUse grants the role's first gated action for free.
	FreeFirstUse bool
}

// PolicyTable maps role -> policy. Unknown roles are ungated.
type PolicyTable map[string]Policy

// For returns the policy for the role, or the zero (ungated) policy.
func (t PolicyTable) For(role string) Policy {
	return t[role]
}

// DefaultPolicies gates providers (offer submission costs one credit, first
// one free) and leaves requesters ungated.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		models.RoleProvider:  {Gated: true, FreeFirstUse: true},
		models.RoleRequester: {},
	}
}
