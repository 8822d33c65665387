package listing

import (
	"context"

	"github.com/maplisted/maplisted/internal/approval"
)

// Decision is the outcome of resolving a viewer's entitlement for one
// listing.
type Decision struct {
	// AllowExact reports whether the viewer may see exact coordinates.
	AllowExact bool
}

// PrivacyGate decides how much location precision a requester may see.
type PrivacyGate struct {
	approvals approval.Repository
}

// NewPrivacyGate creates a new privacy gate backed by the approval store.
func NewPrivacyGate(approvals approval.Repository) *PrivacyGate {
	return &PrivacyGate{approvals: approvals}
}

// Resolve applies the disclosure precedence, in order:
//
//  1. anonymous requesters never see exact coordinates;
//  2. the owner always does;
//  3. anyone else does only if an approval exists for (listing, requester).
//
// The listing's visibility variant does not enter the decision:
// verified_only and hidden_until_contact are informational metadata today.
// Resolve has no side effects beyond the approval read.
func (g *PrivacyGate) Resolve(ctx context.Context, l *Listing, requesterID string) (Decision, error) {
	if requesterID == "" {
		return Decision{AllowExact: false}, nil
	}

	if requesterID == l.OwnerID {
		return Decision{AllowExact: true}, nil
	}

	exists, err := g.approvals.Exists(ctx, l.ID, requesterID)
	if err != nil {
		return Decision{}, err
	}
	return Decision{AllowExact: exists}, nil
}
