package listing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maplisted/maplisted/internal/approval"
	"github.com/maplisted/maplisted/internal/listing"
)

func TestPrivacyGate_Resolve(t *testing.T) {
	ctx := context.Background()

	approvals := approval.NewInMemoryRepository()
	_, err := approvals.Upsert(ctx, "lst_1", "usr_approved")
	require.NoError(t, err)

	// An approval naming the owner must not matter for anonymous viewers.
	_, err = approvals.Upsert(ctx, "lst_1", "usr_owner")
	require.NoError(t, err)

	gate := listing.NewPrivacyGate(approvals)
	l := &listing.Listing{ID: "lst_1", OwnerID: "usr_owner"}

	tests := []struct {
		name        string
		requesterID string
		wantExact   bool
	}{
		{"anonymous requester", "", false},
		{"owner", "usr_owner", true},
		{"approved viewer", "usr_approved", true},
		{"stranger", "usr_stranger", false},
		{"viewer approved for another listing", "usr_other", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := gate.Resolve(ctx, l, tt.requesterID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExact, decision.AllowExact)
		})
	}
}

func TestPrivacyGate_ApprovalIsPerListing(t *testing.T) {
	ctx := context.Background()

	approvals := approval.NewInMemoryRepository()
	_, err := approvals.Upsert(ctx, "lst_a", "usr_viewer")
	require.NoError(t, err)

	gate := listing.NewPrivacyGate(approvals)

	decision, err := gate.Resolve(ctx, &listing.Listing{ID: "lst_a", OwnerID: "usr_owner"}, "usr_viewer")
	require.NoError(t, err)
	assert.True(t, decision.AllowExact)

	decision, err = gate.Resolve(ctx, &listing.Listing{ID: "lst_b", OwnerID: "usr_owner"}, "usr_viewer")
	require.NoError(t, err)
	assert.False(t, decision.AllowExact)
}

// failingApprovals returns an error from every read.
type failingApprovals struct {
	approval.Repository
}

func (failingApprovals) Exists(context.Context, string, string) (bool, error) {
	return false, errors.New("store down")
}

func TestPrivacyGate_StoreErrorPropagates(t *testing.T) {
	gate := listing.NewPrivacyGate(failingApprovals{})

	_, err := gate.Resolve(context.Background(), &listing.Listing{ID: "lst_1", OwnerID: "usr_owner"}, "usr_viewer")
	assert.Error(t, err)
}

func TestPrivacyGate_OwnerSkipsApprovalRead(t *testing.T) {
	// The owner's entitlement must not depend on the approval store.
	gate := listing.NewPrivacyGate(failingApprovals{})

	decision, err := gate.Resolve(context.Background(), &listing.Listing{ID: "lst_1", OwnerID: "usr_owner"}, "usr_owner")
	require.NoError(t, err)
	assert.True(t, decision.AllowExact)
}
