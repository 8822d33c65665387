package approval_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maplisted/maplisted/internal/approval"
)

func TestInMemoryRepository_UpsertIsIdempotent(t *testing.T) {
	repo := approval.NewInMemoryRepository()
	ctx := context.Background()

	first, err := repo.Upsert(ctx, "lst_a", "user_b")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := repo.Upsert(ctx, "lst_a", "user_b")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.ListingID, second.ListingID)
	assert.Equal(t, first.ViewerID, second.ViewerID)
	assert.False(t, second.ApprovedAt.Before(first.ApprovedAt))

	exists, err := repo.Exists(ctx, "lst_a", "user_b")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInMemoryRepository_ExistsIsFalseWhenMissing(t *testing.T) {
	repo := approval.NewInMemoryRepository()
	ctx := context.Background()

	exists, err := repo.Exists(ctx, "lst_a", "user_b")
	require.NoError(t, err)
	assert.False(t, exists)

	// Pairs are directional per (listing, viewer); a grant for one viewer
	// says nothing about another.
	_, err = repo.Upsert(ctx, "lst_a", "user_b")
	require.NoError(t, err)

	exists, err = repo.Exists(ctx, "lst_a", "user_c")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInMemoryRepository_DeleteForListing(t *testing.T) {
	repo := approval.NewInMemoryRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "lst_a", "user_b")
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "lst_a", "user_c")
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "lst_other", "user_b")
	require.NoError(t, err)

	removed, err := repo.DeleteForListing(ctx, "lst_a")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	exists, err := repo.Exists(ctx, "lst_a", "user_b")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.Exists(ctx, "lst_a", "user_c")
	require.NoError(t, err)
	assert.False(t, exists)

	// Approvals on other listings survive.
	exists, err = repo.Exists(ctx, "lst_other", "user_b")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInMemoryRepository_ConcurrentUpsertsCollapse(t *testing.T) {
	repo := approval.NewInMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Upsert(ctx, "lst_a", "user_b")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	exists, err := repo.Exists(ctx, "lst_a", "user_b")
	require.NoError(t, err)
	assert.True(t, exists)
}
