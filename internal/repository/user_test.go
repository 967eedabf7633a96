package repository

import (
	"context"
	"testing"

	"ridehail/internal/models"
	"ridehail/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_UpsertRefreshesDisplayFields(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx,
		models.User{ID: "rider-1", Name: "Sara", Email: "sara@example.com"},
		models.User{ID: "driver-1", Name: "Omar", Email: "omar@example.com"},
	))
	require.NoError(t, repo.Upsert(ctx, models.User{ID: "rider-1", Name: "Sara K.", Email: "sara@example.com", Phone: "+966500000000"}))

	u, err := repo.GetByID(ctx, "rider-1")
	require.NoError(t, err)
	assert.Equal(t, "Sara K.", u.Name)
	assert.Equal(t, "+966500000000", u.Phone)

	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)

	assert.NoError(t, repo.Upsert(ctx))
}

func TestUserRepository_Lookups(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	testutil.SeedUsers(t, db, "b", "a", "c")
	repo := NewUserRepository(db)
	ctx := context.Background()

	users, err := repo.FindByIDs(ctx, []string{"c", "a", "missing"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].ID)
	assert.Equal(t, "c", users[1].ID)

	users, err = repo.FindByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}
