package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Tomlord1122/takeout/internal/domain"
	"github.com/Tomlord1122/takeout/internal/repository"
	"github.com/Tomlord1122/takeout/internal/testutil"
)

func seedUser(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repository.NewGormAccountRepository(db).Create(ctx, &domain.Account{
		ID: id, Email: id + "@example.com", PasswordHash: "x", CreatedAt: time.Now(),
	}))
	require.NoError(t, repository.NewGormUserRepository(db).Create(ctx, &domain.UserPublic{
		ID: id, Name: id, Username: id, JoinedAt: time.Now(), Version: 1,
	}))
}

func TestRepositories(t *testing.T) {
	db := testutil.MigratedDB(t).GetDB()
	ctx := context.Background()
	seedUser(t, db, "alice")
	seedUser(t, db, "bob")

	t.Run("version", func(t *testing.T) {
		versions := repository.NewGormVersionRepository(db)
		cur, err := versions.Current(ctx)
		require.NoError(t, err)
		next, err := versions.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, cur+1, next)
	})

	t.Run("todos", func(t *testing.T) {
		todos := repository.NewGormTodoRepository(db)
		require.NoError(t, todos.Create(ctx, &domain.Todo{ID: "t1", UserID: "alice", Text: "one", Version: 10}))
		require.NoError(t, todos.Create(ctx, &domain.Todo{ID: "t2", UserID: "alice", Text: "two", Completed: true, Version: 11}))
		require.NoError(t, todos.Create(ctx, &domain.Todo{ID: "t3", UserID: "bob", Text: "bob's", Version: 12}))

		err := todos.Create(ctx, &domain.Todo{ID: "t1", UserID: "alice", Text: "dup", Version: 13})
		assert.ErrorIs(t, err, domain.ErrConflict)

		list, err := todos.ListByUser(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, list, 2)

		got, err := todos.FindByID(ctx, "t1")
		require.NoError(t, err)
		got.Text = "one!"
		got.Version = 14
		require.NoError(t, todos.Update(ctx, got))

		changed, err := todos.ListChangedSince(ctx, "alice", 11)
		require.NoError(t, err)
		require.Len(t, changed, 1)
		assert.Equal(t, "one!", changed[0].Text)

		n, err := todos.ClearCompleted(ctx, "alice", 15)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		require.NoError(t, todos.SoftDelete(ctx, "t1", 16))
		assert.ErrorIs(t, todos.SoftDelete(ctx, "t1", 17), domain.ErrNotFound)

		list, err = todos.ListByUser(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, list)

		changed, err = todos.ListChangedSince(ctx, "alice", 14)
		require.NoError(t, err)
		require.Len(t, changed, 2)
		assert.True(t, changed[0].Deleted)
		assert.True(t, changed[1].Deleted)

		_, err = todos.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("users", func(t *testing.T) {
		users := repository.NewGormUserRepository(db)
		u, err := users.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		u.Username = "bob"
		u.Version = 20
		assert.ErrorIs(t, users.Update(ctx, u), domain.ErrConflict)

		u.Username = "alice2"
		require.NoError(t, users.Update(ctx, u))

		changed, err := users.ListChangedSince(ctx, 19)
		require.NoError(t, err)
		require.Len(t, changed, 1)
		assert.Equal(t, "alice2", changed[0].Username)
	})

	t.Run("user state", func(t *testing.T) {
		states := repository.NewGormUserStateRepository(db)
		_, err := states.Get(ctx, "alice")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, states.Upsert(ctx, &domain.UserState{UserID: "alice", DarkMode: true, Version: 30}))
		require.NoError(t, states.Upsert(ctx, &domain.UserState{UserID: "alice", DarkMode: false, Version: 31}))

		s, err := states.Get(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, s.DarkMode)

		s, err = states.ChangedSince(ctx, "alice", 31)
		require.NoError(t, err)
		assert.Nil(t, s)
		s, err = states.ChangedSince(ctx, "alice", 30)
		require.NoError(t, err)
		require.NotNil(t, s)
	})

	t.Run("clients", func(t *testing.T) {
		clients := repository.NewGormClientRepository(db)
		require.NoError(t, clients.Upsert(ctx, &domain.SyncClient{ID: "c1", ClientGroupID: "g1", UserID: "alice", LastMutationID: 1, Version: 40}))
		require.NoError(t, clients.Upsert(ctx, &domain.SyncClient{ID: "c1", ClientGroupID: "g1", UserID: "alice", LastMutationID: 2, Version: 41}))

		c, err := clients.Get(ctx, "c1")
		require.NoError(t, err)
		assert.EqualValues(t, 2, c.LastMutationID)

		changed, err := clients.ListChangedSince(ctx, "g1", 40)
		require.NoError(t, err)
		assert.Len(t, changed, 1)
	})
}

func TestClientRepository_GroupOwner(t *testing.T) {
	db := testutil.MigratedDB(t).GetDB()
	ctx := context.Background()
	clients := repository.NewGormClientRepository(db)

	owner, err := clients.GroupOwner(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, owner)

	require.NoError(t, clients.Upsert(ctx, &domain.SyncClient{ID: "c1", ClientGroupID: "g1", UserID: "alice", Version: 1}))
	owner, err = clients.GroupOwner(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
}
