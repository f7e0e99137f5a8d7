package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/takeout/internal/auth"
	"github.com/Tomlord1122/takeout/internal/cache"
	"github.com/Tomlord1122/takeout/internal/domain"
	"github.com/Tomlord1122/takeout/internal/repository"
	"github.com/Tomlord1122/takeout/internal/service"
	"github.com/Tomlord1122/takeout/internal/syncer"
	"github.com/Tomlord1122/takeout/internal/testutil"
)

type services struct {
	auth  service.AuthService
	todos service.TodoService
	users service.UserService
}

func newServices(t *testing.T, demo bool) services {
	t.Helper()
	db := testutil.MigratedDB(t).GetDB()
	store := cache.NewMemory("test")
	t.Cleanup(func() { _ = store.Close() })

	sessions := auth.NewSessions(store, time.Hour)
	tokens := auth.NewTokens("test-secret", "takeout", "takeout-sync", time.Minute)
	engine := syncer.NewEngine(db)
	return services{
		auth:  service.NewAuthService(db, sessions, tokens, demo),
		todos: service.NewTodoService(repository.NewGormTodoRepository(db), engine),
		users: service.NewUserService(repository.NewGormUserRepository(db), repository.NewGormUserStateRepository(db), engine),
	}
}

func signUp(t *testing.T, s services, email, username string) *service.SessionResponse {
	t.Helper()
	resp, err := s.auth.SignUp(context.Background(), service.SignUpRequest{
		Email: email, Password: "correct horse", Name: username, Username: username,
	})
	require.NoError(t, err)
	return resp
}

func TestAuthService(t *testing.T) {
	s := newServices(t, false)
	ctx := context.Background()

	alice := signUp(t, s, "Alice@Example.com", "alice")
	require.NotNil(t, alice.Session)
	assert.Equal(t, "alice", alice.User.Username)
	assert.NotEmpty(t, alice.User.ID)

	t.Run("duplicates conflict", func(t *testing.T) {
		_, err := s.auth.SignUp(ctx, service.SignUpRequest{Email: "alice@example.com", Password: "correct horse", Username: "other"})
		assert.ErrorIs(t, err, domain.ErrConflict)
		_, err = s.auth.SignUp(ctx, service.SignUpRequest{Email: "new@example.com", Password: "correct horse", Username: "alice"})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("weak password is invalid", func(t *testing.T) {
		_, err := s.auth.SignUp(ctx, service.SignUpRequest{Email: "weak@example.com", Password: "short", Username: "weak"})
		assert.ErrorIs(t, err, domain.ErrInvalid)
	})

	t.Run("sign in", func(t *testing.T) {
		resp, err := s.auth.SignIn(ctx, service.SignInRequest{Email: "alice@example.com", Password: "correct horse"})
		require.NoError(t, err)
		assert.Equal(t, alice.User.ID, resp.User.ID)
		assert.NotEqual(t, alice.Session.Token, resp.Session.Token)

		_, err = s.auth.SignIn(ctx, service.SignInRequest{Email: "alice@example.com", Password: "wrong password"})
		assert.ErrorIs(t, err, service.ErrInvalidCredentials)
		_, err = s.auth.SignIn(ctx, service.SignInRequest{Email: "nobody@example.com", Password: "correct horse"})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("session and token", func(t *testing.T) {
		p := &auth.Principal{UserID: alice.User.ID, SessionToken: alice.Session.Token}
		sess, err := s.auth.Session(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, alice.Session.Token, sess.Session.Token)

		none, err := s.auth.Session(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, none)

		tok, err := s.auth.Token(ctx, alice.User.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, tok.Token)
		assert.True(t, tok.ExpiresAt.After(time.Now()))
	})

	t.Run("sign out", func(t *testing.T) {
		require.NoError(t, s.auth.SignOut(ctx, alice.Session.Token))
		sess, err := s.auth.Session(ctx, &auth.Principal{UserID: alice.User.ID, SessionToken: alice.Session.Token})
		require.NoError(t, err)
		assert.Nil(t, sess.Session)
	})

	t.Run("demo disabled", func(t *testing.T) {
		_, err := s.auth.SignInDemo(ctx)
		assert.ErrorIs(t, err, service.ErrDemoDisabled)
	})
}

func TestAuthService_Demo(t *testing.T) {
	s := newServices(t, true)
	ctx := context.Background()

	first, err := s.auth.SignInDemo(ctx)
	require.NoError(t, err)
	second, err := s.auth.SignInDemo(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "demo", first.User.Username)
}

func TestTodoService(t *testing.T) {
	s := newServices(t, false)
	ctx := context.Background()
	alice := signUp(t, s, "alice@example.com", "alice").User.ID
	bob := signUp(t, s, "bob@example.com", "bob").User.ID

	created, err := s.todos.CreateTodo(ctx, alice, service.CreateTodoRequest{Text: " write tests "})
	require.NoError(t, err)
	assert.Equal(t, "write tests", created.Text)
	assert.Equal(t, alice, created.UserID)

	_, err = s.todos.CreateTodo(ctx, alice, service.CreateTodoRequest{Text: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalid)

	done := true
	updated, err := s.todos.UpdateTodo(ctx, alice, created.ID, service.UpdateTodoRequest{Completed: &done})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "write tests", updated.Text)

	_, err = s.todos.GetTodoByID(ctx, bob, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.todos.UpdateTodo(ctx, bob, created.ID, service.UpdateTodoRequest{Completed: &done})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, s.todos.DeleteTodo(ctx, bob, created.ID), domain.ErrForbidden)

	_, err = s.todos.CreateTodo(ctx, alice, service.CreateTodoRequest{ID: "keep", Text: "keep me"})
	require.NoError(t, err)
	require.NoError(t, s.todos.ClearCompleted(ctx, alice))

	list, err := s.todos.GetAllTodos(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "keep", list[0].ID)

	require.NoError(t, s.todos.DeleteTodo(ctx, alice, "keep"))
	assert.ErrorIs(t, s.todos.DeleteTodo(ctx, alice, "keep"), domain.ErrNotFound)

	bobs, err := s.todos.GetAllTodos(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, bobs)
}

func TestUserService(t *testing.T) {
	s := newServices(t, false)
	ctx := context.Background()
	alice := signUp(t, s, "alice@example.com", "alice").User.ID
	bob := signUp(t, s, "bob@example.com", "bob").User.ID

	u, err := s.users.GetPublic(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = s.users.GetPublic(ctx, "", alice)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	name := "Alice Liddell"
	u, err = s.users.UpdateProfile(ctx, alice, service.UpdateProfileRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, u.Name)

	taken := "bob"
	_, err = s.users.UpdateProfile(ctx, alice, service.UpdateProfileRequest{Username: &taken})
	assert.ErrorIs(t, err, domain.ErrConflict)

	st, err := s.users.GetState(ctx, alice)
	require.NoError(t, err)
	assert.False(t, st.DarkMode)

	st, err = s.users.SetDarkMode(ctx, alice, true)
	require.NoError(t, err)
	assert.True(t, st.DarkMode)
}
