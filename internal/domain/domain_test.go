package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodoPermissions(t *testing.T) {
	todo := &Todo{ID: "t1", UserID: "alice"}

	assert.True(t, CanMutateTodo("alice", todo))
	assert.False(t, CanMutateTodo("bob", todo))
	assert.False(t, CanMutateTodo("", todo))
	assert.False(t, CanReadTodo("alice", nil))
}

func TestUserPermissions(t *testing.T) {
	pub := &UserPublic{ID: "alice"}
	assert.True(t, CanReadUserPublic("bob", pub))
	assert.False(t, CanReadUserPublic("", pub))
	assert.True(t, CanMutateUserPublic("alice", pub))
	assert.False(t, CanMutateUserPublic("bob", pub))

	st := &UserState{UserID: "alice"}
	assert.True(t, CanMutateUserState("alice", st))
	assert.False(t, CanReadUserState("bob", st))
}

func TestNormalizeTodoText(t *testing.T) {
	got, err := NormalizeTodoText("  buy milk ")
	require.NoError(t, err)
	assert.Equal(t, "buy milk", got)

	_, err = NormalizeTodoText("   ")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = NormalizeTodoText(strings.Repeat("x", MaxTodoTextLen+1))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNormalizeUsername(t *testing.T) {
	got, err := NormalizeUsername(" Alice_1 ")
	require.NoError(t, err)
	assert.Equal(t, "alice_1", got)

	for _, bad := range []string{"ab", "has space", "dash-es", strings.Repeat("a", 33)} {
		_, err := NormalizeUsername(bad)
		assert.ErrorIs(t, err, ErrInvalid, bad)
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail(" Alice@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got)

	for _, bad := range []string{"", "alice", "@example.com", "alice@", "a b@c.d"} {
		_, err := NormalizeEmail(bad)
		assert.ErrorIs(t, err, ErrInvalid, bad)
	}
}
