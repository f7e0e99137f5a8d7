package syncer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/takeout/internal/domain"
)

func TestDecodeArgs(t *testing.T) {
	var args updateTodoArgs
	require.NoError(t, decodeArgs(json.RawMessage(`{"id":"t1","completed":true}`), &args))
	assert.Equal(t, "t1", args.ID)
	require.NotNil(t, args.Completed)
	assert.True(t, *args.Completed)
	assert.Nil(t, args.Text)

	err := decodeArgs(json.RawMessage(`{"id":"t1","bogus":1}`), &args)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	var empty struct{}
	assert.NoError(t, decodeArgs(nil, &empty))
}

func TestAcceptVersion(t *testing.T) {
	assert.True(t, acceptVersion(0, PushVersion))
	assert.True(t, acceptVersion(1, PushVersion))
	assert.False(t, acceptVersion(2, PushVersion))
}

func TestEngine_RejectsBeforeTouchingTheDatabase(t *testing.T) {
	e := &Engine{mutators: DefaultMutators()}
	ctx := context.Background()

	_, err := e.Push(ctx, "", PushRequest{ClientGroupID: "g"})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = e.Push(ctx, "alice", PushRequest{ClientGroupID: "g", PushVersion: 9})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = e.Pull(ctx, "alice", PullRequest{})
	assert.ErrorIs(t, err, ErrMissingGroup)

	_, err = e.mutator("todo.nope")
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(domain.ErrForbidden))
	assert.True(t, IsClientError(domain.ErrConflict))
	assert.False(t, IsClientError(ErrOutOfOrder))
	assert.False(t, IsClientError(assert.AnError))
}
