// Package syncer serves the push and pull endpoints used by sync clients.
//
// Every write bumps a single global version (sync_meta) inside its
// transaction and stamps the touched rows with it. A pull cookie is the
// global version the client last saw, so a pull returns exactly the rows
// whose version is greater than the cookie.
package syncer

import (
	"encoding/json"
	"errors"

	"github.com/Tomlord1122/takeout/internal/domain"
)

const (
	PushVersion = 1
	PullVersion = 1
)

var (
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrOutOfOrder         = errors.New("mutation out of order")
	ErrMissingGroup       = errors.New("clientGroupID is required")
)

// Mutation is one client-side change awaiting server confirmation.
type Mutation struct {
	ID        int64           `json:"id"`
	ClientID  string          `json:"clientID"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args"`
	Timestamp float64         `json:"timestamp"`
}

type PushRequest struct {
	ClientGroupID string     `json:"clientGroupID"`
	Mutations     []Mutation `json:"mutations"`
	PushVersion   int        `json:"pushVersion"`
	SchemaVersion string     `json:"schemaVersion"`
}

// MutationError reports a mutation that was consumed but had no effect.
type MutationError struct {
	ID       int64  `json:"id"`
	ClientID string `json:"clientID"`
	Name     string `json:"name"`
	Error    string `json:"error"`
}

type PushResponse struct {
	LastMutationIDs map[string]int64 `json:"lastMutationIDs"`
	Errors          []MutationError  `json:"errors,omitempty"`
}

type PullRequest struct {
	ClientGroupID string `json:"clientGroupID"`
	// Cookie is nil on the first pull or after a reset.
	Cookie        *int64 `json:"cookie"`
	PullVersion   int    `json:"pullVersion"`
	SchemaVersion string `json:"schemaVersion"`
}

type PullResponse struct {
	Cookie                int64            `json:"cookie"`
	LastMutationIDChanges map[string]int64 `json:"lastMutationIDChanges"`
	Patch                 []PatchOp        `json:"patch"`
}

const (
	OpPut   = "put"
	OpDel   = "del"
	OpClear = "clear"
)

const (
	TableTodo       = "todo"
	TableUserPublic = "userPublic"
	TableUserState  = "userState"
)

type PatchOp struct {
	Op        string `json:"op"`
	TableName string `json:"tableName,omitempty"`
	Key       string `json:"key,omitempty"`
	Value     any    `json:"value,omitempty"`
}

// TodoRow is a todo as sync clients store it. CreatedAt is unix
// milliseconds, the same unit todo.insert accepts.
type TodoRow struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt int64  `json:"createdAt"`
}

func NewTodoRow(t *domain.Todo) TodoRow {
	return TodoRow{
		ID:        t.ID,
		UserID:    t.UserID,
		Text:      t.Text,
		Completed: t.Completed,
		CreatedAt: t.CreatedAt.UnixMilli(),
	}
}

// UserPublicRow is a profile as sync clients store it; JoinedAt is unix ms.
type UserPublicRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Image    string `json:"image"`
	JoinedAt int64  `json:"joinedAt"`
}

func NewUserPublicRow(u *domain.UserPublic) UserPublicRow {
	return UserPublicRow{
		ID:       u.ID,
		Name:     u.Name,
		Username: u.Username,
		Image:    u.Image,
		JoinedAt: u.JoinedAt.UnixMilli(),
	}
}

func acceptVersion(got, want int) bool {
	// 0 means the client did not send one.
	return got == 0 || got == want
}
