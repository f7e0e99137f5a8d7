package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Tomlord1122/takeout/internal/domain"
	"github.com/Tomlord1122/takeout/internal/repository"
)

// Tx is the state a mutator writes through: repositories bound to the
// current transaction, the caller and the version to stamp rows with.
type Tx struct {
	UserID  string
	Version int64
	Todos   repository.TodoRepository
	Users   repository.UserRepository
	States  repository.UserStateRepository
}

// Mutator applies one named mutation. Errors wrapping a domain sentinel
// are reported back to the client; anything else aborts the push.
type Mutator func(ctx context.Context, tx *Tx, args json.RawMessage) error

const maxTodoIDLen = 64

// DefaultMutators returns the mutators for every synced table.
func DefaultMutators() map[string]Mutator {
	return map[string]Mutator{
		"todo.insert":         insertTodo,
		"todo.update":         updateTodo,
		"todo.delete":         deleteTodo,
		"todo.clearCompleted": clearCompleted,
		"userPublic.update":   updateUserPublic,
		"userState.update":    updateUserState,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: bad arguments: %v", domain.ErrInvalid, err)
	}
	return nil
}

type insertTodoArgs struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	// CreatedAt is unix milliseconds; the server clock is used when zero.
	CreatedAt int64  `json:"createdAt"`
	UserID    string `json:"userId"`
}

func insertTodo(ctx context.Context, tx *Tx, raw json.RawMessage) error {
	var args insertTodoArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	if args.ID == "" || len(args.ID) > maxTodoIDLen {
		return fmt.Errorf("%w: todo id must be 1-%d characters", domain.ErrInvalid, maxTodoIDLen)
	}
	if args.UserID != "" && args.UserID != tx.UserID {
		return fmt.Errorf("%w: cannot create todos for another user", domain.ErrForbidden)
	}
	text, err := domain.NormalizeTodoText(args.Text)
	if err != nil {
		return err
	}
	createdAt := time.Now().UTC()
	if args.CreatedAt > 0 {
		createdAt = time.UnixMilli(args.CreatedAt).UTC()
	}
	return tx.Todos.Create(ctx, &domain.Todo{
		ID:        args.ID,
		UserID:    tx.UserID,
		Text:      text,
		Completed: args.Completed,
		CreatedAt: createdAt,
		Version:   tx.Version,
	})
}

type updateTodoArgs struct {
	ID        string  `json:"id"`
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}

// ownTodo loads a live todo and checks it belongs to the caller.
func ownTodo(ctx context.Context, tx *Tx, id string) (*domain.Todo, error) {
	todo, err := tx.Todos.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if todo.Deleted {
		return nil, domain.ErrNotFound
	}
	if !domain.CanMutateTodo(tx.UserID, todo) {
		return nil, fmt.Errorf("%w: todo %s belongs to another user", domain.ErrForbidden, id)
	}
	return todo, nil
}

func updateTodo(ctx context.Context, tx *Tx, raw json.RawMessage) error {
	var args updateTodoArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	todo, err := ownTodo(ctx, tx, args.ID)
	if err != nil {
		return err
	}
	if args.Text != nil {
		text, err := domain.NormalizeTodoText(*args.Text)
		if err != nil {
			return err
		}
		todo.Text = text
	}
	if args.Completed != nil {
		todo.Completed = *args.Completed
	}
	todo.Version = tx.Version
	return tx.Todos.Update(ctx, todo)
}

type idArgs struct {
	ID string `json:"id"`
}

func deleteTodo(ctx context.Context, tx *Tx, raw json.RawMessage) error {
	var args idArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	if _, err := ownTodo(ctx, tx, args.ID); err != nil {
		return err
	}
	return tx.Todos.SoftDelete(ctx, args.ID, tx.Version)
}

func clearCompleted(ctx context.Context, tx *Tx, raw json.RawMessage) error {
	var args struct{}
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	_, err := tx.Todos.ClearCompleted(ctx, tx.UserID, tx.Version)
	return err
}

type updateUserPublicArgs struct {
	ID       string  `json:"id"`
	Name     *string `json:"name"`
	Username *string `json:"username"`
	Image    *string `json:"image"`
}

func updateUserPublic(ctx context.Context, tx *Tx, raw json.RawMessage) error {
	var args updateUserPublicArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	id := args.ID
	if id == "" {
		id = tx.UserID
	}
	user, err := tx.Users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !domain.CanMutateUserPublic(tx.UserID, user) {
		return fmt.Errorf("%w: cannot edit another user's profile", domain.ErrForbidden)
	}
	if args.Name != nil {
		if user.Name, err = domain.NormalizeName(*args.Name); err != nil {
			return err
		}
	}
	if args.Username != nil {
		if user.Username, err = domain.NormalizeUsername(*args.Username); err != nil {
			return err
		}
	}
	if args.Image != nil {
		user.Image = *args.Image
	}
	user.Version = tx.Version
	return tx.Users.Update(ctx, user)
}

type updateUserStateArgs struct {
	UserID   string `json:"userId"`
	DarkMode *bool  `json:"darkMode"`
}

func updateUserState(ctx context.Context, tx *Tx, raw json.RawMessage) error {
	var args updateUserStateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	state := &domain.UserState{UserID: tx.UserID}
	if args.UserID != "" {
		state.UserID = args.UserID
	}
	if !domain.CanMutateUserState(tx.UserID, state) {
		return fmt.Errorf("%w: cannot edit another user's state", domain.ErrForbidden)
	}
	if current, err := tx.States.Get(ctx, state.UserID); err == nil {
		state.DarkMode = current.DarkMode
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if args.DarkMode != nil {
		state.DarkMode = *args.DarkMode
	}
	state.Version = tx.Version
	return tx.States.Upsert(ctx, state)
}
