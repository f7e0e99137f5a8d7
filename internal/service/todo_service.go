package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Tomlord1122/takeout/internal/domain"
	"github.com/Tomlord1122/takeout/internal/repository"
)

// Applier runs a named sync mutator for a user. REST writes go through it
// so they are versioned exactly like pushed mutations.
type Applier interface {
	Apply(ctx context.Context, uid, name string, args any) error
}

// Input/Output Structs (Data Transfer Objects - DTOs)

// CreateTodoRequest holds the data needed to create a new todo.
// ID is optional; clients that create todos offline send their own.
type CreateTodoRequest struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// UpdateTodoRequest uses pointers to tell an omitted field from a zero value.
type UpdateTodoRequest struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}

// TodoResponse is the standard representation of a Todo returned by the service.
type TodoResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"createdAt"`
}

// TodoService defines the operations for managing todos. Every call is
// scoped to the calling user.
type TodoService interface {
	CreateTodo(ctx context.Context, uid string, req CreateTodoRequest) (*TodoResponse, error)
	GetTodoByID(ctx context.Context, uid, id string) (*TodoResponse, error)
	GetAllTodos(ctx context.Context, uid string) ([]TodoResponse, error)
	UpdateTodo(ctx context.Context, uid, id string, req UpdateTodoRequest) (*TodoResponse, error)
	DeleteTodo(ctx context.Context, uid, id string) error
	ClearCompleted(ctx context.Context, uid string) error
}

type todoService struct {
	repo    repository.TodoRepository
	applier Applier
}

func NewTodoService(repo repository.TodoRepository, applier Applier) TodoService {
	return &todoService{repo: repo, applier: applier}
}

func toTodoResponse(t *domain.Todo) *TodoResponse {
	return &TodoResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Text:      t.Text,
		Completed: t.Completed,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

func (s *todoService) CreateTodo(ctx context.Context, uid string, req CreateTodoRequest) (*TodoResponse, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := s.applier.Apply(ctx, uid, "todo.insert", map[string]any{
		"id":        id,
		"text":      req.Text,
		"completed": req.Completed,
	})
	if err != nil {
		return nil, err
	}
	return s.GetTodoByID(ctx, uid, id)
}

// GetTodoByID hides other users' todos behind ErrNotFound.
func (s *todoService) GetTodoByID(ctx context.Context, uid, id string) (*TodoResponse, error) {
	todo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if todo.Deleted || !domain.CanReadTodo(uid, todo) {
		return nil, domain.ErrNotFound
	}
	return toTodoResponse(todo), nil
}

func (s *todoService) GetAllTodos(ctx context.Context, uid string) ([]TodoResponse, error) {
	if uid == "" {
		return nil, domain.ErrUnauthenticated
	}
	todos, err := s.repo.ListByUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	responses := make([]TodoResponse, 0, len(todos))
	for i := range todos {
		responses = append(responses, *toTodoResponse(&todos[i]))
	}
	return responses, nil
}

func (s *todoService) UpdateTodo(ctx context.Context, uid, id string, req UpdateTodoRequest) (*TodoResponse, error) {
	args := map[string]any{"id": id}
	if req.Text != nil {
		args["text"] = *req.Text
	}
	if req.Completed != nil {
		args["completed"] = *req.Completed
	}
	if err := s.applier.Apply(ctx, uid, "todo.update", args); err != nil {
		return nil, err
	}
	return s.GetTodoByID(ctx, uid, id)
}

func (s *todoService) DeleteTodo(ctx context.Context, uid, id string) error {
	return s.applier.Apply(ctx, uid, "todo.delete", map[string]any{"id": id})
}

func (s *todoService) ClearCompleted(ctx context.Context, uid string) error {
	return s.applier.Apply(ctx, uid, "todo.clearCompleted", struct{}{})
}
