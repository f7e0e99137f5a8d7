package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Tomlord1122/takeout/internal/domain"
)

// TodoRepository defines the interface for todo data operations
type TodoRepository interface {
	WithTx(tx *gorm.DB) TodoRepository
	Create(ctx context.Context, todo *domain.Todo) error
	// FindByID returns live and soft-deleted rows alike.
	FindByID(ctx context.Context, id string) (*domain.Todo, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Todo, error)
	// ListChangedSince includes soft-deleted rows so they can be sent as deletes.
	ListChangedSince(ctx context.Context, userID string, version int64) ([]domain.Todo, error)
	Update(ctx context.Context, todo *domain.Todo) error
	SoftDelete(ctx context.Context, id string, version int64) error
	ClearCompleted(ctx context.Context, userID string, version int64) (int64, error)
}

type gormTodoRepository struct {
	db *gorm.DB
}

func NewGormTodoRepository(db *gorm.DB) TodoRepository {
	return &gormTodoRepository{db: db}
}

func (r *gormTodoRepository) WithTx(tx *gorm.DB) TodoRepository {
	return &gormTodoRepository{db: tx}
}

func (r *gormTodoRepository) Create(ctx context.Context, todo *domain.Todo) error {
	err := r.db.WithContext(ctx).Create(todo).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *gormTodoRepository) FindByID(ctx context.Context, id string) (*domain.Todo, error) {
	var todo domain.Todo
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&todo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &todo, nil
}

func (r *gormTodoRepository) ListByUser(ctx context.Context, userID string) ([]domain.Todo, error) {
	var todos []domain.Todo
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted = false", userID).
		Order("created_at DESC").
		Find(&todos).Error
	return todos, err
}

func (r *gormTodoRepository) ListChangedSince(ctx context.Context, userID string, version int64) ([]domain.Todo, error) {
	var todos []domain.Todo
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND version > ?", userID, version).
		Order("version").
		Find(&todos).Error
	return todos, err
}

func (r *gormTodoRepository) Update(ctx context.Context, todo *domain.Todo) error {
	res := r.db.WithContext(ctx).Model(&domain.Todo{}).
		Where("id = ?", todo.ID).
		Updates(map[string]any{
			"text":      todo.Text,
			"completed": todo.Completed,
			"version":   todo.Version,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *gormTodoRepository) SoftDelete(ctx context.Context, id string, version int64) error {
	res := r.db.WithContext(ctx).Model(&domain.Todo{}).
		Where("id = ? AND deleted = false", id).
		Updates(map[string]any{"deleted": true, "version": version})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *gormTodoRepository) ClearCompleted(ctx context.Context, userID string, version int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Todo{}).
		Where("user_id = ? AND completed = true AND deleted = false", userID).
		Updates(map[string]any{"deleted": true, "version": version})
	return res.RowsAffected, res.Error
}
