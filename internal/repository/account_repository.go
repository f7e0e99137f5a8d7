package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Tomlord1122/takeout/internal/domain"
)

// AccountRepository stores credentials.
type AccountRepository interface {
	WithTx(tx *gorm.DB) AccountRepository
	Create(ctx context.Context, a *domain.Account) error
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
}

type gormAccountRepository struct {
	db *gorm.DB
}

func NewGormAccountRepository(db *gorm.DB) AccountRepository {
	return &gormAccountRepository{db: db}
}

func (r *gormAccountRepository) WithTx(tx *gorm.DB) AccountRepository {
	return &gormAccountRepository{db: tx}
}

func (r *gormAccountRepository) Create(ctx context.Context, a *domain.Account) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *gormAccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *gormAccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *gormAccountRepository) findOne(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var a domain.Account
	err := r.db.WithContext(ctx).Where(query, arg).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
