package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tomlord1122/takeout/internal/domain"
)

// UserRepository stores the public profile rows.
type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository
	Create(ctx context.Context, u *domain.UserPublic) error
	FindByID(ctx context.Context, id string) (*domain.UserPublic, error)
	FindByUsername(ctx context.Context, username string) (*domain.UserPublic, error)
	Update(ctx context.Context, u *domain.UserPublic) error
	ListChangedSince(ctx context.Context, version int64) ([]domain.UserPublic, error)
}

type gormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) WithTx(tx *gorm.DB) UserRepository {
	return &gormUserRepository{db: tx}
}

func (r *gormUserRepository) Create(ctx context.Context, u *domain.UserPublic) error {
	err := r.db.WithContext(ctx).Create(u).Error
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *gormUserRepository) FindByID(ctx context.Context, id string) (*domain.UserPublic, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *gormUserRepository) FindByUsername(ctx context.Context, username string) (*domain.UserPublic, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *gormUserRepository) findOne(ctx context.Context, query string, arg any) (*domain.UserPublic, error) {
	var u domain.UserPublic
	err := r.db.WithContext(ctx).Where(query, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormUserRepository) Update(ctx context.Context, u *domain.UserPublic) error {
	res := r.db.WithContext(ctx).Model(&domain.UserPublic{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"name":     u.Name,
			"username": u.Username,
			"image":    u.Image,
			"version":  u.Version,
		})
	if isUniqueViolation(res.Error) {
		return domain.ErrConflict
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *gormUserRepository) ListChangedSince(ctx context.Context, version int64) ([]domain.UserPublic, error) {
	var users []domain.UserPublic
	err := r.db.WithContext(ctx).Where("version > ?", version).Order("version").Find(&users).Error
	return users, err
}

// UserStateRepository stores per-user preferences.
type UserStateRepository interface {
	WithTx(tx *gorm.DB) UserStateRepository
	Get(ctx context.Context, userID string) (*domain.UserState, error)
	Upsert(ctx context.Context, s *domain.UserState) error
	// ChangedSince returns nil when the row is unchanged since version.
	ChangedSince(ctx context.Context, userID string, version int64) (*domain.UserState, error)
}

type gormUserStateRepository struct {
	db *gorm.DB
}

func NewGormUserStateRepository(db *gorm.DB) UserStateRepository {
	return &gormUserStateRepository{db: db}
}

func (r *gormUserStateRepository) WithTx(tx *gorm.DB) UserStateRepository {
	return &gormUserStateRepository{db: tx}
}

func (r *gormUserStateRepository) Get(ctx context.Context, userID string) (*domain.UserState, error) {
	var s domain.UserState
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormUserStateRepository) Upsert(ctx context.Context, s *domain.UserState) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"dark_mode", "version"}),
	}).Create(s).Error
}

func (r *gormUserStateRepository) ChangedSince(ctx context.Context, userID string, version int64) (*domain.UserState, error) {
	var states []domain.UserState
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND version > ?", userID, version).
		Limit(1).
		Find(&states).Error
	if err != nil || len(states) == 0 {
		return nil, err
	}
	return &states[0], nil
}
