package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tomlord1122/takeout/internal/domain"
)

// VersionRepository hands out the global sync version kept in sync_meta.
type VersionRepository interface {
	WithTx(tx *gorm.DB) VersionRepository
	// Next increments the version and returns it. The row stays locked until
	// the surrounding transaction ends, which serializes writers.
	Next(ctx context.Context) (int64, error)
	Current(ctx context.Context) (int64, error)
}

type gormVersionRepository struct {
	db *gorm.DB
}

func NewGormVersionRepository(db *gorm.DB) VersionRepository {
	return &gormVersionRepository{db: db}
}

func (r *gormVersionRepository) WithTx(tx *gorm.DB) VersionRepository {
	return &gormVersionRepository{db: tx}
}

func (r *gormVersionRepository) Next(ctx context.Context) (int64, error) {
	var v int64
	err := r.db.WithContext(ctx).
		Raw(`UPDATE sync_meta SET version = version + 1 WHERE id = 1 RETURNING version`).
		Scan(&v).Error
	return v, err
}

func (r *gormVersionRepository) Current(ctx context.Context) (int64, error) {
	var v int64
	err := r.db.WithContext(ctx).Raw(`SELECT version FROM sync_meta WHERE id = 1`).Scan(&v).Error
	return v, err
}

// ClientRepository tracks per-client mutation progress.
type ClientRepository interface {
	WithTx(tx *gorm.DB) ClientRepository
	Get(ctx context.Context, id string) (*domain.SyncClient, error)
	Upsert(ctx context.Context, c *domain.SyncClient) error
	ListChangedSince(ctx context.Context, groupID string, version int64) ([]domain.SyncClient, error)
	// GroupOwner returns the user owning a client group, or "" for a new group.
	GroupOwner(ctx context.Context, groupID string) (string, error)
}

type gormClientRepository struct {
	db *gorm.DB
}

func NewGormClientRepository(db *gorm.DB) ClientRepository {
	return &gormClientRepository{db: db}
}

func (r *gormClientRepository) WithTx(tx *gorm.DB) ClientRepository {
	return &gormClientRepository{db: tx}
}

func (r *gormClientRepository) Get(ctx context.Context, id string) (*domain.SyncClient, error) {
	var c domain.SyncClient
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormClientRepository) Upsert(ctx context.Context, c *domain.SyncClient) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_mutation_id", "version"}),
	}).Create(c).Error
}

func (r *gormClientRepository) ListChangedSince(ctx context.Context, groupID string, version int64) ([]domain.SyncClient, error) {
	var clients []domain.SyncClient
	err := r.db.WithContext(ctx).
		Where("client_group_id = ? AND version > ?", groupID, version).
		Find(&clients).Error
	return clients, err
}

func (r *gormClientRepository) GroupOwner(ctx context.Context, groupID string) (string, error) {
	var owners []string
	err := r.db.WithContext(ctx).Model(&domain.SyncClient{}).
		Where("client_group_id = ?", groupID).
		Limit(1).
		Pluck("user_id", &owners).Error
	if err != nil || len(owners) == 0 {
		return "", err
	}
	return owners[0], nil
}
