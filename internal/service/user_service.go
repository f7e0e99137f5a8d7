package service

import (
	"context"
	"errors"

	"github.com/Tomlord1122/takeout/internal/domain"
	"github.com/Tomlord1122/takeout/internal/repository"
)

// UpdateProfileRequest carries the editable profile fields.
type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Username *string `json:"username"`
	Image    *string `json:"image"`
}

type UpdateStateRequest struct {
	DarkMode bool `json:"darkMode"`
}

type UserService interface {
	GetPublic(ctx context.Context, uid, id string) (*domain.UserPublic, error)
	UpdateProfile(ctx context.Context, uid string, req UpdateProfileRequest) (*domain.UserPublic, error)
	// GetState returns the defaults when the user has never saved any.
	GetState(ctx context.Context, uid string) (*domain.UserState, error)
	SetDarkMode(ctx context.Context, uid string, dark bool) (*domain.UserState, error)
}

type userService struct {
	users   repository.UserRepository
	states  repository.UserStateRepository
	applier Applier
}

func NewUserService(users repository.UserRepository, states repository.UserStateRepository, applier Applier) UserService {
	return &userService{users: users, states: states, applier: applier}
}

func (s *userService) GetPublic(ctx context.Context, uid, id string) (*domain.UserPublic, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanReadUserPublic(uid, u) {
		return nil, domain.ErrForbidden
	}
	return u, nil
}

func (s *userService) UpdateProfile(ctx context.Context, uid string, req UpdateProfileRequest) (*domain.UserPublic, error) {
	args := map[string]any{"id": uid}
	if req.Name != nil {
		args["name"] = *req.Name
	}
	if req.Username != nil {
		args["username"] = *req.Username
	}
	if req.Image != nil {
		args["image"] = *req.Image
	}
	if err := s.applier.Apply(ctx, uid, "userPublic.update", args); err != nil {
		return nil, err
	}
	return s.users.FindByID(ctx, uid)
}

func (s *userService) GetState(ctx context.Context, uid string) (*domain.UserState, error) {
	if uid == "" {
		return nil, domain.ErrUnauthenticated
	}
	st, err := s.states.Get(ctx, uid)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.UserState{UserID: uid}, nil
	}
	return st, err
}

func (s *userService) SetDarkMode(ctx context.Context, uid string, dark bool) (*domain.UserState, error) {
	if err := s.applier.Apply(ctx, uid, "userState.update", map[string]any{"darkMode": dark}); err != nil {
		return nil, err
	}
	return s.GetState(ctx, uid)
}
