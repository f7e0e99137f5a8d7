package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Tomlord1122/takeout/internal/auth"
	"github.com/Tomlord1122/takeout/internal/domain"
	"github.com/Tomlord1122/takeout/internal/logger"
	"github.com/Tomlord1122/takeout/internal/metrics"
	"github.com/Tomlord1122/takeout/internal/repository"
)

const (
	demoEmail    = "demo@takeout.local"
	demoUsername = "demo"
	demoName     = "Demo User"
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", domain.ErrUnauthenticated)
	ErrDemoDisabled       = fmt.Errorf("%w: demo sign-in is disabled", domain.ErrNotFound)
)

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse mirrors what the web client expects from get-session.
// Session is nil when the caller authenticated with a JWT.
type SessionResponse struct {
	User    *domain.UserPublic `json:"user"`
	Session *auth.Session      `json:"session"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type AuthService interface {
	SignUp(ctx context.Context, req SignUpRequest) (*SessionResponse, error)
	SignIn(ctx context.Context, req SignInRequest) (*SessionResponse, error)
	// SignInDemo signs in the shared demo user, creating it on first use.
	SignInDemo(ctx context.Context) (*SessionResponse, error)
	SignOut(ctx context.Context, sessionToken string) error
	// Session returns nil for anonymous callers.
	Session(ctx context.Context, p *auth.Principal) (*SessionResponse, error)
	Token(ctx context.Context, uid string) (*TokenResponse, error)
}

type authService struct {
	db          *gorm.DB
	accounts    repository.AccountRepository
	users       repository.UserRepository
	states      repository.UserStateRepository
	versions    repository.VersionRepository
	sessions    *auth.Sessions
	tokens      *auth.Tokens
	demoEnabled bool
}

func NewAuthService(db *gorm.DB, sessions *auth.Sessions, tokens *auth.Tokens, demoEnabled bool) AuthService {
	return &authService{
		db:          db,
		accounts:    repository.NewGormAccountRepository(db),
		users:       repository.NewGormUserRepository(db),
		states:      repository.NewGormUserStateRepository(db),
		versions:    repository.NewGormVersionRepository(db),
		sessions:    sessions,
		tokens:      tokens,
		demoEnabled: demoEnabled,
	}
}

func (s *authService) SignUp(ctx context.Context, req SignUpRequest) (*SessionResponse, error) {
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	if err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, email, hash, req.Name, req.Username)
	if err != nil {
		metrics.RecordAuth("sign_up_failed")
		return nil, err
	}
	metrics.RecordAuth("sign_up")
	logger.From(ctx).Info("user signed up", logger.UserID(user.ID))
	return s.startSession(ctx, user)
}

// createUser writes the account, profile and state rows in one transaction
// stamped with a fresh sync version.
func (s *authService) createUser(ctx context.Context, email, hash, name, username string) (*domain.UserPublic, error) {
	name, err := domain.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	username, err = domain.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.UserPublic{
		ID:       uuid.NewString(),
		Name:     name,
		Username: username,
		JoinedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version, err := s.versions.WithTx(tx).Next(ctx)
		if err != nil {
			return err
		}
		if err := s.accounts.WithTx(tx).Create(ctx, &domain.Account{
			ID: user.ID, Email: email, PasswordHash: hash, CreatedAt: now,
		}); err != nil {
			return err
		}
		user.Version = version
		if err := s.users.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}
		return s.states.WithTx(tx).Upsert(ctx, &domain.UserState{UserID: user.ID, Version: version})
	})
	if errors.Is(err, domain.ErrConflict) {
		return nil, fmt.Errorf("%w: email or username already taken", domain.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *authService) SignIn(ctx context.Context, req SignInRequest) (*SessionResponse, error) {
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	acct, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.RecordAuth("sign_in_failed")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(acct.PasswordHash, req.Password) {
		metrics.RecordAuth("sign_in_failed")
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByID(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	metrics.RecordAuth("sign_in")
	return s.startSession(ctx, user)
}

func (s *authService) SignInDemo(ctx context.Context) (*SessionResponse, error) {
	if !s.demoEnabled {
		return nil, ErrDemoDisabled
	}
	acct, err := s.accounts.FindByEmail(ctx, demoEmail)
	if errors.Is(err, domain.ErrNotFound) {
		user, err := s.createDemoUser(ctx)
		if err != nil {
			return nil, err
		}
		metrics.RecordAuth("sign_in_demo")
		return s.startSession(ctx, user)
	}
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	metrics.RecordAuth("sign_in_demo")
	return s.startSession(ctx, user)
}

// createDemoUser gives the demo account a random password nobody knows.
// A concurrent creation is resolved by reading the winner back.
func (s *authService) createDemoUser(ctx context.Context) (*domain.UserPublic, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(base64.RawURLEncoding.EncodeToString(buf))
	if err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, demoEmail, hash, demoName, demoUsername)
	if !errors.Is(err, domain.ErrConflict) {
		return user, err
	}
	acct, err := s.accounts.FindByEmail(ctx, demoEmail)
	if err != nil {
		return nil, err
	}
	return s.users.FindByID(ctx, acct.ID)
}

func (s *authService) startSession(ctx context.Context, user *domain.UserPublic) (*SessionResponse, error) {
	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &SessionResponse{User: user, Session: sess}, nil
}

func (s *authService) SignOut(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionToken); err != nil {
		return err
	}
	metrics.RecordAuth("sign_out")
	return nil
}

func (s *authService) Session(ctx context.Context, p *auth.Principal) (*SessionResponse, error) {
	if p == nil {
		return nil, nil
	}
	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	resp := &SessionResponse{User: user}
	if p.SessionToken != "" {
		sess, err := s.sessions.Get(ctx, p.SessionToken)
		if err != nil && !errors.Is(err, auth.ErrNoSession) {
			return nil, err
		}
		resp.Session = sess
	}
	return resp, nil
}

func (s *authService) Token(ctx context.Context, uid string) (*TokenResponse, error) {
	if uid == "" {
		return nil, domain.ErrUnauthenticated
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	tok, exp, err := s.tokens.Issue(user.ID, user.Name)
	if err != nil {
		return nil, err
	}
	metrics.RecordAuth("token_issued")
	return &TokenResponse{Token: tok, ExpiresAt: exp}, nil
}
