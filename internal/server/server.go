package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Tomlord1122/takeout/internal/auth"
	"github.com/Tomlord1122/takeout/internal/cache"
	"github.com/Tomlord1122/takeout/internal/config"
	"github.com/Tomlord1122/takeout/internal/database"
	"github.com/Tomlord1122/takeout/internal/ratelimit"
	"github.com/Tomlord1122/takeout/internal/service"
	"github.com/Tomlord1122/takeout/internal/syncer"
)

// SyncEngine is the push/pull backend the /api/zero routes forward to.
type SyncEngine interface {
	Push(ctx context.Context, uid string, req syncer.PushRequest) (*syncer.PushResponse, error)
	Pull(ctx context.Context, uid string, req syncer.PullRequest) (*syncer.PullResponse, error)
}

// Deps are the collaborators the HTTP layer needs. Cache, SignInLimiter and
// Metrics are optional.
type Deps struct {
	DB            database.Service
	Cache         cache.Client
	Todos         service.TodoService
	Users         service.UserService
	Auth          service.AuthService
	Sync          SyncEngine
	Authenticator *auth.Authenticator
	SignInLimiter *ratelimit.Limiter
	Metrics       http.Handler
}

type Server struct {
	port         int
	allowOrigins []string
	secureCookie bool

	db            database.Service
	cache         cache.Client
	todoService   service.TodoService
	userService   service.UserService
	authService   service.AuthService
	sync          SyncEngine
	authn         *auth.Authenticator
	signInLimiter *ratelimit.Limiter
	metrics       http.Handler
}

func New(cfg *config.Config, deps Deps) *Server {
	return &Server{
		port:          cfg.Server.Port,
		allowOrigins:  cfg.Server.AllowedOrigins,
		secureCookie:  cfg.IsProd(),
		db:            deps.DB,
		cache:         deps.Cache,
		todoService:   deps.Todos,
		userService:   deps.Users,
		authService:   deps.Auth,
		sync:          deps.Sync,
		authn:         deps.Authenticator,
		signInLimiter: deps.SignInLimiter,
		metrics:       deps.Metrics,
	}
}

func NewServer(cfg *config.Config, deps Deps) *http.Server {
	appServer := New(cfg, deps)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", appServer.port),
		Handler:      appServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
