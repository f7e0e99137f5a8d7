package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Tomlord1122/takeout/internal/logger"
)

// Authenticator resolves the caller from, in order: a bearer JWT, a bearer
// session token, or the session cookie.
type Authenticator struct {
	tokens     *Tokens
	sessions   *Sessions
	cookieName string
}

func NewAuthenticator(tokens *Tokens, sessions *Sessions, cookieName string) *Authenticator {
	return &Authenticator{tokens: tokens, sessions: sessions, cookieName: cookieName}
}

func (a *Authenticator) CookieName() string { return a.cookieName }

// Resolve returns nil, nil for anonymous requests. A bearer value that is
// neither a valid JWT nor a live session is an error.
func (a *Authenticator) Resolve(r *http.Request) (*Principal, error) {
	if bearer := bearerToken(r); bearer != "" {
		if looksLikeJWT(bearer) {
			return a.tokens.Parse(bearer)
		}
		sess, err := a.sessions.Get(r.Context(), bearer)
		if err != nil {
			return nil, err
		}
		return &Principal{UserID: sess.UserID, Via: "bearer-session", SessionToken: sess.Token}, nil
	}

	c, err := r.Cookie(a.cookieName)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	sess, err := a.sessions.Get(r.Context(), c.Value)
	if errors.Is(err, ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: sess.UserID, Via: "cookie", SessionToken: sess.Token}, nil
}

// Authenticate attaches the principal when one can be resolved. Invalid
// credentials are answered with 401 so clients refresh their token.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return a.middleware(next, false)
}

// Identify is Authenticate for routes that must keep working with stale
// credentials, such as sign-in and sign-out: an expired token or session
// leaves the caller anonymous instead of failing the request.
func (a *Authenticator) Identify(next http.Handler) http.Handler {
	return a.middleware(next, true)
}

func (a *Authenticator) middleware(next http.Handler, lenient bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Resolve(r)
		if err != nil {
			stale := errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNoSession)
			if !stale {
				logger.From(r.Context()).Error("resolve principal", logger.Err(err))
			}
			if !stale || !lenient {
				unauthorized(w)
				return
			}
			p = nil
		}
		if p != nil {
			ctx := WithPrincipal(r.Context(), p)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(p.UserID)))
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth answers 401 when no principal is attached.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func looksLikeJWT(s string) bool {
	return strings.Count(s, ".") == 2
}
