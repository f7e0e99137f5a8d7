package server

import (
	"net/http"
	"time"

	"github.com/Tomlord1122/takeout/internal/auth"
	applog "github.com/Tomlord1122/takeout/internal/logger"
	"github.com/Tomlord1122/takeout/internal/service"
)

func (s *Server) setSessionCookie(w http.ResponseWriter, sess *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.authn.CookieName(),
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.authn.CookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) signUpHandler(w http.ResponseWriter, r *http.Request) {
	var req service.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.authService.SignUp(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to sign up")
		return
	}
	s.setSessionCookie(w, resp.Session)
	respondWithJSON(w, http.StatusCreated, resp)
}

func (s *Server) signInHandler(w http.ResponseWriter, r *http.Request) {
	var req service.SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.authService.SignIn(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to sign in")
		return
	}
	s.setSessionCookie(w, resp.Session)
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) signInDemoHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := s.authService.SignInDemo(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to sign in")
		return
	}
	s.setSessionCookie(w, resp.Session)
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) signOutHandler(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.FromContext(r.Context()); ok && p.SessionToken != "" {
		if err := s.authService.SignOut(r.Context(), p.SessionToken); err != nil {
			applog.From(r.Context()).Warn("sign out", applog.Err(err))
		}
	}
	s.clearSessionCookie(w)
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// getSessionHandler answers null for anonymous callers rather than 401.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	resp, err := s.authService.Session(r.Context(), p)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load session")
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) tokenHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := s.authService.Token(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to issue token")
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}
