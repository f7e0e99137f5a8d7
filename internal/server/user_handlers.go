package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Tomlord1122/takeout/internal/auth"
	"github.com/Tomlord1122/takeout/internal/service"
)

func (s *Server) getUserHandler(w http.ResponseWriter, r *http.Request) {
	u, err := s.userService.GetPublic(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to retrieve user")
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (s *Server) getMeHandler(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	u, err := s.userService.GetPublic(r.Context(), uid, uid)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to retrieve user")
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (s *Server) updateMeHandler(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.userService.UpdateProfile(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update profile")
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (s *Server) getStateHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.userService.GetState(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to retrieve user state")
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

func (s *Server) putStateHandler(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateStateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := s.userService.SetDarkMode(r.Context(), auth.UserID(r.Context()), req.DarkMode)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update user state")
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}
