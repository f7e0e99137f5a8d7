package server

import (
	"net/http"

	"github.com/Tomlord1122/takeout/internal/auth"
	applog "github.com/Tomlord1122/takeout/internal/logger"
	"github.com/Tomlord1122/takeout/internal/syncer"
)

func (s *Server) pullHandler(w http.ResponseWriter, r *http.Request) {
	var req syncer.PullRequest
	if !decodeSyncJSON(w, r, &req) {
		return
	}
	resp, err := s.sync.Pull(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to pull")
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// pushHandler answers 200 even when some mutations were rejected; those are
// listed in the response body.
func (s *Server) pushHandler(w http.ResponseWriter, r *http.Request) {
	var req syncer.PushRequest
	if !decodeSyncJSON(w, r, &req) {
		return
	}
	resp, err := s.sync.Push(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		applog.From(r.Context()).Warn("push aborted",
			applog.ClientGroupID(req.ClientGroupID), applog.Err(err))
		respondWithServiceError(w, r, err, "Failed to push")
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}
