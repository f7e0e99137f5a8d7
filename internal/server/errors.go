package server

import (
	"errors"
	"net/http"

	"github.com/Tomlord1122/takeout/internal/domain"
	applog "github.com/Tomlord1122/takeout/internal/logger"
	"github.com/Tomlord1122/takeout/internal/syncer"
)

// respondWithServiceError maps domain and sync errors onto status codes.
// Anything unrecognised is logged and answered with fallback.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalid),
		errors.Is(err, syncer.ErrUnsupportedVersion),
		errors.Is(err, syncer.ErrMissingGroup):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		respondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, syncer.ErrOutOfOrder):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		applog.From(r.Context()).Error(fallback, applog.Err(err))
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}
