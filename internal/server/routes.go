package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Tomlord1122/takeout/internal/auth"
	applog "github.com/Tomlord1122/takeout/internal/logger"
	"github.com/Tomlord1122/takeout/internal/metrics"
)

const (
	maxBodyBytes     = 1 << 20
	maxSyncBodyBytes = 4 << 20
)

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	origins := s.allowOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.HelloWorldHandler)

	r.Get("/health", s.healthHandler)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(s.authn.Identify)

			r.Post("/sign-up/email", s.signUpHandler)
			if s.signInLimiter != nil {
				r.With(s.signInLimiter.Middleware).Post("/sign-in/email", s.signInHandler)
			} else {
				r.Post("/sign-in/email", s.signInHandler)
			}
			r.Post("/sign-in/demo", s.signInDemoHandler)
			r.Post("/sign-out", s.signOutHandler)
			r.Get("/get-session", s.getSessionHandler)
			r.With(auth.RequireAuth).Get("/token", s.tokenHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authn.Authenticate)
			r.Use(auth.RequireAuth)

			r.Route("/todos", func(r chi.Router) {
				r.Post("/", s.createTodoHandler)
				r.Get("/", s.getAllTodosHandler)
				r.Post("/clear-completed", s.clearCompletedHandler)
				r.Get("/{id}", s.getTodoByIDHandler)
				r.Put("/{id}", s.updateTodoHandler)
				r.Delete("/{id}", s.deleteTodoHandler)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", s.getMeHandler)
				r.Patch("/me", s.updateMeHandler)
				r.Get("/me/state", s.getStateHandler)
				r.Put("/me/state", s.putStateHandler)
				r.Get("/{id}", s.getUserHandler)
			})

			r.Post("/zero/pull", s.pullHandler)
			r.Post("/zero/push", s.pushHandler)
		})
	})

	return r
}

// requestLogger scopes a logger to the request and logs its completion.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := applog.L().With(
			applog.RequestID(middleware.GetReqID(r.Context())),
			applog.Method(r.Method),
			applog.Path(r.URL.Path),
		)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(applog.ToContext(r.Context(), reqLog)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		reqLog.Info("request completed",
			applog.Status(status),
			applog.Bytes(ww.BytesWritten()),
			applog.ClientIP(r.RemoteAddr),
			applog.Duration(time.Since(start)),
		)
	})
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Hello World from Takeout!"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthStats := s.db.Health()
	if s.cache != nil {
		if err := s.cache.Ping(r.Context()); err != nil {
			healthStats["cache"] = "down"
			healthStats["status"] = "down"
			healthStats["error"] = fmt.Sprintf("cache down: %v", err)
		} else {
			healthStats["cache"] = "up"
		}
	}
	if status, ok := healthStats["status"]; ok && status == "down" {
		respondWithJSON(w, http.StatusServiceUnavailable, healthStats)
		return
	}
	respondWithJSON(w, http.StatusOK, healthStats)
}

// decodeJSON decodes a REST body strictly. It writes the 400 itself and
// reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, maxBodyBytes, true)
}

// decodeSyncJSON tolerates fields it does not know, since sync clients send
// extra bookkeeping such as profileID.
func decodeSyncJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, maxSyncBodyBytes, false)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, limit int64, strict bool) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if strict {
		decoder.DisallowUnknownFields()
	}
	err := decoder.Decode(dst)
	if err == nil {
		return true
	}

	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	if errors.As(err, &syntaxError) {
		msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
		respondWithError(w, http.StatusBadRequest, msg)
	} else if errors.Is(err, io.ErrUnexpectedEOF) {
		msg := "Request body contains badly-formed JSON"
		respondWithError(w, http.StatusBadRequest, msg)
	} else if errors.As(err, &unmarshalTypeError) {
		msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
		respondWithError(w, http.StatusBadRequest, msg)
	} else if strings.HasPrefix(err.Error(), "json: unknown field ") {
		fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
		msg := fmt.Sprintf("Request body contains unknown field %s", fieldName)
		respondWithError(w, http.StatusBadRequest, msg)
	} else if errors.Is(err, io.EOF) {
		msg := "Request body must not be empty"
		respondWithError(w, http.StatusBadRequest, msg)
	} else if errors.As(err, &maxBytesError) {
		msg := fmt.Sprintf("Request body must not be larger than %d bytes", maxBytesError.Limit)
		respondWithError(w, http.StatusRequestEntityTooLarge, msg)
	} else {
		applog.From(r.Context()).Error("decode request body", applog.Err(err))
		respondWithError(w, http.StatusInternalServerError, "Error processing request")
	}
	return false
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		applog.L().Error("marshal JSON response", applog.Err(err))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal server error preparing response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
