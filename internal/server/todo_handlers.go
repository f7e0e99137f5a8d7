package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Tomlord1122/takeout/internal/auth"
	"github.com/Tomlord1122/takeout/internal/service"
)

func (s *Server) createTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	todoResp, err := s.todoService.CreateTodo(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create todo")
		return
	}

	respondWithJSON(w, http.StatusCreated, todoResp)
}

func (s *Server) getAllTodosHandler(w http.ResponseWriter, r *http.Request) {
	todos, err := s.todoService.GetAllTodos(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to retrieve todos")
		return
	}

	respondWithJSON(w, http.StatusOK, todos)
}

func (s *Server) getTodoByIDHandler(w http.ResponseWriter, r *http.Request) {
	todo, err := s.todoService.GetTodoByID(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to retrieve todo")
		return
	}

	respondWithJSON(w, http.StatusOK, todo)
}

func (s *Server) updateTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updatedTodo, err := s.todoService.UpdateTodo(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update todo")
		return
	}

	respondWithJSON(w, http.StatusOK, updatedTodo)
}

func (s *Server) deleteTodoHandler(w http.ResponseWriter, r *http.Request) {
	err := s.todoService.DeleteTodo(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to delete todo")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearCompletedHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.todoService.ClearCompleted(r.Context(), auth.UserID(r.Context())); err != nil {
		respondWithServiceError(w, r, err, "Failed to clear completed todos")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
