package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	logpkg "github.com/PLUTO-NIX/slack-to-obsidian/internal/logger"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/models"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/store"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TodoRepository is the record store behind the todo API
type TodoRepository interface {
	Get(ctx context.Context, key string) (*models.Todo, error)
	Put(ctx context.Context, key string, todo *models.Todo) error
	ListPending(ctx context.Context) ([]store.Entry, error)
}

// TodoHandler serves the API the note client polls
type TodoHandler struct {
	todos  TodoRepository
	logger *zap.Logger
}

// NewTodoHandler creates a new todo handler
func NewTodoHandler(todos TodoRepository, logger *zap.Logger) *TodoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TodoHandler{todos: todos, logger: logger}
}

// RegisterRoutes registers todo routes on a router already prefixed with /api/todos
func (h *TodoHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTodos).Methods(http.MethodGet)
	r.HandleFunc("/{key}", h.UpdateTodo).Methods(http.MethodPatch)
}

// TodoItem is a record flattened together with its key
type TodoItem struct {
	Key string `json:"key"`
	*models.Todo
}

// ListTodosResponse is the body of GET /api/todos
type ListTodosResponse struct {
	Todos []TodoItem `json:"todos"`
}

// ListTodos returns every record the note client still has to file
func (h *TodoHandler) ListTodos(w http.ResponseWriter, r *http.Request) {
	entries, err := h.todos.ListPending(r.Context())
	if err != nil {
		h.logger.Error("list_todos_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list todos")
		return
	}

	items := make([]TodoItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, TodoItem{Key: e.Key, Todo: e.Todo})
	}
	writeJSON(w, http.StatusOK, ListTodosResponse{Todos: items})
}

// UpdateTodo merges the request body into the stored record. Fields absent
// from the body keep their stored values.
func (h *TodoHandler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if !strings.HasPrefix(key, store.KeyPrefix) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Todo not found")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "Request body exceeds the size limit")
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Failed to read request body")
		return
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(body, &patch); err != nil || patch == nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Request body must be a JSON object")
		return
	}

	existing, err := h.todos.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("get_todo_failed", zap.String("key", logpkg.SanitizeIdentifier(key)), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load todo")
		return
	}
	if existing == nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Todo not found")
		return
	}

	updated, err := mergeTodo(existing, patch)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	updated.TodoText = validation.SanitizeText(updated.TodoText)
	if err := validation.ValidateTodo(updated); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", err.Error())
		return
	}

	if err := h.todos.Put(r.Context(), key, updated); err != nil {
		h.logger.Error("update_todo_failed", zap.String("key", logpkg.SanitizeIdentifier(key)), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update todo")
		return
	}

	h.logger.Info("todo_updated",
		zap.String("key", logpkg.SanitizeIdentifier(key)),
		zap.String("status", string(updated.Status)),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// mergeTodo overlays patch onto existing field by field, by JSON name
func mergeTodo(existing *models.Todo, patch map[string]json.RawMessage) (*models.Todo, error) {
	raw, err := json.Marshal(existing)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for k, v := range patch {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var updated models.Todo
	if err := json.Unmarshal(merged, &updated); err != nil {
		return nil, errors.New("invalid field value in request body")
	}
	return &updated, nil
}
