package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/model"
)

// TodoHandler はtodo管理のHTTPハンドラー。
// 実際の可視範囲計算と権限判定はセッションごとのリポジトリに委譲する。
type TodoHandler struct {
	contexts SessionContextProvider
}

// NewTodoHandler はTodoHandlerを生成する。
func NewTodoHandler(contexts SessionContextProvider) *TodoHandler {
	return &TodoHandler{contexts: contexts}
}

// --- リクエスト・レスポンス型 ---

// todoResponse はtodoのレスポンス型。
type todoResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// toTodoResponse はドメインのTodoをレスポンス型に変換する。
func toTodoResponse(t *model.Todo) todoResponse {
	return todoResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		UserID:      t.UserID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// todoCreateRequest はtodo作成リクエストのボディ。
type todoCreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// todoUpdateRequest はtodo更新リクエストのボディ。
// nilのフィールドは変更しない部分更新を行う。
type todoUpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// todoToggleRequest は完了状態切り替えリクエストのボディ。
type todoToggleRequest struct {
	Completed bool `json:"completed"`
}

// ListTodos はセッションの可視todo一覧を返す。
// GET /api/todos
//
// 取得は毎回リモートと同期する。取得に失敗した場合でも保持中の
// 一覧は失われないが、レスポンスとしてはエラーを返す。
func (h *TodoHandler) ListTodos(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}

	if fetchErr := sessCtx.Todos.Fetch(r.Context()); fetchErr != nil {
		writeAPIError(w, fetchErr)
		return
	}

	todos := sessCtx.Todos.VisibleTodos()
	results := make([]todoResponse, len(todos))
	for i := range todos {
		results[i] = toTodoResponse(&todos[i])
	}

	writeDataResponse(w, http.StatusOK, results)
}

// CreateTodo は新しいtodoを作成する。
// POST /api/todos
func (h *TodoHandler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}

	var req todoCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	created, apiErr := sessCtx.Todos.Create(r.Context(), req.Title, req.Description)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	writeDataResponse(w, http.StatusCreated, toTodoResponse(created))
}

// UpdateTodo はtodoを部分更新する。
// PUT /api/todos/{id}
func (h *TodoHandler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}

	id := chi.URLParam(r, "id")

	var req todoUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	if req.Title == nil && req.Description == nil && req.Completed == nil {
		writeAPIError(w, model.NewValidationError("更新するフィールドを指定してください。"))
		return
	}

	updated, apiErr := sessCtx.Todos.Update(r.Context(), id, model.TodoFields{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	})
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	writeDataResponse(w, http.StatusOK, toTodoResponse(updated))
}

// ToggleTodo はtodoの完了状態を切り替える。
// PATCH /api/todos/{id}/toggle
func (h *TodoHandler) ToggleTodo(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}

	id := chi.URLParam(r, "id")

	var req todoToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	toggled, apiErr := sessCtx.Todos.Toggle(r.Context(), id, req.Completed)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	writeDataResponse(w, http.StatusOK, toTodoResponse(toggled))
}

// DeleteTodo はtodoを削除する。
// DELETE /api/todos/{id}
func (h *TodoHandler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}

	id := chi.URLParam(r, "id")

	if apiErr := sessCtx.Todos.Delete(r.Context(), id); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	writeDataResponse(w, http.StatusOK, nil)
}
