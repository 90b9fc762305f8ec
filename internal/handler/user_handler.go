package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/model"
)

// DirectoryServiceInterface はユーザー一覧ハンドラーが必要とするサービスインターフェース。
type DirectoryServiceInterface interface {
	List(ctx context.Context, actor *model.Profile) ([]model.Profile, *model.APIError)
	ChangeRole(ctx context.Context, actor *model.Profile, targetID string, newRole model.Role) (*model.Profile, *model.APIError)
	DeleteProfile(ctx context.Context, actor *model.Profile, targetID string) *model.APIError
}

// UserHandler はユーザー管理のHTTPハンドラー。
// 可視範囲と操作権限の判定はサービス層に委譲する。
type UserHandler struct {
	contexts SessionContextProvider
	service  DirectoryServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(contexts SessionContextProvider, service DirectoryServiceInterface) *UserHandler {
	return &UserHandler{
		contexts: contexts,
		service:  service,
	}
}

// roleChangeRequest はロール変更リクエストのボディ。
type roleChangeRequest struct {
	Role string `json:"role"`
}

// ListUsers はロールに応じた可視範囲のユーザー一覧を返す。
// GET /api/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}
	actor, apiErr := sessionProfile(w, sessCtx)
	if apiErr != nil {
		return
	}

	profiles, apiErr := h.service.List(r.Context(), actor)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	results := make([]profileResponse, len(profiles))
	for i := range profiles {
		results[i] = toProfileResponse(&profiles[i])
	}

	writeDataResponse(w, http.StatusOK, results)
}

// ChangeUserRole は対象ユーザーのロールを変更する。
// PUT /api/users/{id}/role
func (h *UserHandler) ChangeUserRole(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}
	actor, apiErr := sessionProfile(w, sessCtx)
	if apiErr != nil {
		return
	}

	targetID := chi.URLParam(r, "id")

	var req roleChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	updated, apiErr := h.service.ChangeRole(r.Context(), actor, targetID, model.Role(req.Role))
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	writeDataResponse(w, http.StatusOK, toProfileResponse(updated))
}

// DeleteUser は対象ユーザーのプロフィールを削除する。
// DELETE /api/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}
	actor, apiErr := sessionProfile(w, sessCtx)
	if apiErr != nil {
		return
	}

	targetID := chi.URLParam(r, "id")

	if apiErr := h.service.DeleteProfile(r.Context(), actor, targetID); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	writeDataResponse(w, http.StatusOK, nil)
}
