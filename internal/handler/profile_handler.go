package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/hitoshi/todoman/internal/blob"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/store"
)

// avatarFormField はアバターアップロードのmultipartフィールド名。
const avatarFormField = "avatar"

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Update(ctx context.Context, actor *model.Profile, fields store.ProfileFields) (*model.Profile, *model.APIError)
	UploadAvatar(ctx context.Context, actor *model.Profile, contentType string, data []byte) (*model.Profile, *model.APIError)
	SetAvatarURL(ctx context.Context, actor *model.Profile, rawURL string) (*model.Profile, *model.APIError)
	RemoveAvatar(ctx context.Context, actor *model.Profile) (*model.Profile, *model.APIError)
}

// ProfileHandler は自分のプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	contexts SessionContextProvider
	service  ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(contexts SessionContextProvider, service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{
		contexts: contexts,
		service:  service,
	}
}

// profileUpdateRequest はプロフィール更新リクエストのボディ。
// nilのフィールドは変更しない部分更新を行う。
type profileUpdateRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Role      *string `json:"role,omitempty"`
	Bio       *string `json:"bio,omitempty"`
}

// avatarURLRequest は外部アバターURL設定リクエストのボディ。
type avatarURLRequest struct {
	URL string `json:"url"`
}

// GetProfile は自分のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}

	profile, apiErr := sessionProfile(w, sessCtx)
	if apiErr != nil {
		return
	}

	writeDataResponse(w, http.StatusOK, toProfileResponse(profile))
}

// UpdateProfile は自分のプロフィールを部分更新する。
// PUT /api/profile
//
// roleフィールドはadminのみ指定できる。判定はサービス層で行う。
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}
	actor, apiErr := sessionProfile(w, sessCtx)
	if apiErr != nil {
		return
	}

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	fields := store.ProfileFields{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
	}
	if req.Role != nil {
		role := model.Role(*req.Role)
		fields.Role = &role
	}

	updated, apiErr := h.service.Update(r.Context(), actor, fields)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	writeDataResponse(w, http.StatusOK, toProfileResponse(updated))
}

// UploadAvatar はアバター画像をアップロードする。
// POST /api/profile/avatar (multipart/form-data)
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}
	actor, apiErr := sessionProfile(w, sessCtx)
	if apiErr != nil {
		return
	}

	if err := r.ParseMultipartForm(blob.DefaultMaxSize); err != nil {
		writeAPIError(w, model.NewValidationError("アップロードの解析に失敗しました。"))
		return
	}

	file, header, err := r.FormFile(avatarFormField)
	if err != nil {
		writeAPIError(w, model.NewValidationError("avatarフィールドにファイルを指定してください。"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, blob.DefaultMaxSize+1))
	if err != nil {
		writeAPIError(w, model.NewRemoteError(err))
		return
	}

	contentType := header.Header.Get("Content-Type")
	updated, apiErr := h.service.UploadAvatar(r.Context(), actor, contentType, data)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	writeDataResponse(w, http.StatusOK, toProfileResponse(updated))
}

// SetAvatarURL は外部URLをアバターとして設定する。
// PUT /api/profile/avatar
func (h *ProfileHandler) SetAvatarURL(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}
	actor, apiErr := sessionProfile(w, sessCtx)
	if apiErr != nil {
		return
	}

	var req avatarURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	updated, apiErr := h.service.SetAvatarURL(r.Context(), actor, req.URL)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	writeDataResponse(w, http.StatusOK, toProfileResponse(updated))
}

// RemoveAvatar はアバターを削除する。
// DELETE /api/profile/avatar
func (h *ProfileHandler) RemoveAvatar(w http.ResponseWriter, r *http.Request) {
	sessCtx, apiErr := acquireSessionContext(w, r, h.contexts)
	if apiErr != nil {
		return
	}
	actor, apiErr := sessionProfile(w, sessCtx)
	if apiErr != nil {
		return
	}

	updated, apiErr := h.service.RemoveAvatar(r.Context(), actor)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	writeDataResponse(w, http.StatusOK, toProfileResponse(updated))
}
