// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password string) (*model.Session, *model.APIError)
	SignIn(ctx context.Context, email, password string) (*model.Session, *model.APIError)
	SignOut(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメールアドレス・パスワード認証のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	contexts SessionContextProvider
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, contexts SessionContextProvider, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		contexts: contexts,
		config:   config,
	}
}

// credentialsRequest はサインアップ・サインインのリクエストボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// profileResponse はプロフィールのレスポンス型。
type profileResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// toProfileResponse はドメインのProfileをレスポンス型に変換する。
func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:        p.ID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Role:      string(p.Role),
		AvatarURL: p.AvatarURL,
		Bio:       p.Bio,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// SignUp は新規アカウントを登録してセッションを開始する。
// POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, h.service.SignUp)
}

// SignIn は既存アカウントでセッションを開始する。
// POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, h.service.SignIn)
}

// authenticate はサインアップ・サインイン共通のフローを実行する。
// 認証成功後にセッションCookieを設定し、ライブ状態を生成して
// 解決済みプロフィールを返す。
func (h *AuthHandler) authenticate(
	w http.ResponseWriter,
	r *http.Request,
	authFn func(ctx context.Context, email, password string) (*model.Session, *model.APIError),
) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	sess, apiErr := authFn(r.Context(), req.Email, req.Password)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	h.setSessionCookie(w, sess.ID, h.config.SessionMaxAge)

	sessCtx, apiErr := h.contexts.Acquire(r.Context(), sess.ID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	profile, apiErr := sessionProfile(w, sessCtx)
	if apiErr != nil {
		return
	}

	writeDataResponse(w, http.StatusOK, toProfileResponse(profile))
}

// SignOut はセッションを終了し、ライブ状態を破棄する。
// POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		h.contexts.Release(cookie.Value)
		if signOutErr := h.service.SignOut(r.Context(), cookie.Value); signOutErr != nil {
			slog.Error("failed to sign out", slog.String("error", signOutErr.Error()))
			// サインアウトに失敗してもCookieはクリアする
		}
	}

	h.setSessionCookie(w, "", -1)
	writeDataResponse(w, http.StatusOK, nil)
}

// Me は現在のログインユーザーのプロフィールを返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
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

// setSessionCookie はセッションCookieを設定する。maxAgeが負の場合は削除する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
