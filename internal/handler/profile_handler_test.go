package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/session"
	"github.com/hitoshi/todoman/internal/store"
)

// mockProfileService は呼ばれないことを検証するためのサービスモック。
type mockProfileService struct {
	t *testing.T
}

func (m *mockProfileService) Update(ctx context.Context, actor *model.Profile, fields store.ProfileFields) (*model.Profile, *model.APIError) {
	m.t.Error("Update must not be called")
	return nil, model.NewRemoteError(nil)
}

func (m *mockProfileService) UploadAvatar(ctx context.Context, actor *model.Profile, contentType string, data []byte) (*model.Profile, *model.APIError) {
	m.t.Error("UploadAvatar must not be called")
	return nil, model.NewRemoteError(nil)
}

func (m *mockProfileService) SetAvatarURL(ctx context.Context, actor *model.Profile, rawURL string) (*model.Profile, *model.APIError) {
	m.t.Error("SetAvatarURL must not be called")
	return nil, model.NewRemoteError(nil)
}

func (m *mockProfileService) RemoveAvatar(ctx context.Context, actor *model.Profile) (*model.Profile, *model.APIError) {
	m.t.Error("RemoveAvatar must not be called")
	return nil, model.NewRemoteError(nil)
}

var _ ProfileServiceInterface = (*mockProfileService)(nil)

// profilelessProvider はプロフィール未保持のライブ状態を返すプロバイダを組み立てる。
func profilelessProvider(t *testing.T) *mockContextProvider {
	t.Helper()
	liveCtx := newProfilelessContext(t)
	return &mockContextProvider{
		acquireFn: func(ctx context.Context, sessionID string) (*session.Context, *model.APIError) {
			return liveCtx, nil
		},
	}
}

// セッションは生きているがプロフィールがリモートで削除された場合、
// GetProfileはpanicせずにエラーレスポンスを返すこと
func TestGetProfile_ProfileDeletedRemotely_ReturnsProfileUnavailable(t *testing.T) {
	h := NewProfileHandler(profilelessProvider(t), &mockProfileService{t: t})

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req = req.WithContext(middleware.ContextWithSessionID(req.Context(), "sess-1"))
	w := httptest.NewRecorder()
	h.GetProfile(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeProfileUnavailable {
		t.Errorf("error code = %q, want %q", body.Code, model.ErrCodeProfileUnavailable)
	}
}

// プロフィール未保持のセッションからの更新はサービス層に到達しないこと
func TestUpdateProfile_ProfileDeletedRemotely_ReturnsProfileUnavailable(t *testing.T) {
	h := NewProfileHandler(profilelessProvider(t), &mockProfileService{t: t})

	req := httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{"first_name":"太郎"}`))
	req = req.WithContext(middleware.ContextWithSessionID(req.Context(), "sess-1"))
	w := httptest.NewRecorder()
	h.UpdateProfile(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeProfileUnavailable {
		t.Errorf("error code = %q, want %q", body.Code, model.ErrCodeProfileUnavailable)
	}
}
