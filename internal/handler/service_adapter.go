package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/session"
	"github.com/hitoshi/todoman/internal/store"
)

// SessionContextProvider はセッションIDからライブ状態を取得・破棄する
// インターフェース。サーバー再起動後の再接続でも、有効なセッションCookieが
// あればライブ状態を再構築できる。
type SessionContextProvider interface {
	// Acquire はセッションのライブ状態を返す。未生成の場合は
	// セッションと所有者メールアドレスを解決して生成する。
	Acquire(ctx context.Context, sessionID string) (*session.Context, *model.APIError)

	// Release はセッションのライブ状態を破棄する。複数回呼んでも安全。
	Release(sessionID string)
}

// sessionLookup はセッションIDから有効なセッションを解決するインターフェース。
// auth.Serviceが実装する。
type sessionLookup interface {
	ResolveSession(ctx context.Context, sessionID string) (*model.Session, error)
}

// RegistryAdapter は session.Registry を SessionContextProvider に適合させる。
// セッションの解決と所有者メールアドレスの取得を担い、Registryには
// 確定済みのセッションだけを渡す。
type RegistryAdapter struct {
	sessions   sessionLookup
	identities store.IdentityStore
	registry   *session.Registry
}

// NewRegistryAdapter はRegistryAdapterを生成する。
func NewRegistryAdapter(sessions sessionLookup, identities store.IdentityStore, registry *session.Registry) *RegistryAdapter {
	return &RegistryAdapter{
		sessions:   sessions,
		identities: identities,
		registry:   registry,
	}
}

// Acquire はセッションのライブ状態を返す。
func (a *RegistryAdapter) Acquire(ctx context.Context, sessionID string) (*session.Context, *model.APIError) {
	if existing := a.registry.Get(sessionID); existing != nil {
		return existing, nil
	}

	sess, err := a.sessions.ResolveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, model.NewAuthenticationRequiredError()
		}
		return nil, model.NewRemoteError(err)
	}

	identity, err := a.identities.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			// セッションはあるがアカウントが消えている。再ログインを促す。
			return nil, model.NewAuthenticationRequiredError()
		}
		return nil, model.NewRemoteError(err)
	}

	return a.registry.GetOrCreate(ctx, sess, identity.Email)
}

// Release はセッションのライブ状態を破棄する。
func (a *RegistryAdapter) Release(sessionID string) {
	a.registry.Destroy(sessionID)
}

var _ SessionContextProvider = (*RegistryAdapter)(nil)

// acquireSessionContext はリクエストのセッションIDからライブ状態を取得する。
// 失敗時はエラーレスポンスを書き込み、呼び出し元はそのままreturnすればよい。
func acquireSessionContext(w http.ResponseWriter, r *http.Request, contexts SessionContextProvider) (*session.Context, *model.APIError) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		apiErr := model.NewAuthenticationRequiredError()
		writeAPIError(w, apiErr)
		return nil, apiErr
	}

	sessCtx, apiErr := contexts.Acquire(r.Context(), sessionID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return nil, apiErr
	}
	return sessCtx, nil
}

// sessionProfile はライブ状態から解決済みプロフィールを取り出す。
// リモートでプロフィールが削除されるとリゾルバは保持をnilにするため、
// セッションが生きていてもプロフィールが存在しないことがある。
// その場合はPROFILE_UNAVAILABLEを書き込み、呼び出し元はそのままreturnすればよい。
func sessionProfile(w http.ResponseWriter, sessCtx *session.Context) (*model.Profile, *model.APIError) {
	profile := sessCtx.Profile()
	if profile == nil {
		apiErr := model.NewProfileUnavailableError()
		writeAPIError(w, apiErr)
		return nil, apiErr
	}
	return profile, nil
}
