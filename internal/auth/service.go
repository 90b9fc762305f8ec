// Package auth はメールアドレスとパスワードによる認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/store"
)

// パスワードの最小長。
const passwordMinLen = 8

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	identities store.IdentityStore
	sessions   store.SessionStore
	config     ServiceConfig
}

// NewService はServiceを生成する。
func NewService(identities store.IdentityStore, sessions store.SessionStore, config ServiceConfig) *Service {
	return &Service{
		identities: identities,
		sessions:   sessions,
		config:     config,
	}
}

// SignUp は新規アカウントを作成し、セッションを発行する。
// メールアドレスが登録済みの場合はEMAIL_TAKENを返す。
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.Session, *model.APIError) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	if len(password) < passwordMinLen {
		return nil, model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください", passwordMinLen))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, model.NewRemoteError(fmt.Errorf("failed to hash password: %w", err))
	}

	identity := &model.Identity{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, model.NewEmailTakenError()
		}
		return nil, model.NewRemoteError(fmt.Errorf("failed to create identity: %w", err))
	}

	session, err := s.createSession(ctx, identity.ID)
	if err != nil {
		return nil, model.NewRemoteError(fmt.Errorf("failed to create session: %w", err))
	}

	slog.Info("new account created",
		slog.String("user_id", identity.ID),
		slog.String("email", email),
	)
	return session, nil
}

// SignIn は資格情報を検証し、セッションを発行する。
// アカウント未登録とパスワード不一致は同一のINVALID_CREDENTIALSとして返し、
// メールアドレスの登録有無を外部へ漏らさない。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, *model.APIError) {
	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, model.NewRemoteError(fmt.Errorf("failed to find identity: %w", err))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, identity.ID)
	if err != nil {
		return nil, model.NewRemoteError(fmt.Errorf("failed to create session: %w", err))
	}

	slog.Info("user signed in", slog.String("user_id", identity.ID))
	return session, nil
}

// SignOut はセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("session_id", sessionID))
	return nil
}

// ResolveSession はセッションIDから有効なセッションを取得する。
// 期限切れまたは未存在の場合はstore.ErrNoRowsを返す。
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, store.ErrNoRows
	}
	return s.sessions.FindByID(ctx, sessionID)
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
