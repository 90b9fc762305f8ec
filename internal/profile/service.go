package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"path"
	"strings"

	"github.com/hitoshi/todoman/internal/blob"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/security"
	"github.com/hitoshi/todoman/internal/store"
)

// 表示名の最小長。
const nameMinLen = 2

// Service はプロフィールの自己更新とアバター管理を提供する。
type Service struct {
	profiles      store.ProfileStore
	sanitizer     security.TextSanitizerService
	urlGuard      security.AvatarURLGuardService
	blobs         blob.Store
	maxAvatarSize int64
}

// NewService はServiceを生成する。
func NewService(
	profiles store.ProfileStore,
	sanitizer security.TextSanitizerService,
	urlGuard security.AvatarURLGuardService,
	blobs blob.Store,
	maxAvatarSize int64,
) *Service {
	if maxAvatarSize <= 0 {
		maxAvatarSize = blob.DefaultMaxSize
	}
	return &Service{
		profiles:      profiles,
		sanitizer:     sanitizer,
		urlGuard:      urlGuard,
		blobs:         blobs,
		maxAvatarSize: maxAvatarSize,
	}
}

// Update はactor自身のプロフィールを部分更新する。
// ロールの変更はadminにのみ許可される（自己更新パスでは変更不可）。
// bioは保存前にHTMLを除去した平文へサニタイズされる。
func (s *Service) Update(ctx context.Context, actor *model.Profile, fields store.ProfileFields) (*model.Profile, *model.APIError) {
	if actor == nil {
		return nil, model.NewAuthenticationRequiredError()
	}

	if fields.Email != nil {
		if _, err := mail.ParseAddress(*fields.Email); err != nil {
			return nil, model.NewValidationError("メールアドレスの形式が正しくありません")
		}
	}
	if fields.FirstName != nil {
		trimmed := strings.TrimSpace(*fields.FirstName)
		if len([]rune(trimmed)) < nameMinLen {
			return nil, model.NewValidationError(fmt.Sprintf("名は%d文字以上で入力してください", nameMinLen))
		}
		fields.FirstName = &trimmed
	}
	if fields.LastName != nil {
		trimmed := strings.TrimSpace(*fields.LastName)
		if len([]rune(trimmed)) < nameMinLen {
			return nil, model.NewValidationError(fmt.Sprintf("姓は%d文字以上で入力してください", nameMinLen))
		}
		fields.LastName = &trimmed
	}
	if fields.Role != nil && actor.Role != model.RoleAdmin {
		return nil, model.NewAuthorizationDeniedError()
	}
	if fields.Role != nil && !fields.Role.IsValid() {
		return nil, model.NewValidationError("不正なロール値です")
	}
	if fields.Bio != nil {
		clean := s.sanitizer.Sanitize(*fields.Bio)
		fields.Bio = &clean
	}

	updated, err := s.profiles.Update(ctx, actor.ID, fields)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, model.NewProfileUnavailableError()
		}
		return nil, model.NewRemoteError(fmt.Errorf("failed to update profile: %w", err))
	}

	slog.Info("profile updated", slog.String("user_id", actor.ID))
	return updated, nil
}

// UploadAvatar は画像をblobストアへ保存し、avatar_urlを更新する。
// 受け入れるのはimage/*かつ上限サイズ以下のファイルのみ。
func (s *Service) UploadAvatar(ctx context.Context, actor *model.Profile, contentType string, data []byte) (*model.Profile, *model.APIError) {
	if actor == nil {
		return nil, model.NewAuthenticationRequiredError()
	}

	if err := blob.ValidateImage(contentType, int64(len(data)), s.maxAvatarSize); err != nil {
		return nil, model.NewValidationError("アバターは画像ファイル（5MB以下）を指定してください")
	}

	name := actor.ID + extForContentType(contentType)
	avatarURL, err := s.blobs.Put(ctx, name, contentType, data)
	if err != nil {
		return nil, model.NewRemoteError(fmt.Errorf("failed to store avatar: %w", err))
	}

	return s.setAvatarURL(ctx, actor.ID, avatarURL)
}

// SetAvatarURL は外部URLをアバターとして設定する。
// SSRF防止のため、URLは受け入れ前に静的検証される。
func (s *Service) SetAvatarURL(ctx context.Context, actor *model.Profile, rawURL string) (*model.Profile, *model.APIError) {
	if actor == nil {
		return nil, model.NewAuthenticationRequiredError()
	}

	if err := s.urlGuard.ValidateURL(rawURL); err != nil {
		return nil, model.NewValidationError("このURLはアバターとして使用できません")
	}

	return s.setAvatarURL(ctx, actor.ID, rawURL)
}

// RemoveAvatar はavatar_urlをクリアし、blobストア上のファイルを削除する。
func (s *Service) RemoveAvatar(ctx context.Context, actor *model.Profile) (*model.Profile, *model.APIError) {
	if actor == nil {
		return nil, model.NewAuthenticationRequiredError()
	}

	// 自前ストアのファイルのみ削除対象。外部URLはクリアのみ。
	if name := storedBlobName(actor.AvatarURL, actor.ID); name != "" {
		if err := s.blobs.Remove(ctx, name); err != nil {
			slog.Warn("failed to remove avatar blob",
				slog.String("user_id", actor.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return s.setAvatarURL(ctx, actor.ID, "")
}

// setAvatarURL はavatar_urlのみを更新する。
func (s *Service) setAvatarURL(ctx context.Context, profileID, avatarURL string) (*model.Profile, *model.APIError) {
	updated, err := s.profiles.Update(ctx, profileID, store.ProfileFields{AvatarURL: &avatarURL})
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, model.NewProfileUnavailableError()
		}
		return nil, model.NewRemoteError(fmt.Errorf("failed to update avatar URL: %w", err))
	}
	return updated, nil
}

// extForContentType はcontent typeに対応する拡張子を返す。
func extForContentType(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".img"
	}
}

// storedBlobName はavatar_urlが自前ストアの配信パスを指す場合に
// blob名を返す。外部URLの場合は空文字を返す。
func storedBlobName(avatarURL, profileID string) string {
	if avatarURL == "" {
		return ""
	}
	parsed, err := url.Parse(avatarURL)
	if err != nil {
		return ""
	}
	if !strings.Contains(parsed.Path, "/avatars/") {
		return ""
	}
	name := path.Base(parsed.Path)
	if !strings.HasPrefix(name, profileID) {
		return ""
	}
	return name
}
