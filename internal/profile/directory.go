package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/store"
)

// Directory はユーザーディレクトリと管理操作を提供する。
// 一覧の可視範囲とロール変更・削除の可否はactorのロールで決まる。
type Directory struct {
	profiles store.ProfileStore
}

// NewDirectory はDirectoryを生成する。
func NewDirectory(profiles store.ProfileStore) *Directory {
	return &Directory{profiles: profiles}
}

// List はactorが閲覧可能なプロフィール一覧を返す。
// admin: 全プロフィール。manager: userロールのみ。user: 拒否。
func (d *Directory) List(ctx context.Context, actor *model.Profile) ([]model.Profile, *model.APIError) {
	if actor == nil {
		return nil, model.NewAuthenticationRequiredError()
	}

	switch actor.Role {
	case model.RoleAdmin:
		profiles, err := d.profiles.ListAll(ctx)
		if err != nil {
			return nil, model.NewRemoteError(fmt.Errorf("failed to list profiles: %w", err))
		}
		return profiles, nil
	case model.RoleManager:
		profiles, err := d.profiles.ListByRole(ctx, model.RoleUser)
		if err != nil {
			return nil, model.NewRemoteError(fmt.Errorf("failed to list profiles: %w", err))
		}
		return profiles, nil
	default:
		return nil, model.NewAuthorizationDeniedError()
	}
}

// ChangeRole は対象プロフィールのロールを変更する。
// admin: 任意の対象。manager: 現在userロールの対象のみ。user: 拒否。
// 権限拒否の応答から対象の存在有無が判別できないよう、
// 非adminの場合は対象取得前にロールで拒否する。
func (d *Directory) ChangeRole(ctx context.Context, actor *model.Profile, targetID string, newRole model.Role) (*model.Profile, *model.APIError) {
	if actor == nil {
		return nil, model.NewAuthenticationRequiredError()
	}
	if !newRole.IsValid() {
		return nil, model.NewValidationError("不正なロール値です")
	}

	if apiErr := d.permitAdminAction(ctx, actor, targetID); apiErr != nil {
		return nil, apiErr
	}

	updated, err := d.profiles.Update(ctx, targetID, store.ProfileFields{Role: &newRole})
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, model.NewProfileUnavailableError()
		}
		return nil, model.NewRemoteError(fmt.Errorf("failed to change role: %w", err))
	}

	slog.Info("role changed",
		slog.String("actor_id", actor.ID),
		slog.String("target_id", targetID),
		slog.String("new_role", string(newRole)),
	)
	return updated, nil
}

// DeleteProfile は対象プロフィールを削除する。可否判定はChangeRoleと同一。
// 自分自身のプロフィールは削除できない。
func (d *Directory) DeleteProfile(ctx context.Context, actor *model.Profile, targetID string) *model.APIError {
	if actor == nil {
		return model.NewAuthenticationRequiredError()
	}
	if targetID == actor.ID {
		return model.NewValidationError("自分自身のプロフィールは削除できません")
	}

	if apiErr := d.permitAdminAction(ctx, actor, targetID); apiErr != nil {
		return apiErr
	}

	if err := d.profiles.Delete(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return model.NewProfileUnavailableError()
		}
		return model.NewRemoteError(fmt.Errorf("failed to delete profile: %w", err))
	}

	slog.Info("profile deleted",
		slog.String("actor_id", actor.ID),
		slog.String("target_id", targetID),
	)
	return nil
}

// permitAdminAction はロール変更・削除の可否を判定する。
// adminは常に許可。managerは対象の現在ロールがuserの場合のみ許可。
// それ以外は拒否。managerの判定で対象が存在しない場合も
// 存在有無を漏らさないため同一の拒否応答を返す。
func (d *Directory) permitAdminAction(ctx context.Context, actor *model.Profile, targetID string) *model.APIError {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleManager:
		target, err := d.profiles.FindByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, store.ErrNoRows) {
				return model.NewAuthorizationDeniedError()
			}
			return model.NewRemoteError(fmt.Errorf("failed to find target profile: %w", err))
		}
		if target.Role != model.RoleUser {
			return model.NewAuthorizationDeniedError()
		}
		return nil
	default:
		return model.NewAuthorizationDeniedError()
	}
}
