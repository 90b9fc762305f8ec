// Package store はリモートストアへのアクセスインターフェースと
// PostgreSQL実装を定義する。
//
// エラーは最低限「該当行なし」(ErrNoRows)と「一意制約違反」(ErrConflict)を
// その他の障害と区別する。プロフィールリゾルバの欠損時作成ロジックが
// この区別に依存している。
package store

import (
	"context"
	"errors"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrNoRows は条件に一致する行が存在しないことを表す。
// トランスポート障害とは区別される。
var ErrNoRows = errors.New("store: no matching rows")

// ErrConflict は一意制約違反（同時初期化の競合など）を表す。
var ErrConflict = errors.New("store: conflict")

// コレクション名。変更フィードのペイロードと購読フィルタで使用する。
const (
	CollectionTodos    = "todos"
	CollectionProfiles = "profiles"
)

// ChangeEvent はコレクションに対する挿入・更新・削除の通知を表す。
// OwnerIDはtodosでは行のuser_id、profilesでは行のid。
// 所有者のロールはペイロードに含まれない。
type ChangeEvent struct {
	Collection string `json:"collection"`
	Action     string `json:"action"` // insert, update, delete
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
}

// ChangeFeed はコレクション単位の変更通知購読を提供する。
type ChangeFeed interface {
	// Subscribe は指定コレクションの変更イベントチャネルと購読解除関数を返す。
	// 解除関数は複数回呼んでも安全であること。
	Subscribe(collection string) (<-chan ChangeEvent, func(), error)
}

// TodoStore はtodoコレクションの永続化インターフェース。
type TodoStore interface {
	// ListByOwner は指定ユーザーが所有するtodoをcreated_at降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]model.Todo, error)

	// ListAll は全todoをcreated_at降順で返す。adminの可視範囲。
	ListAll(ctx context.Context) ([]model.Todo, error)

	// ListVisibleToManager はマネージャーの可視範囲をcreated_at降順で返す。
	// 自分が所有するtodoと、userロールのプロフィールが所有するtodoの和集合。
	// 実装戦略（JOINか2クエリ和集合か）はこのインターフェースの背後に隠蔽される。
	ListVisibleToManager(ctx context.Context, managerID string) ([]model.Todo, error)

	// Insert はtodoを作成し、ストアが確定した正準行を返す。
	Insert(ctx context.Context, todo *model.Todo) (*model.Todo, error)

	// Update は指定IDのtodoを部分更新し、正準行を返す。
	// 該当行がない場合はErrNoRowsを返す。
	Update(ctx context.Context, id string, fields model.TodoFields) (*model.Todo, error)

	// Delete は指定IDのtodoを削除する。該当行がない場合はErrNoRowsを返す。
	Delete(ctx context.Context, id string) error
}

// ProfileFields はプロフィールの部分更新フィールドを表す。
// nilのフィールドは変更されない。
type ProfileFields struct {
	Email     *string
	FirstName *string
	LastName  *string
	Role      *model.Role
	AvatarURL *string
	Bio       *string
}

// ProfileStore はプロフィールコレクションの永続化インターフェース。
type ProfileStore interface {
	// FindByID は指定IDのプロフィールを取得する。
	// 該当行がない場合はErrNoRowsを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Insert はプロフィールを作成し正準行を返す。
	// 同一IDの行が既に存在する場合はErrConflictを返す。
	Insert(ctx context.Context, profile *model.Profile) (*model.Profile, error)

	// Update は指定IDのプロフィールを部分更新し正準行を返す。
	// 該当行がない場合はErrNoRowsを返す。
	Update(ctx context.Context, id string, fields ProfileFields) (*model.Profile, error)

	// Delete は指定IDのプロフィールを削除する。該当行がない場合はErrNoRowsを返す。
	Delete(ctx context.Context, id string) error

	// ListAll は全プロフィールをemail昇順で返す。
	ListAll(ctx context.Context) ([]model.Profile, error)

	// ListByRole は指定ロールのプロフィールをemail昇順で返す。
	ListByRole(ctx context.Context, role model.Role) ([]model.Profile, error)
}

// IdentityStore は認証アカウントの永続化インターフェース。
type IdentityStore interface {
	// FindByEmail はメールアドレスでアカウントを検索する。
	// 該当行がない場合はErrNoRowsを返す。
	FindByEmail(ctx context.Context, email string) (*model.Identity, error)

	// FindByID は指定IDのアカウントを取得する。
	// 該当行がない場合はErrNoRowsを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// Create はアカウントを作成する。
	// メールアドレスが既に登録済みの場合はErrConflictを返す。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionStore はセッションの永続化インターフェース。
type SessionStore interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDの有効なセッションを取得する。
	// 期限切れまたは未存在の場合はErrNoRowsを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
