// Package model はドメインモデルを定義する。
package model

import "time"

// Role はプロフィールの権限ロールを表す。
type Role string

const (
	// RoleUser は一般ユーザー。自分のtodoのみ操作できる。
	RoleUser Role = "user"
	// RoleManager はマネージャー。自分のtodoに加え、userロールの
	// メンバーが所有するtodoを操作できる。
	RoleManager Role = "manager"
	// RoleAdmin は管理者。全todoと全プロフィールを操作できる。
	RoleAdmin Role = "admin"
)

// IsValid はロール値が定義済みのいずれかであるかを返す。
// 未知のロール値はアクセスポリシーで常に拒否される。
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// Profile はユーザーのロールプロフィールを表す。
// IDは必ず対応するIdentityのIDと一致する（作成時に強制される）。
type Profile struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      Role
	AvatarURL string
	Bio       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsComplete は表示名の入力が完了しているかを返す。
func (p *Profile) IsComplete() bool {
	return p.FirstName != "" && p.LastName != "" && p.Email != ""
}
