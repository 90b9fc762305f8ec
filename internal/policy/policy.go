// Package policy は書き込み系操作のアクセスポリシーを定義する。
//
// 純粋な決定関数のみを提供し、I/Oを一切行わない。読み取り側の可視範囲は
// ポリシーではなくtodoリポジトリのフェッチクエリが決める。
package policy

import "github.com/hitoshi/todoman/internal/model"

// Action はポリシーが判定する操作種別を表す。
type Action string

const (
	// ActionCreate はtodoの新規作成。
	ActionCreate Action = "create"
	// ActionUpdate はtodoの更新（toggleを含む）。
	ActionUpdate Action = "update"
	// ActionDelete はtodoの削除。
	ActionDelete Action = "delete"
)

// Permit は操作の許可可否を判定する。
//
// create: 認証済みであれば許可（ロール不問）。
// update/delete（同一の判定を共有する）:
//   - admin: 常に許可
//   - manager: 自分が所有者、または所有者のロールがuserの場合に許可。
//     マネージャー権限は所有者のロールに対して定義されるため、
//     呼び出し側は判定時点の所有者ロールを解決して渡す必要がある。
//   - user: 自分が所有者の場合のみ許可
//   - 未知のロール: 拒否
func Permit(action Action, actorRole model.Role, actorID, ownerID string, ownerRole model.Role) bool {
	if actorID == "" {
		return false
	}

	if action == ActionCreate {
		return true
	}

	switch actorRole {
	case model.RoleAdmin:
		return true
	case model.RoleManager:
		return ownerID == actorID || ownerRole == model.RoleUser
	case model.RoleUser:
		return ownerID == actorID
	default:
		return false
	}
}
