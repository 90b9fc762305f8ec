package model

import "time"

// Identity は認証サブシステムが管理するアカウントを表す。
// サインアップ時に作成され、サインイン中のセッションから参照される。
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
