package model

import "time"

// タイトル・説明の最大長。
const (
	TodoTitleMaxLen       = 100
	TodoDescriptionMaxLen = 500
)

// Todo はタスクを表す。
// UserIDは作成者のIdentity IDであり、作成後は不変。
type Todo struct {
	ID          string
	Title       string
	Description string
	Completed   bool
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TodoFields はtodoの部分更新フィールドを表す。
// nilのフィールドは変更されない。UserIDは更新対象に含めない。
type TodoFields struct {
	Title       *string
	Description *string
	Completed   *bool
}
