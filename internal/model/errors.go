// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, authz, auth, not_found, system
	Action   string // ユーザー向け対処方法
	Cause    error  // 診断用の内部原因（リモート障害時のみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は内部原因を返す。リモート障害の診断用。
func (e *APIError) Unwrap() error {
	return e.Cause
}

// 定義済みエラーコード
const (
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeAuthorizationDenied    = "AUTHORIZATION_DENIED"
	ErrCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	ErrCodeTodoNotFound           = "TODO_NOT_FOUND"
	ErrCodeProfileUnavailable     = "PROFILE_UNAVAILABLE"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken             = "EMAIL_TAKEN"
	ErrCodeRemote                 = "REMOTE_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を修正して再度お試しください。",
	}
}

// NewAuthorizationDeniedError は権限拒否エラーを生成する。
// どのレコードが存在するかを漏らさないため、メッセージに対象の情報を含めない。
func NewAuthorizationDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthorizationDenied,
		Message:  "この操作を行う権限がありません。",
		Category: "authz",
		Action:   "必要な権限については管理者に確認してください。",
	}
}

// NewAuthenticationRequiredError は未認証エラーを生成する。
func NewAuthenticationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationRequired,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "サインインしてください。",
	}
}

// NewTodoNotFoundError はtodo未検出エラーを生成する。
// ローカルの可視セットに存在しない参照は古い可能性がある。
func NewTodoNotFoundError(todoID string) *APIError {
	return &APIError{
		Code:     ErrCodeTodoNotFound,
		Message:  fmt.Sprintf("指定されたtodoが見つかりません: %s", todoID),
		Category: "not_found",
		Action:   "一覧を更新してから再度お試しください。",
	}
}

// NewProfileUnavailableError はプロフィール解決失敗エラーを生成する。
func NewProfileUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileUnavailable,
		Message:  "プロフィールを取得できませんでした。",
		Category: "auth",
		Action:   "サインインし直してください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、サインインしてください。",
	}
}

// NewRemoteError はリモートストア障害エラーを生成する。
// 内部原因を診断用に保持するが、メッセージには含めない。
func NewRemoteError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeRemote,
		Message:  "サーバーとの通信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Cause:    cause,
	}
}
