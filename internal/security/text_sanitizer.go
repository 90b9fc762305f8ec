// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はユーザーが入力する自由記述テキスト
// （プロフィールのbio等）からHTMLを除去し、XSS攻撃などの
// セキュリティリスクからユーザーを保護する。
// bluemondayライブラリのStrictPolicyにより全タグが除去される。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は自由記述テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize は入力からHTMLタグを全て除去し、前後の空白を詰めたテキストを返す。
	// todoのタイトル・説明やプロフィールのbioは装飾を持たない平文のため、
	// 許可タグは存在しない。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグを全て除去したテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
