// Package blob はアバター画像などのバイナリ保存機能を提供する。
//
// コアのデータアクセス層から見た契約は「blobを保存して公開URLを得る」
// 1操作のみであり、保存先の実体はこのパッケージの背後に隠蔽される。
package blob

import (
	"context"
	"fmt"
	"strings"
)

// アップロード制約。元アプリの検証ルールに合わせる。
const (
	// DefaultMaxSize はアップロード可能な最大サイズ（5MiB）。
	DefaultMaxSize = 5 * 1024 * 1024
)

// Store はblob保存のインターフェース。
type Store interface {
	// Put は指定名でデータを保存し、公開URLを返す。
	// 同名のblobが存在する場合は上書きする。
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)

	// Remove は指定名のblobを削除する。存在しない場合も成功として扱う。
	Remove(ctx context.Context, name string) error
}

// ValidateImage はアバターとして受け入れ可能な画像かを検証する。
// content typeがimage/*であり、サイズがmaxSize以下であることを要求する。
func ValidateImage(contentType string, size int64, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("content type %q is not an image", contentType)
	}
	if size > maxSize {
		return fmt.Errorf("file size %d exceeds limit %d", size, maxSize)
	}
	if size == 0 {
		return fmt.Errorf("empty file")
	}
	return nil
}
