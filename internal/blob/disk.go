package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore はローカルディスクにblobを保存するStore実装。
// 保存したファイルはbaseURL + "/avatars/" + name で配信される想定。
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore はDiskStoreを生成し、保存ディレクトリを作成する。
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &DiskStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Put は指定名でデータを保存し、公開URLを返す。
// 一時ファイルに書き込んでからリネームし、配信中の部分書き込みを防ぐ。
func (s *DiskStore) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close blob file: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to store blob: %w", err)
	}

	return s.baseURL + "/avatars/" + name, nil
}

// Remove は指定名のblobを削除する。存在しない場合も成功として扱う。
func (s *DiskStore) Remove(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}

// Dir は配信ハンドラ用に保存ディレクトリを返す。
func (s *DiskStore) Dir() string {
	return s.dir
}

// validateName はblob名がパス要素を含まない単一ファイル名であることを検証する。
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty blob name")
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("invalid blob name: %s", name)
	}
	return nil
}

// compile-time interface check
var _ Store = (*DiskStore)(nil)
