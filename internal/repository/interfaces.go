// Package repository はデータ永続化のインターフェースを定義する。
package repository

import "context"

// KVRepository はフラットなキー・バリューストアの永続化インターフェース。
// namespaceはブラウザ（デバイス）単位のローカルストレージに相当し、
// namespaceをまたいだ値の共有は行わない。
type KVRepository interface {
	// Get は指定キーの値を取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Set は指定キーに値を書き込む。既存の値は丸ごと置き換える。
	Set(ctx context.Context, namespace, key string, value []byte) error

	// Delete は指定キーを削除する。存在しない場合も成功する。
	Delete(ctx context.Context, namespace, key string) error

	// ListKeys はnamespaceに存在するキーの一覧を昇順で返す。
	ListKeys(ctx context.Context, namespace string) ([]string, error)
}
