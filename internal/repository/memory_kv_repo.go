package repository

import (
	"context"
	"sort"
	"sync"
)

// MemoryKVRepo はプロセス内のmapを使用したKVリポジトリ。
// テストおよびSTORE_DRIVER=memoryで使用する。プロセス終了で内容は失われる。
type MemoryKVRepo struct {
	mu      sync.RWMutex
	entries map[string]map[string][]byte
}

// NewMemoryKVRepo はMemoryKVRepoを生成する。
func NewMemoryKVRepo() *MemoryKVRepo {
	return &MemoryKVRepo{entries: make(map[string]map[string][]byte)}
}

// Get は指定キーの値を取得する。見つからない場合はnilを返す。
func (r *MemoryKVRepo) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.entries[namespace][key]
	if !ok {
		return nil, nil
	}
	// 呼び出し側による変更から内部状態を守るためコピーを返す
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set は指定キーに値を書き込む。
func (r *MemoryKVRepo) Set(ctx context.Context, namespace, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.entries[namespace]
	if !ok {
		ns = make(map[string][]byte)
		r.entries[namespace] = ns
	}
	v := make([]byte, len(value))
	copy(v, value)
	ns[key] = v
	return nil
}

// Delete は指定キーを削除する。
func (r *MemoryKVRepo) Delete(ctx context.Context, namespace, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries[namespace], key)
	return nil
}

// ListKeys はnamespaceに存在するキーの一覧を昇順で返す。
func (r *MemoryKVRepo) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries[namespace]))
	for k := range r.entries[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// compile-time interface check
var _ KVRepository = (*MemoryKVRepo)(nil)
