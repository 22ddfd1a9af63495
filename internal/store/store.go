// Package store はアカウントとプロジェクトのローカルレコードストアを提供する。
//
// 状態はKVリポジトリ上の3つのエントリ（アカウント一覧、現在のアカウント、
// プロジェクト一覧）にJSONとして保存される。読み込みは毎回コレクション全体を
// 取得して解析し、書き込みは毎回コレクション全体を書き換える。
// 同一namespaceへの並行書き込みでは更新が失われることがある。
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/codepad/internal/repository"
)

// 永続化に使用するキー名
const (
	KeyAccounts       = "codepad_users"
	KeyCurrentAccount = "codepad_current_user"
	KeyProjects       = "codepad_files"
)

// ErrCorruptState は保存済みの状態を解析できない場合に返される。
// 元のJSONエラーもラップされる。
var ErrCorruptState = errors.New("corrupt stored state")

// OperationRecorder はストア操作の結果を記録するインターフェース。
type OperationRecorder interface {
	RecordStoreOperation(op string, ok bool)
}

// Option はProviderの設定を変更する関数。
type Option func(*Provider)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithIDGenerator はID生成関数を差し替える。
func WithIDGenerator(newID func() string) Option {
	return func(p *Provider) { p.newID = newID }
}

// WithRecorder はストア操作の記録先を設定する。
func WithRecorder(r OperationRecorder) Option {
	return func(p *Provider) { p.recorder = r }
}

// Provider はデバイス（namespace）ごとのStoreを払い出す。
type Provider struct {
	repo     repository.KVRepository
	now      func() time.Time
	newID    func() string
	recorder OperationRecorder
}

// NewProvider はProviderを生成する。
func NewProvider(repo repository.KVRepository, opts ...Option) *Provider {
	p := &Provider{
		repo:  repo,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// For は指定namespaceのStoreを返す。
func (p *Provider) For(namespace string) *Store {
	return &Store{p: p, namespace: namespace}
}

// Store はひとつのデバイスのローカルストア。
type Store struct {
	p         *Provider
	namespace string
}

func (s *Store) record(op string, err error) {
	if s.p.recorder != nil {
		s.p.recorder.RecordStoreOperation(op, err == nil)
	}
}

// readJSON はキーの値をvに読み込む。キーが存在しない場合はfalseを返す。
func (s *Store) readJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.p.repo.Get(ctx, s.namespace, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrCorruptState, key, err)
	}
	return true, nil
}

func (s *Store) writeJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.p.repo.Set(ctx, s.namespace, key, raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
