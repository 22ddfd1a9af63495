// Package cleanup は放置されたエディタセッションの自動クローズジョブを提供する。
// 一定時間（デフォルト30分）参照されていないセッションを定期的に閉じ、
// 待機中の描画タイマーとプレビューフレームを解放する。
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// DefaultIdleTTL はセッションを放置とみなすまでのデフォルト時間。
const DefaultIdleTTL = 30 * time.Minute

// SessionReaper は放置されたセッションを閉じるインターフェース。
// *editor.Manager が満たす。
type SessionReaper interface {
	ReapIdle(ttl time.Duration) int
	Count() int
}

// CleanupJob は放置されたエディタセッションの自動クローズジョブ。
// 冪等であり、対象がない場合も何もせずに完了する。
type CleanupJob struct {
	sessions SessionReaper
	logger   *slog.Logger
	IdleTTL  time.Duration // セッションの放置許容時間（デフォルト: 30分）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの放置許容時間は30分。
func NewCleanupJob(sessions SessionReaper, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
		IdleTTL:  DefaultIdleTTL,
	}
}

// Run はIdleTTLより長く参照されていないセッションを閉じる。
// コンテキストがキャンセル済みの場合は何もせずにエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	closed := j.sessions.ReapIdle(j.IdleTTL)

	j.logger.Info("エディタセッションのクリーンアップが完了しました",
		slog.Int("closed_count", closed),
		slog.Int("open_count", j.sessions.Count()),
		slog.Duration("idle_ttl", j.IdleTTL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッションクリーンアップを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("idle_ttl", j.IdleTTL),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("セッションクリーンアップに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
