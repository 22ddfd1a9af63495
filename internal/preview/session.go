package preview

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/codepad/internal/model"
)

// DefaultQuietPeriod は最後の編集から自動描画までの待機時間の既定値。
const DefaultQuietPeriod = time.Second

// Trigger は描画のきっかけを表す。
type Trigger string

const (
	// TriggerMount はセッション生成時の初回描画。
	TriggerMount Trigger = "mount"
	// TriggerDebounce は編集が落ち着いた後の自動描画。
	TriggerDebounce Trigger = "debounce"
	// TriggerRun は明示的な実行操作による描画。
	TriggerRun Trigger = "run"
	// TriggerLoaded はフレームの読み込み完了通知による描画。
	TriggerLoaded Trigger = "loaded"
)

// Recorder は描画に関するメトリクスの記録先。
type Recorder interface {
	RecordRender(trigger string)
	RecordRenderSkipped(reason string)
	RecordRenderLatency(duration time.Duration)
	RecordDebounceReschedule()
}

// Timer は取り消し可能な予約済み処理。
type Timer interface {
	Stop() bool
}

// AfterFunc はdの経過後にfを別のゴルーチンで実行するよう予約する。
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SessionOptions はSessionの設定。
type SessionOptions struct {
	// QuietPeriod は自動描画までの待機時間。0以下の場合はDefaultQuietPeriod。
	QuietPeriod time.Duration
	// ManualOnly がtrueの場合は自動描画を無効にした状態で開始する。
	ManualOnly bool
	Recorder   Recorder
	AfterFunc  AfterFunc
	Now        func() time.Time
}

// Session はひとつのエディタのプレビュー描画を管理する。
// 編集中のプロジェクト、自動描画フラグ、待機中のタイマーを保持する。
// 並行に呼び出して安全。
type Session struct {
	id          string
	provider    TargetProvider
	quietPeriod time.Duration
	recorder    Recorder
	afterFunc   AfterFunc
	now         func() time.Time

	// renderMu は描画を直列化する。
	renderMu sync.Mutex

	mu           sync.Mutex
	project      model.Project
	autoRender   bool
	pending      Timer
	generation   uint64
	closed       bool
	lastRendered time.Time
}

// NewSession はSessionを生成し、初回描画を行う。
func NewSession(id string, project model.Project, provider TargetProvider, opts SessionOptions) *Session {
	s := &Session{
		id:          id,
		provider:    provider,
		quietPeriod: opts.QuietPeriod,
		recorder:    opts.Recorder,
		afterFunc:   opts.AfterFunc,
		now:         opts.Now,
		project:     project,
		autoRender:  !opts.ManualOnly,
	}
	if s.quietPeriod <= 0 {
		s.quietPeriod = DefaultQuietPeriod
	}
	if s.afterFunc == nil {
		s.afterFunc = realAfterFunc
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.render(TriggerMount)
	return s
}

// ID はセッションIDを返す。
func (s *Session) ID() string {
	return s.id
}

// Project は編集中のプロジェクトを返す。
func (s *Session) Project() model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// AutoRender は自動描画が有効かを返す。
func (s *Session) AutoRender() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRender
}

// LastRendered は最後に描画した時刻を返す。まだ描画していない場合はゼロ値。
func (s *Session) LastRendered() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRendered
}

// Update は編集中のプロジェクトを置き換える。
// 自動描画が有効な場合は待機中のタイマーを取り消し、待機時間後の描画を予約し直す。
func (s *Session) Update(project model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.project = project
	if !s.autoRender {
		return
	}

	if s.cancelPendingLocked() && s.recorder != nil {
		s.recorder.RecordDebounceReschedule()
	}
	s.generation++
	gen := s.generation
	s.pending = s.afterFunc(s.quietPeriod, func() { s.fire(gen) })
}

// Run は待機中のタイマーを取り消してすぐに描画する。自動描画の設定には関係しない。
func (s *Session) Run() {
	if !s.cancel() {
		return
	}
	s.render(TriggerRun)
}

// Loaded はフレームの読み込み完了通知を受けて描画する。
func (s *Session) Loaded() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.render(TriggerLoaded)
}

// SetAutoRender は自動描画を切り替える。無効にすると待機中のタイマーを取り消す。
func (s *Session) SetAutoRender(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.autoRender = enabled
	if !enabled {
		s.cancelPendingLocked()
		s.generation++
	}
}

// Close は待機中のタイマーを取り消す。以降の呼び出しは何もしない。
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancelPendingLocked()
	s.generation++
}

// Pending は描画が予約されているかを返す。
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// cancel は待機中のタイマーを取り消す。セッションが閉じられている場合はfalseを返す。
func (s *Session) cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.cancelPendingLocked()
	s.generation++
	return true
}

// cancelPendingLocked はs.muを保持した状態で呼び出す。
func (s *Session) cancelPendingLocked() bool {
	if s.pending == nil {
		return false
	}
	s.pending.Stop()
	s.pending = nil
	return true
}

// fire はタイマーから呼ばれる。予約後に取り消しや再予約があった場合は何もしない。
func (s *Session) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || !s.autoRender || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.mu.Unlock()

	s.render(TriggerDebounce)
}

// render は現在のプロジェクトを合成して描画先の内容を置き換える。
// 描画先を取得できない場合はログに記録してスキップする。
func (s *Session) render(trigger Trigger) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	start := s.now()
	project := s.Project()

	target, err := s.provider.Acquire(s.id)
	if err != nil {
		s.skip(trigger, "target_unavailable", err)
		return
	}

	if err := target.Replace(Compose(project)); err != nil {
		reason := "replace_failed"
		if errors.Is(err, ErrFrameClosed) {
			reason = "target_closed"
		}
		s.skip(trigger, reason, err)
		return
	}

	s.mu.Lock()
	s.lastRendered = s.now()
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordRender(string(trigger))
		s.recorder.RecordRenderLatency(s.now().Sub(start))
	}
}

func (s *Session) skip(trigger Trigger, reason string, err error) {
	slog.Warn("プレビューの描画をスキップしました",
		slog.String("session_id", s.id),
		slog.String("trigger", string(trigger)),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	if s.recorder != nil {
		s.recorder.RecordRenderSkipped(reason)
	}
}
