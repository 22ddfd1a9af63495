package preview

import (
	"errors"
	"sync"
	"time"
)

// ErrTargetUnavailable は描画先がまだ用意されていない場合に返される。
var ErrTargetUnavailable = errors.New("rendering target unavailable")

// ErrFrameClosed は閉じられたフレームへの描画で返される。
var ErrFrameClosed = errors.New("frame closed")

// Target は合成済みドキュメントの描画先。
// Replaceは以前の内容を完全に置き換える（追記しない）。
type Target interface {
	Replace(doc string) error
}

// TargetProvider は描画のたびに描画先を取得する。
type TargetProvider interface {
	Acquire(id string) (Target, error)
}

// RenderEvent はフレームの内容が更新されたことを表す。
type RenderEvent struct {
	SessionID  string    `json:"sessionId"`
	Revision   uint64    `json:"revision"`
	RenderedAt time.Time `json:"renderedAt"`
}

// Frame はひとつのエディタセッションの描画先。
// ブラウザのiframeは GET /preview/{sessionID} でこの内容を読み込む。
type Frame struct {
	id  string
	now func() time.Time

	mu         sync.RWMutex
	doc        string
	revision   uint64
	renderedAt time.Time
	closed     bool
	subs       map[chan RenderEvent]struct{}
}

// NewFrame は空のFrameを生成する。
func NewFrame(id string) *Frame {
	return &Frame{
		id:   id,
		now:  time.Now,
		subs: make(map[chan RenderEvent]struct{}),
	}
}

// ID はフレームのIDを返す。
func (f *Frame) ID() string {
	return f.id
}

// Replace はフレームの内容を置き換える。
// 内容が変わった場合のみリビジョンを進めて購読者に通知する。
func (f *Frame) Replace(doc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFrameClosed
	}
	if f.revision > 0 && doc == f.doc {
		return nil
	}

	f.doc = doc
	f.revision++
	f.renderedAt = f.now()

	ev := RenderEvent{SessionID: f.id, Revision: f.revision, RenderedAt: f.renderedAt}
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
			// 受信側が詰まっている場合は古い通知を捨てて最新を入れる
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
	return nil
}

// Document は現在のドキュメントとリビジョンを返す。
func (f *Frame) Document() (string, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.doc, f.revision
}

// Subscribe は内容更新の通知を受け取るチャネルと解除関数を返す。
// フレームが閉じられるとチャネルはcloseされる。
func (f *Frame) Subscribe() (<-chan RenderEvent, func()) {
	ch := make(chan RenderEvent, 1)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subs[ch]; ok {
				delete(f.subs, ch)
				close(ch)
			}
		})
	}
}

// Close はフレームを閉じ、すべての購読チャネルをcloseする。
func (f *Frame) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
}

// FrameSet はセッションIDをキーにFrameを管理するTargetProvider。
type FrameSet struct {
	mu     sync.RWMutex
	frames map[string]*Frame
}

// NewFrameSet はFrameSetを生成する。
func NewFrameSet() *FrameSet {
	return &FrameSet{frames: make(map[string]*Frame)}
}

// Attach は指定IDのフレームを用意する。既に存在する場合はそれを返す。
func (s *FrameSet) Attach(id string) *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.frames[id]; ok {
		return f
	}
	f := NewFrame(id)
	s.frames[id] = f
	return f
}

// Detach は指定IDのフレームを取り外して閉じる。
func (s *FrameSet) Detach(id string) {
	s.mu.Lock()
	f, ok := s.frames[id]
	delete(s.frames, id)
	s.mu.Unlock()

	if ok {
		f.Close()
	}
}

// Get は指定IDのフレームを返す。見つからない場合はnilを返す。
func (s *FrameSet) Get(id string) *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames[id]
}

// Acquire はTargetProviderを実装する。
func (s *FrameSet) Acquire(id string) (Target, error) {
	f := s.Get(id)
	if f == nil {
		return nil, ErrTargetUnavailable
	}
	return f, nil
}

var (
	_ Target         = (*Frame)(nil)
	_ TargetProvider = (*FrameSet)(nil)
)
