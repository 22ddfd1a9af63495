// Package editor は開いているエディタセッションとそのプレビューを管理する。
package editor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/codepad/internal/model"
	"github.com/hitoshi/codepad/internal/preview"
)

// SessionGauge は開いているセッション数の記録先。
type SessionGauge interface {
	SetOpenSessions(count int)
}

// Editor はひとつの開いているエディタ。
type Editor struct {
	ID        string
	Device    string
	AccountID string
	Preview   *preview.Session
	Frame     *preview.Frame
}

type entry struct {
	editor     *Editor
	lastAccess time.Time
}

// Options はManagerの設定。
type Options struct {
	// Preview は各セッションのプレビュー設定。
	Preview preview.SessionOptions
	Gauge   SessionGauge
	Now     func() time.Time
	NewID   func() string
}

// Manager はエディタセッションを保持する。
// セッションは作成したデバイスからのみ参照できる。
type Manager struct {
	frames  *preview.FrameSet
	preview preview.SessionOptions
	gauge   SessionGauge
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager はManagerを生成する。
func NewManager(opts Options) *Manager {
	m := &Manager{
		frames:   preview.NewFrameSet(),
		preview:  opts.Preview,
		gauge:    opts.Gauge,
		now:      opts.Now,
		newID:    opts.NewID,
		sessions: make(map[string]*entry),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.New().String() }
	}
	return m
}

// Open はプロジェクトのエディタセッションを開き、初回描画を行う。
func (m *Manager) Open(device, accountID string, project model.Project) *Editor {
	id := m.newID()
	frame := m.frames.Attach(id)
	ed := &Editor{
		ID:        id,
		Device:    device,
		AccountID: accountID,
		Frame:     frame,
		Preview:   preview.NewSession(id, project, m.frames, m.preview),
	}

	m.mu.Lock()
	m.sessions[id] = &entry{editor: ed, lastAccess: m.now()}
	count := len(m.sessions)
	m.mu.Unlock()

	m.reportCount(count)
	slog.Info("エディタセッションを開きました",
		slog.String("session_id", id),
		slog.String("device_id", device),
		slog.String("project_id", project.ID),
	)
	return ed
}

// Get は指定デバイスのセッションを返す。
// 存在しない場合や他のデバイスのセッションの場合はエラーを返す。
func (m *Manager) Get(device, sessionID string) (*Editor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok || e.editor.Device != device {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	e.lastAccess = m.now()
	return e.editor, nil
}

// Edit はセッションのソース断片を置き換え、更新後のプロジェクトを返す。
// UpdatedAtはメモリ上で更新され、保存時にストアが改めて設定する。
// 内容が変わらない場合は描画を予約しない。
func (m *Manager) Edit(device, sessionID string, field model.SourceField, value string) (model.Project, error) {
	ed, err := m.Get(device, sessionID)
	if err != nil {
		return model.Project{}, err
	}

	current := ed.Preview.Project()
	if current.Source(field) == value {
		return current, nil
	}

	project := current.WithSource(field, value)
	project.UpdatedAt = m.now().UTC()
	ed.Preview.Update(project)
	return project, nil
}

// SetProject はセッションのプロジェクト全体を置き換える。
func (m *Manager) SetProject(device, sessionID string, project model.Project) error {
	ed, err := m.Get(device, sessionID)
	if err != nil {
		return err
	}
	ed.Preview.Update(project)
	return nil
}

// Close はセッションを閉じ、待機中の描画を取り消す。
func (m *Manager) Close(device, sessionID string) error {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok || e.editor.Device != device {
		m.mu.Unlock()
		return model.NewSessionNotFoundError(sessionID)
	}
	delete(m.sessions, sessionID)
	count := len(m.sessions)
	m.mu.Unlock()

	m.teardown(e.editor)
	m.reportCount(count)
	return nil
}

// CloseProject は指定プロジェクトを開いているセッションをすべて閉じる。
// プロジェクト削除時に使用する。閉じたセッション数を返す。
func (m *Manager) CloseProject(device, projectID string) int {
	m.mu.Lock()
	var closing []*Editor
	for id, e := range m.sessions {
		if e.editor.Device == device && e.editor.Preview.Project().ID == projectID {
			closing = append(closing, e.editor)
			delete(m.sessions, id)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, ed := range closing {
		m.teardown(ed)
	}
	if len(closing) > 0 {
		m.reportCount(count)
	}
	return len(closing)
}

// ReapIdle はttlより長く参照されていないセッションを閉じ、閉じた数を返す。
func (m *Manager) ReapIdle(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	var idle []*Editor
	for id, e := range m.sessions {
		if e.lastAccess.Before(cutoff) {
			idle = append(idle, e.editor)
			delete(m.sessions, id)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, ed := range idle {
		m.teardown(ed)
	}
	m.reportCount(count)
	return len(idle)
}

// CloseAll はすべてのセッションを閉じる。シャットダウン時に使用する。
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Editor, 0, len(m.sessions))
	for id, e := range m.sessions {
		all = append(all, e.editor)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, ed := range all {
		m.teardown(ed)
	}
	m.reportCount(0)
}

// Count は開いているセッション数を返す。
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) teardown(ed *Editor) {
	ed.Preview.Close()
	m.frames.Detach(ed.ID)
}

func (m *Manager) reportCount(count int) {
	if m.gauge != nil {
		m.gauge.SetOpenSessions(count)
	}
}
