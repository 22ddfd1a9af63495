package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockReaper はSessionReaperのモック実装。
type mockReaper struct {
	mu     sync.Mutex
	calls  int
	ttl    time.Duration
	closed int
	open   int
}

func (m *mockReaper) ReapIdle(ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.ttl = ttl
	return m.closed
}

func (m *mockReaper) Count() int {
	return m.open
}

func (m *mockReaper) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogEntry はJSONログから指定キーを持つ最初のエントリを返す。
func findLogEntry(buf *bytes.Buffer, key string) map[string]interface{} {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if _, ok := entry[key]; ok {
			return entry
		}
	}
	return nil
}

func TestNewCleanupJob_SetsDefaultIdleTTL(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockReaper{}, newTestLogger(&buf))

	if job == nil {
		t.Fatal("NewCleanupJob は nil を返してはならない")
	}
	if job.IdleTTL != 30*time.Minute {
		t.Errorf("IdleTTL = %v, want 30m", job.IdleTTL)
	}
}

func TestCleanupJob_Run_ReapsWithIdleTTL(t *testing.T) {
	var buf bytes.Buffer
	reaper := &mockReaper{closed: 2}
	job := NewCleanupJob(reaper, newTestLogger(&buf))
	job.IdleTTL = 10 * time.Minute

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if reaper.calls != 1 {
		t.Fatalf("ReapIdle の呼び出し回数 = %d, want 1", reaper.calls)
	}
	if reaper.ttl != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m", reaper.ttl)
	}
}

func TestCleanupJob_Run_LogsClosedCount(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockReaper{closed: 3, open: 5}, newTestLogger(&buf))

	_ = job.Run(context.Background())

	entry := findLogEntry(&buf, "closed_count")
	if entry == nil {
		t.Fatalf("ログに closed_count が記録されていない。ログ出力: %s", buf.String())
	}
	if entry["closed_count"] != float64(3) {
		t.Errorf("closed_count = %v, want 3", entry["closed_count"])
	}
	if entry["open_count"] != float64(5) {
		t.Errorf("open_count = %v, want 5", entry["open_count"])
	}
}

func TestCleanupJob_Run_NothingToReap(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockReaper{}, newTestLogger(&buf))

	// 冪等性: 対象がない場合でもエラーにならない
	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run() #%d がエラーを返した: %v", i+1, err)
		}
	}
}

func TestCleanupJob_Run_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	reaper := &mockReaper{}
	job := NewCleanupJob(reaper, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := job.Run(ctx); err == nil {
		t.Error("キャンセル済みコンテキストではエラーを返すべき")
	}
	if reaper.calls != 0 {
		t.Errorf("キャンセル後に ReapIdle が呼ばれた: %d", reaper.calls)
	}
}

func TestCleanupJob_Start_RunsOnTickUntilCancelled(t *testing.T) {
	var buf bytes.Buffer
	reaper := &mockReaper{}
	job := NewCleanupJob(reaper, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for reaper.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start がキャンセル後に終了しなかった")
	}

	if reaper.callCount() < 2 {
		t.Errorf("ReapIdle の呼び出し回数 = %d, want >= 2", reaper.callCount())
	}
}
