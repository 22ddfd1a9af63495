package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/codepad/internal/editor"
	"github.com/hitoshi/codepad/internal/preview"
)

// previewSandboxPolicy はプレビュー文書に適用するCSP。
// ホストページのiframe sandbox属性と同じ権限に制限する。
const previewSandboxPolicy = "sandbox allow-scripts allow-forms allow-same-origin allow-modals"

// EditorLookup はプレビューハンドラーが必要とするセッション参照インターフェース。
type EditorLookup interface {
	Get(device, sessionID string) (*editor.Editor, error)
}

// PreviewHandler はエディタセッションのプレビュー文書を配信するHTTPハンドラー。
type PreviewHandler struct {
	editors EditorLookup
}

// NewPreviewHandler はPreviewHandlerを生成する。
func NewPreviewHandler(editors EditorLookup) *PreviewHandler {
	return &PreviewHandler{editors: editors}
}

// Document はセッションのフレームが保持している最新の文書を返す。
// GET /preview/{sessionID}
func (h *PreviewHandler) Document(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requestDevice(w, r)
	if !ok {
		return
	}

	ed, err := h.editors.Get(deviceID, chi.URLParam(r, "sessionID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	doc, rev := ed.Frame.Document()

	header := w.Header()
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Content-Security-Policy", previewSandboxPolicy)
	header.Set("X-Frame-Options", "SAMEORIGIN")
	header.Set("Cache-Control", "no-store")
	header.Set("X-Preview-Revision", strconv.FormatUint(rev, 10))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Warn("failed to write preview document",
			slog.String("session_id", ed.ID),
			slog.String("error", err.Error()),
		)
	}
}

func previewRenderEvent(sessionID string, revision uint64, renderedAt time.Time) preview.RenderEvent {
	return preview.RenderEvent{
		SessionID:  sessionID,
		Revision:   revision,
		RenderedAt: renderedAt,
	}
}

// writeEvent は描画通知をJSONとして書き込む。
func writeEvent(conn *websocket.Conn, ev preview.RenderEvent) error {
	conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
	return conn.WriteJSON(ev)
}
