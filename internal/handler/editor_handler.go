package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/codepad/internal/editor"
	"github.com/hitoshi/codepad/internal/model"
	"github.com/hitoshi/codepad/internal/project"
)

const (
	// eventsWriteWait はWebSocketへの1回の書き込みに許す時間。
	eventsWriteWait = 10 * time.Second
	// eventsPongWait はクライアントからの応答を待つ時間。
	eventsPongWait = 60 * time.Second
	// eventsPingPeriod はpingの送信間隔。eventsPongWaitより短くする。
	eventsPingPeriod = eventsPongWait * 9 / 10
	// maxDiagnosticLength はログに記録するスクリプトエラーメッセージの最大長。
	maxDiagnosticLength = 1000
)

// EditorManagerInterface はエディタハンドラーが必要とするセッション管理インターフェース。
type EditorManagerInterface interface {
	Open(device, accountID string, project model.Project) *editor.Editor
	Get(device, sessionID string) (*editor.Editor, error)
	Edit(device, sessionID string, field model.SourceField, value string) (model.Project, error)
	SetProject(device, sessionID string, project model.Project) error
	Close(device, sessionID string) error
}

// ProjectReadSaver はエディタがファイルを開いて保存するために必要なサービスインターフェース。
type ProjectReadSaver interface {
	Get(ctx context.Context, device, accountID, id string) (*model.Project, error)
	Save(ctx context.Context, device, accountID, id string, in project.SaveInput) (model.Project, error)
}

// ScriptErrorRecorder はプレビュー内のスクリプトエラーの記録先。
type ScriptErrorRecorder interface {
	RecordScriptError()
}

// EditorHandlerConfig はエディタハンドラーの設定。
type EditorHandlerConfig struct {
	// AllowedOrigin はWebSocket接続を許可する追加のオリジン（フロントエンド）。
	AllowedOrigin string
}

// EditorHandler はエディタセッションとプレビュー描画のHTTPハンドラー。
type EditorHandler struct {
	editors  EditorManagerInterface
	projects ProjectReadSaver
	recorder ScriptErrorRecorder
	upgrader websocket.Upgrader
}

// NewEditorHandler はEditorHandlerを生成する。
func NewEditorHandler(editors EditorManagerInterface, projects ProjectReadSaver, recorder ScriptErrorRecorder, config EditorHandlerConfig) *EditorHandler {
	return &EditorHandler{
		editors:  editors,
		projects: projects,
		recorder: recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newOriginChecker(config.AllowedOrigin),
		},
	}
}

// openEditorRequest はエディタを開くリクエストのボディ。
type openEditorRequest struct {
	FileID string `json:"fileId"`
}

// sourceRequest はソース断片の更新リクエストのボディ。
type sourceRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// autoRenderRequest は自動描画の切り替えリクエストのボディ。
type autoRenderRequest struct {
	Enabled bool `json:"enabled"`
}

// saveEditorRequest はエディタ内容の保存リクエストのボディ。
type saveEditorRequest struct {
	Name *string `json:"name"`
}

// diagnosticRequest はプレビューから転送されたスクリプトエラーのボディ。
type diagnosticRequest struct {
	Message string `json:"message"`
}

// editorResponse はエディタセッションのAPIレスポンス。
type editorResponse struct {
	SessionID    string       `json:"sessionId"`
	PreviewURL   string       `json:"previewUrl"`
	AutoRender   bool         `json:"autoRender"`
	Pending      bool         `json:"pending"`
	LastRendered *time.Time   `json:"lastRendered,omitempty"`
	File         fileResponse `json:"file"`
}

func toEditorResponse(ed *editor.Editor) editorResponse {
	resp := editorResponse{
		SessionID:  ed.ID,
		PreviewURL: "/preview/" + ed.ID,
		AutoRender: ed.Preview.AutoRender(),
		Pending:    ed.Preview.Pending(),
		File:       toFileResponse(ed.Preview.Project()),
	}
	if last := ed.Preview.LastRendered(); !last.IsZero() {
		resp.LastRendered = &last
	}
	return resp
}

// editorFor はURLのセッションIDに対応する、現在のアカウントのエディタを返す。
// 取得できない場合はエラーレスポンスを書き込みfalseを返す。
func (h *EditorHandler) editorFor(w http.ResponseWriter, r *http.Request) (string, *model.Account, *editor.Editor, bool) {
	deviceID, acc, ok := requestAccount(w, r)
	if !ok {
		return "", nil, nil, false
	}

	sessionID := chi.URLParam(r, "sid")
	ed, err := h.editors.Get(deviceID, sessionID)
	if err == nil && ed.AccountID != acc.ID {
		err = model.NewSessionNotFoundError(sessionID)
	}
	if err != nil {
		handleServiceError(w, err)
		return "", nil, nil, false
	}
	return deviceID, acc, ed, true
}

// Open はファイルのエディタセッションを開き、プレビューを初回描画する。
// POST /api/editor
func (h *EditorHandler) Open(w http.ResponseWriter, r *http.Request) {
	deviceID, acc, ok := requestAccount(w, r)
	if !ok {
		return
	}

	var req openEditorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FileID == "" {
		handleServiceError(w, model.NewValidationError("fileIdは必須です。"))
		return
	}

	p, err := h.projects.Get(r.Context(), deviceID, acc.ID, req.FileID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ed := h.editors.Open(deviceID, acc.ID, *p)
	writeJSON(w, http.StatusCreated, toEditorResponse(ed))
}

// Get はエディタセッションの状態を返す。
// GET /api/editor/{sid}
func (h *EditorHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, _, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toEditorResponse(ed))
}

// Close はエディタセッションを閉じる。保存していない変更は破棄される。
// DELETE /api/editor/{sid}
func (h *EditorHandler) Close(w http.ResponseWriter, r *http.Request) {
	deviceID, _, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}

	if err := h.editors.Close(deviceID, ed.ID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSource はソース断片を置き換える。自動描画が有効な場合は静止期間後に描画される。
// PUT /api/editor/{sid}/source
func (h *EditorHandler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	deviceID, _, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}

	var req sourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	field, err := model.ParseSourceField(req.Field)
	if err != nil {
		handleServiceError(w, model.NewInvalidSourceFieldError(req.Field))
		return
	}

	if _, err := h.editors.Edit(deviceID, ed.ID, field, req.Value); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEditorResponse(ed))
}

// SetAutoRender は自動描画を切り替える。無効にすると待機中の描画は取り消される。
// PUT /api/editor/{sid}/autorender
func (h *EditorHandler) SetAutoRender(w http.ResponseWriter, r *http.Request) {
	_, _, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}

	var req autoRenderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ed.Preview.SetAutoRender(req.Enabled)
	writeJSON(w, http.StatusOK, toEditorResponse(ed))
}

// Run は待機中の描画を取り消して即座に描画する。
// POST /api/editor/{sid}/run
func (h *EditorHandler) Run(w http.ResponseWriter, r *http.Request) {
	_, _, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}

	ed.Preview.Run()
	writeJSON(w, http.StatusOK, toEditorResponse(ed))
}

// Loaded はプレビューの読み込み完了通知を受けて描画する。
// 内容が変わっていなければフレームは更新されず、通知も発生しない。
// POST /api/editor/{sid}/loaded
func (h *EditorHandler) Loaded(w http.ResponseWriter, r *http.Request) {
	_, _, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}

	ed.Preview.Loaded()
	w.WriteHeader(http.StatusNoContent)
}

// Save はエディタの内容をファイルに保存する。
// POST /api/editor/{sid}/save
func (h *EditorHandler) Save(w http.ResponseWriter, r *http.Request) {
	deviceID, acc, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}

	var req saveEditorRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	current := ed.Preview.Project()
	saved, err := h.projects.Save(r.Context(), deviceID, acc.ID, current.ID, project.SaveInput{
		Name: req.Name,
		HTML: current.HTML,
		CSS:  current.CSS,
		JS:   current.JS,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.editors.SetProject(deviceID, ed.ID, saved); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fileMutationResponse{
		File:    toFileResponse(saved),
		Message: "File saved successfully",
	})
}

// Diagnostics はプレビュー内で捕捉されたスクリプトエラーを記録する。
// スクリプトエラーは描画の失敗ではないため、常に202を返す。
// POST /api/editor/{sid}/diagnostics
func (h *EditorHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	_, acc, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}

	var req diagnosticRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	message := truncateDiagnostic(req.Message)
	slog.Warn("preview script error",
		slog.String("session_id", ed.ID),
		slog.String("account_id", acc.ID),
		slog.String("project_id", ed.Preview.Project().ID),
		slog.String("message", message),
	)
	if h.recorder != nil {
		h.recorder.RecordScriptError()
	}

	w.WriteHeader(http.StatusAccepted)
}

// Events は描画通知をWebSocketで配信する。
// 接続直後に現在のリビジョンを送り、以降はフレームが更新されるたびに送る。
// セッションが閉じられると接続も閉じる。
// GET /api/editor/{sid}/events
func (h *EditorHandler) Events(w http.ResponseWriter, r *http.Request) {
	_, _, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		slog.Warn("websocket upgrade failed",
			slog.String("session_id", ed.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	events, unsubscribe := ed.Frame.Subscribe()
	defer unsubscribe()

	// 読み込みループ: クライアントの切断を検出する
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(eventsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if _, rev := ed.Frame.Document(); rev > 0 {
		initial := previewRenderEvent(ed.ID, rev, ed.Preview.LastRendered())
		if err := writeEvent(conn, initial); err != nil {
			return
		}
	}

	ticker := time.NewTicker(eventsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "editor session closed"))
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// newOriginChecker はWebSocketのOriginヘッダーを検証する関数を返す。
// 同一ホストと設定されたフロントエンドのオリジンのみ許可する。
func newOriginChecker(allowedOrigin string) func(r *http.Request) bool {
	allowedOrigin = strings.TrimRight(allowedOrigin, "/")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowedOrigin != "" && strings.EqualFold(origin, allowedOrigin) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// truncateDiagnostic はメッセージをmaxDiagnosticLengthバイト以内のルーン境界で切り詰める。
// 不正なUTF-8は置換文字に置き換える。
func truncateDiagnostic(message string) string {
	if len(message) > maxDiagnosticLength {
		cut := maxDiagnosticLength
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut]
	}
	return strings.ToValidUTF8(message, "\uFFFD")
}
