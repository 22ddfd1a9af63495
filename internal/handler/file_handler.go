package handler

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/codepad/internal/model"
	"github.com/hitoshi/codepad/internal/project"
)

// ProjectServiceInterface はファイルハンドラーが必要とするサービスインターフェース。
type ProjectServiceInterface interface {
	List(ctx context.Context, device, accountID string) ([]model.Project, error)
	Get(ctx context.Context, device, accountID, id string) (*model.Project, error)
	Create(ctx context.Context, device, accountID, name string) (model.Project, error)
	Save(ctx context.Context, device, accountID, id string, in project.SaveInput) (model.Project, error)
	Rename(ctx context.Context, device, accountID, id, name string) (model.Project, error)
	Delete(ctx context.Context, device, accountID, id string) ([]model.Project, error)
	Export(ctx context.Context, device, accountID, id string) (filename, document string, err error)
}

// ProjectSessionCloser は削除されたファイルを開いているエディタセッションを閉じる。
type ProjectSessionCloser interface {
	CloseProject(device, projectID string) int
}

// FileHandler はファイル（プロジェクト）管理のHTTPハンドラー。
type FileHandler struct {
	service  ProjectServiceInterface
	sessions ProjectSessionCloser
}

// NewFileHandler はFileHandlerを生成する。sessionsはnilでもよい。
func NewFileHandler(service ProjectServiceInterface, sessions ProjectSessionCloser) *FileHandler {
	return &FileHandler{service: service, sessions: sessions}
}

// createFileRequest はファイル作成リクエストのボディ。
type createFileRequest struct {
	Name string `json:"name"`
}

// saveFileRequest はファイル保存リクエストのボディ。nameを省略した場合は名前を変更しない。
type saveFileRequest struct {
	Name *string `json:"name"`
	HTML string  `json:"html"`
	CSS  string  `json:"css"`
	JS   string  `json:"js"`
}

// renameFileRequest はファイル名変更リクエストのボディ。
type renameFileRequest struct {
	Name string `json:"name"`
}

// fileResponse はファイル情報のAPIレスポンス。
type fileResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HTML      string    `json:"html"`
	CSS       string    `json:"css"`
	JS        string    `json:"js"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// fileListResponse はファイル一覧のAPIレスポンス。
type fileListResponse struct {
	Files   []fileResponse `json:"files"`
	Message string         `json:"message,omitempty"`
}

// fileMutationResponse はファイル更新操作のAPIレスポンス。
type fileMutationResponse struct {
	File    fileResponse `json:"file"`
	Message string       `json:"message"`
}

func toFileResponse(p model.Project) fileResponse {
	return fileResponse{
		ID:        p.ID,
		Name:      p.Name,
		HTML:      p.HTML,
		CSS:       p.CSS,
		JS:        p.JS,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toFileListResponse(projects []model.Project, message string) fileListResponse {
	files := make([]fileResponse, len(projects))
	for i, p := range projects {
		files[i] = toFileResponse(p)
	}
	return fileListResponse{Files: files, Message: message}
}

// ListFiles はファイル一覧を返す。
// GET /api/files
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	deviceID, acc, ok := requestAccount(w, r)
	if !ok {
		return
	}

	projects, err := h.service.List(r.Context(), deviceID, acc.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileListResponse(projects, ""))
}

// CreateFile はテンプレート内容の新しいファイルを作成する。
// POST /api/files
func (h *FileHandler) CreateFile(w http.ResponseWriter, r *http.Request) {
	deviceID, acc, ok := requestAccount(w, r)
	if !ok {
		return
	}

	var req createFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), deviceID, acc.ID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, fileMutationResponse{
		File:    toFileResponse(created),
		Message: "New file created",
	})
}

// GetFile はファイルを返す。
// GET /api/files/{id}
func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	deviceID, acc, ok := requestAccount(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), deviceID, acc.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(*p))
}

// SaveFile はファイルのソース断片を保存する。
// PUT /api/files/{id}
func (h *FileHandler) SaveFile(w http.ResponseWriter, r *http.Request) {
	deviceID, acc, ok := requestAccount(w, r)
	if !ok {
		return
	}

	var req saveFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	saved, err := h.service.Save(r.Context(), deviceID, acc.ID, chi.URLParam(r, "id"), project.SaveInput{
		Name: req.Name,
		HTML: req.HTML,
		CSS:  req.CSS,
		JS:   req.JS,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fileMutationResponse{
		File:    toFileResponse(saved),
		Message: "File saved successfully",
	})
}

// RenameFile はファイル名を変更する。
// PUT /api/files/{id}/name
func (h *FileHandler) RenameFile(w http.ResponseWriter, r *http.Request) {
	deviceID, acc, ok := requestAccount(w, r)
	if !ok {
		return
	}

	var req renameFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	renamed, err := h.service.Rename(r.Context(), deviceID, acc.ID, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fileMutationResponse{
		File:    toFileResponse(renamed),
		Message: "File renamed",
	})
}

// DeleteFile はファイルを削除し、残りのファイル一覧を返す。
// 削除したファイルを開いているエディタセッションも閉じる。
// DELETE /api/files/{id}
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	deviceID, acc, ok := requestAccount(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	remaining, err := h.service.Delete(r.Context(), deviceID, acc.ID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.sessions != nil {
		if closed := h.sessions.CloseProject(deviceID, id); closed > 0 {
			slog.Info("削除されたファイルのエディタセッションを閉じました",
				slog.String("project_id", id),
				slog.Int("closed", closed),
			)
		}
	}

	writeJSON(w, http.StatusOK, toFileListResponse(remaining, "File deleted"))
}

// ExportFile はファイルを単体のHTMLドキュメントとしてダウンロードさせる。
// GET /api/files/{id}/export
func (h *FileHandler) ExportFile(w http.ResponseWriter, r *http.Request) {
	deviceID, acc, ok := requestAccount(w, r)
	if !ok {
		return
	}

	filename, document, err := h.service.Export(r.Context(), deviceID, acc.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(document)); err != nil {
		slog.Warn("failed to write export", slog.String("error", err.Error()))
	}
}

// contentDisposition は添付ファイルのContent-Dispositionヘッダー値を作る。
// 非ASCIIの名前はRFC 2231形式のfilename*で表す。
func contentDisposition(filename string) string {
	v := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if v == "" {
		return "attachment"
	}
	return v
}
