// Package project はアカウントが所有するプロジェクト（ファイル）の操作を提供する。
package project

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/codepad/internal/model"
	"github.com/hitoshi/codepad/internal/preview"
	"github.com/hitoshi/codepad/internal/store"
)

// ExportRecorder はエクスポートの記録先。
type ExportRecorder interface {
	RecordExport()
}

// SaveInput はプロジェクト保存の入力。Nameがnilの場合は名前を変更しない。
type SaveInput struct {
	Name *string
	HTML string
	CSS  string
	JS   string
}

// Service はプロジェクト操作のサービス層。
type Service struct {
	stores   *store.Provider
	recorder ExportRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(stores *store.Provider, recorder ExportRecorder) *Service {
	return &Service{stores: stores, recorder: recorder}
}

// List はアカウントのプロジェクト一覧を返す。
// プロジェクトがひとつもない場合は既定のプロジェクトを作成して保存してから返す。
func (s *Service) List(ctx context.Context, device, accountID string) ([]model.Project, error) {
	st := s.stores.For(device)

	projects, err := st.ListProjects(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}
	if len(projects) > 0 {
		return projects, nil
	}

	created, err := st.UpsertProject(ctx, st.NewProject(accountID, ""))
	if err != nil {
		return nil, fmt.Errorf("既定プロジェクトの保存に失敗しました: %w", err)
	}
	slog.Info("既定プロジェクトを作成しました",
		slog.String("device_id", device),
		slog.String("account_id", accountID),
		slog.String("project_id", created.ID),
	)
	return []model.Project{created}, nil
}

// Get はプロジェクトを返す。存在しない場合や他のアカウントのプロジェクトの場合はエラーを返す。
func (s *Service) Get(ctx context.Context, device, accountID, id string) (*model.Project, error) {
	p, err := s.stores.For(device).FindProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	if p == nil || p.UserID != accountID {
		return nil, model.NewProjectNotFoundError(id)
	}
	return p, nil
}

// Create はテンプレート内容のプロジェクトを作成して保存する。
// 名前は前後の空白を除去し、空の場合はUntitledになる。
func (s *Service) Create(ctx context.Context, device, accountID, name string) (model.Project, error) {
	st := s.stores.For(device)

	created, err := st.UpsertProject(ctx, st.NewProject(accountID, strings.TrimSpace(name)))
	if err != nil {
		return model.Project{}, fmt.Errorf("プロジェクトの保存に失敗しました: %w", err)
	}
	return created, nil
}

// Save はプロジェクトのソース断片（と名前）を保存する。UpdatedAtは保存時刻になる。
func (s *Service) Save(ctx context.Context, device, accountID, id string, in SaveInput) (model.Project, error) {
	current, err := s.Get(ctx, device, accountID, id)
	if err != nil {
		return model.Project{}, err
	}

	p := *current
	if in.Name != nil {
		p.Name = *in.Name
	}
	p.HTML = in.HTML
	p.CSS = in.CSS
	p.JS = in.JS

	saved, err := s.stores.For(device).UpsertProject(ctx, p)
	if err != nil {
		return model.Project{}, fmt.Errorf("プロジェクトの保存に失敗しました: %w", err)
	}
	return saved, nil
}

// Rename はプロジェクトの名前を変更する。空白のみの名前は受け付けない。
func (s *Service) Rename(ctx context.Context, device, accountID, id, name string) (model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Project{}, model.NewValidationError("ファイル名を入力してください。")
	}

	current, err := s.Get(ctx, device, accountID, id)
	if err != nil {
		return model.Project{}, err
	}

	p := *current
	p.Name = name
	saved, err := s.stores.For(device).UpsertProject(ctx, p)
	if err != nil {
		return model.Project{}, fmt.Errorf("プロジェクトの保存に失敗しました: %w", err)
	}
	return saved, nil
}

// Delete はプロジェクトを削除し、残りのプロジェクト一覧を返す。
// 最後のひとつを削除した場合は新しい既定プロジェクトが作成されるため、一覧は空にならない。
func (s *Service) Delete(ctx context.Context, device, accountID, id string) ([]model.Project, error) {
	if _, err := s.Get(ctx, device, accountID, id); err != nil {
		return nil, err
	}

	st := s.stores.For(device)
	if err := st.DeleteProject(ctx, id); err != nil {
		return nil, fmt.Errorf("プロジェクトの削除に失敗しました: %w", err)
	}

	remaining, err := st.ListProjects(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}
	slog.Info("プロジェクトを削除しました",
		slog.String("device_id", device),
		slog.String("project_id", id),
		slog.Int("remaining", len(remaining)),
	)
	return remaining, nil
}

// Export はプロジェクトを単体のHTMLドキュメントとして返す。
// ファイル名は "<プロジェクト名>.html"。
func (s *Service) Export(ctx context.Context, device, accountID, id string) (filename, document string, err error) {
	p, err := s.Get(ctx, device, accountID, id)
	if err != nil {
		return "", "", err
	}

	if s.recorder != nil {
		s.recorder.RecordExport()
	}
	return ExportFilename(p.DisplayName()), preview.Compose(*p), nil
}

// ExportFilename はプロジェクト名からエクスポート用のファイル名を作る。
// パス区切り文字は "_" に置き換える。
func ExportFilename(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(model.NormalizeName(name))
	return name + ".html"
}
