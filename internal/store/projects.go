package store

import (
	"context"

	"github.com/hitoshi/codepad/internal/model"
)

// 新規プロジェクトのテンプレート
const (
	templateHTML = "<!DOCTYPE html>\n<html>\n<head>\n  <title>My Project</title>\n</head>\n<body>\n  <h1>Hello World</h1>\n</body>\n</html>"
	templateCSS  = "body {\n  font-family: Arial, sans-serif;\n  margin: 0;\n  padding: 20px;\n}"
	templateJS   = "console.log(\"Hello from JavaScript!\");"
)

func (s *Store) loadProjects(ctx context.Context) ([]model.Project, error) {
	projects := []model.Project{}
	if _, err := s.readJSON(ctx, KeyProjects, &projects); err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []model.Project{}
	}
	return projects, nil
}

func filterByOwner(projects []model.Project, accountID string) []model.Project {
	owned := []model.Project{}
	for _, p := range projects {
		if p.UserID == accountID {
			owned = append(owned, p)
		}
	}
	return owned
}

// NewProject はテンプレート内容を持つ新しいプロジェクトを生成する。
// 保存は行わない。
func (s *Store) NewProject(accountID, name string) model.Project {
	now := s.p.now().UTC()
	return model.Project{
		ID:        s.p.newID(),
		Name:      model.NormalizeName(name),
		HTML:      templateHTML,
		CSS:       templateCSS,
		JS:        templateJS,
		CreatedAt: now,
		UpdatedAt: now,
		UserID:    accountID,
	}
}

// ListAllProjects は全アカウントのプロジェクトを保存順に返す。
func (s *Store) ListAllProjects(ctx context.Context) (projects []model.Project, err error) {
	defer func() { s.record("list_all_projects", err) }()
	return s.loadProjects(ctx)
}

// ListProjects は指定アカウントが所有するプロジェクトを保存順に返す。
func (s *Store) ListProjects(ctx context.Context, accountID string) (projects []model.Project, err error) {
	defer func() { s.record("list_projects", err) }()

	all, err := s.loadProjects(ctx)
	if err != nil {
		return nil, err
	}
	return filterByOwner(all, accountID), nil
}

// FindProject はIDでプロジェクトを検索する。見つからない場合はnilを返す。
func (s *Store) FindProject(ctx context.Context, id string) (project *model.Project, err error) {
	defer func() { s.record("find_project", err) }()

	all, err := s.loadProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, nil
}

// UpsertProject はIDが一致するプロジェクトを置き換え、なければ末尾に追加する。
// 名前は正規化され、UpdatedAtは書き込み時刻で上書きされる。
// 保存されたレコードを返す。
func (s *Store) UpsertProject(ctx context.Context, project model.Project) (saved model.Project, err error) {
	defer func() { s.record("upsert_project", err) }()

	all, err := s.loadProjects(ctx)
	if err != nil {
		return model.Project{}, err
	}

	now := s.p.now().UTC()
	project.Name = model.NormalizeName(project.Name)
	if project.CreatedAt.IsZero() || project.CreatedAt.After(now) {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	replaced := false
	for i := range all {
		if all[i].ID == project.ID {
			all[i] = project
			replaced = true
			break
		}
	}
	if !replaced {
		all = append(all, project)
	}

	if err := s.writeJSON(ctx, KeyProjects, all); err != nil {
		return model.Project{}, err
	}
	return project, nil
}

// DeleteProject はIDが一致するプロジェクトを削除する。存在しない場合は何もしない。
// 所有者のプロジェクトがなくなった場合は、同じ書き込みで新しい既定プロジェクトを追加する。
func (s *Store) DeleteProject(ctx context.Context, id string) (err error) {
	defer func() { s.record("delete_project", err) }()

	all, err := s.loadProjects(ctx)
	if err != nil {
		return err
	}

	owner := ""
	found := false
	kept := make([]model.Project, 0, len(all))
	for _, p := range all {
		if p.ID == id && !found {
			owner = p.UserID
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return nil
	}

	if len(filterByOwner(kept, owner)) == 0 {
		kept = append(kept, s.NewProject(owner, ""))
	}

	return s.writeJSON(ctx, KeyProjects, kept)
}
