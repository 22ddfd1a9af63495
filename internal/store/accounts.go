package store

import (
	"context"

	"github.com/hitoshi/codepad/internal/model"
)

func (s *Store) loadAccounts(ctx context.Context) ([]model.Account, error) {
	accounts := []model.Account{}
	if _, err := s.readJSON(ctx, KeyAccounts, &accounts); err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	return accounts, nil
}

// ListAccounts は登録済みアカウントを登録順に返す。
// 保存された状態がない場合は空のスライスを返す。
func (s *Store) ListAccounts(ctx context.Context) (accounts []model.Account, err error) {
	defer func() { s.record("list_accounts", err) }()
	return s.loadAccounts(ctx)
}

// UpsertAccount はメールアドレスが一致するアカウントを置き換え、
// 一致するものがなければ末尾に追加する。
func (s *Store) UpsertAccount(ctx context.Context, account model.Account) (err error) {
	defer func() { s.record("upsert_account", err) }()

	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range accounts {
		if accounts[i].Email == account.Email {
			accounts[i] = account
			replaced = true
			break
		}
	}
	if !replaced {
		accounts = append(accounts, account)
	}

	return s.writeJSON(ctx, KeyAccounts, accounts)
}

// FindAccountByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (s *Store) FindAccountByEmail(ctx context.Context, email string) (account *model.Account, err error) {
	defer func() { s.record("find_account", err) }()

	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].Email == email {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// CurrentAccount は現在ログイン中のアカウントを返す。未ログインの場合はnilを返す。
func (s *Store) CurrentAccount(ctx context.Context) (account *model.Account, err error) {
	defer func() { s.record("current_account", err) }()

	var current *model.Account
	if _, err := s.readJSON(ctx, KeyCurrentAccount, &current); err != nil {
		return nil, err
	}
	return current, nil
}

// SetCurrentAccount は現在のアカウントを設定する。nilを渡すとエントリを削除する。
func (s *Store) SetCurrentAccount(ctx context.Context, account *model.Account) (err error) {
	defer func() { s.record("set_current_account", err) }()

	if account == nil {
		return s.p.repo.Delete(ctx, s.namespace, KeyCurrentAccount)
	}
	return s.writeJSON(ctx, KeyCurrentAccount, account)
}

// Authenticate はメールアドレスとパスワードが完全一致するアカウントを返す。
// 一致するものがなければnilを返す。
func (s *Store) Authenticate(ctx context.Context, email, password string) (account *model.Account, err error) {
	defer func() { s.record("authenticate", err) }()

	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].Email == email && accounts[i].Password == password {
			return &accounts[i], nil
		}
	}
	return nil, nil
}
