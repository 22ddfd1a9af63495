// Package account はアカウント登録とログイン状態の管理を提供する。
// ログイン状態はデバイスごとのローカルストアに「現在のアカウント」として保持する。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/codepad/internal/model"
	"github.com/hitoshi/codepad/internal/security"
	"github.com/hitoshi/codepad/internal/store"
)

// デモアカウントの固定値
const (
	DemoAccountID = "demo-user"
	DemoName      = "Demo User"
	DemoEmail     = "demo@example.com"
	DemoPassword  = "demo1234"
)

// RegisterInput はアカウント登録の入力。
type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	Avatar          string
}

// Service はアカウント管理のサービス層。
type Service struct {
	stores      *store.Provider
	avatars     *security.AvatarValidator
	demoEnabled bool
	newID       func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(stores *store.Provider, avatars *security.AvatarValidator, demoEnabled bool) *Service {
	if avatars == nil {
		avatars = security.NewAvatarValidator(0)
	}
	return &Service{
		stores:      stores,
		avatars:     avatars,
		demoEnabled: demoEnabled,
		newID:       func() string { return uuid.New().String() },
	}
}

// Register はアカウントを登録し、そのアカウントでログインした状態にする。
// メールアドレスが登録済みの場合は何も書き込まずにエラーを返す。
func (s *Service) Register(ctx context.Context, device string, in RegisterInput) (*model.Account, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)

	if name == "" || email == "" || in.Password == "" {
		return nil, model.NewValidationError("名前、メールアドレス、パスワードは必須です。")
	}
	if in.Password != in.ConfirmPassword {
		return nil, model.NewPasswordMismatchError()
	}
	if err := s.avatars.Validate(in.Avatar); err != nil {
		return nil, model.NewInvalidAvatarError(err.Error())
	}

	st := s.stores.For(device)

	existing, err := st.FindAccountByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailRegisteredError()
	}

	account := &model.Account{
		ID:       s.newID(),
		Name:     name,
		Email:    email,
		Password: in.Password,
		Avatar:   in.Avatar,
	}
	if err := st.UpsertAccount(ctx, *account); err != nil {
		return nil, fmt.Errorf("アカウントの保存に失敗しました: %w", err)
	}
	if err := st.SetCurrentAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("ログイン状態の保存に失敗しました: %w", err)
	}

	slog.Info("アカウントを登録しました",
		slog.String("device_id", device),
		slog.String("account_id", account.ID),
	)
	return account, nil
}

// Login はメールアドレスとパスワードでログインする。
// 未登録のメールアドレスとパスワード不一致は区別せずに同じエラーを返す。
func (s *Service) Login(ctx context.Context, device, email, password string) (*model.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("メールアドレスとパスワードを入力してください。")
	}

	st := s.stores.For(device)

	account, err := st.Authenticate(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("認証に失敗しました: %w", err)
	}
	if account == nil {
		slog.Info("ログインに失敗しました", slog.String("device_id", device))
		return nil, model.NewInvalidCredentialsError()
	}

	if err := st.SetCurrentAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("ログイン状態の保存に失敗しました: %w", err)
	}
	return account, nil
}

// DemoLogin はデモアカウントでログインする。
// デモアカウントが存在しない場合は作成し、createdにtrueを返す。
// 既存のアカウントは削除しない。デモ用のメールアドレスが別のパスワードで
// 登録済みの場合は何も書き込まずに認証エラーを返す。
func (s *Service) DemoLogin(ctx context.Context, device string) (account *model.Account, created bool, err error) {
	if !s.demoEnabled {
		return nil, false, model.NewDemoDisabledError()
	}

	st := s.stores.For(device)

	account, err = st.Authenticate(ctx, DemoEmail, DemoPassword)
	if err != nil {
		return nil, false, fmt.Errorf("認証に失敗しました: %w", err)
	}
	if account == nil {
		existing, err := st.FindAccountByEmail(ctx, DemoEmail)
		if err != nil {
			return nil, false, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
		}
		if existing != nil {
			slog.Info("デモ用メールアドレスは登録済みです",
				slog.String("device_id", device),
				slog.String("account_id", existing.ID),
			)
			return nil, false, model.NewInvalidCredentialsError()
		}

		account = &model.Account{
			ID:       DemoAccountID,
			Name:     DemoName,
			Email:    DemoEmail,
			Password: DemoPassword,
		}
		if err := st.UpsertAccount(ctx, *account); err != nil {
			return nil, false, fmt.Errorf("デモアカウントの保存に失敗しました: %w", err)
		}
		created = true
		slog.Info("デモアカウントを作成しました", slog.String("device_id", device))
	}

	if err := st.SetCurrentAccount(ctx, account); err != nil {
		return nil, false, fmt.Errorf("ログイン状態の保存に失敗しました: %w", err)
	}
	return account, created, nil
}

// Logout はログイン状態を解除する。
func (s *Service) Logout(ctx context.Context, device string) error {
	if err := s.stores.For(device).SetCurrentAccount(ctx, nil); err != nil {
		return fmt.Errorf("ログイン状態の削除に失敗しました: %w", err)
	}
	return nil
}

// Current は現在ログイン中のアカウントを返す。未ログインの場合はnilを返す。
func (s *Service) Current(ctx context.Context, device string) (*model.Account, error) {
	account, err := s.stores.For(device).CurrentAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("ログイン状態の取得に失敗しました: %w", err)
	}
	return account, nil
}
