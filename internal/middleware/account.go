package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/codepad/internal/model"
)

// accountContextKey はリクエストコンテキストに現在のアカウントを格納するためのキー。
var accountContextKey = contextKey("account")

// CurrentAccountFinder は現在のアカウントの取得に必要なインターフェース。
// account.Serviceの部分集合として定義する。
type CurrentAccountFinder interface {
	Current(ctx context.Context, device string) (*model.Account, error)
}

// NewAccountMiddleware はデバイスの現在のアカウントを確認するミドルウェアを返す。
// ログインしていない場合は401を返し、クライアントにログイン画面への遷移を促す。
// デバイスミドルウェアの後に配置する。
func NewAccountMiddleware(finder CurrentAccountFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := DeviceIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			account, err := finder.Current(r.Context(), deviceID)
			if err != nil {
				slog.Error("failed to load current account",
					slog.String("device_id", deviceID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if account == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			annotateAccount(r.Context(), account.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithAccount(r.Context(), account)))
		})
	}
}

// AccountFromContext はリクエストコンテキストから現在のアカウントを取得する。
// アカウントミドルウェアを通過したリクエストでのみ有効。
func AccountFromContext(ctx context.Context) (*model.Account, error) {
	account, ok := ctx.Value(accountContextKey).(*model.Account)
	if !ok || account == nil {
		return nil, fmt.Errorf("account not found in context")
	}
	return account, nil
}

// ContextWithAccount はコンテキストにアカウントを注入する。
func ContextWithAccount(ctx context.Context, account *model.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}
