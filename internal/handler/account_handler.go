package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/codepad/internal/account"
	"github.com/hitoshi/codepad/internal/middleware"
	"github.com/hitoshi/codepad/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Register(ctx context.Context, device string, in account.RegisterInput) (*model.Account, error)
	Login(ctx context.Context, device, email, password string) (*model.Account, error)
	DemoLogin(ctx context.Context, device string) (*model.Account, bool, error)
	Logout(ctx context.Context, device string) error
	Current(ctx context.Context, device string) (*model.Account, error)
}

// AccountHandler はアカウント登録とログイン状態のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// registerRequest はアカウント登録リクエストのボディ。
type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Avatar          string `json:"avatar"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// accountResponse はアカウント情報のAPIレスポンス。パスワードは含めない。
type accountResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// sessionResponse はログイン操作のAPIレスポンス。
type sessionResponse struct {
	Account accountResponse `json:"account"`
	Message string          `json:"message"`
}

func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		ID:     a.ID,
		Name:   a.Name,
		Email:  a.Email,
		Avatar: a.Avatar,
	}
}

// Register はアカウントを登録してログインする。
// POST /api/accounts
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requestDevice(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.service.Register(r.Context(), deviceID, account.RegisterInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Avatar:          req.Avatar,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		Account: toAccountResponse(acc),
		Message: "Account created successfully",
	})
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/session
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requestDevice(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.service.Login(r.Context(), deviceID, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Account: toAccountResponse(acc),
		Message: "Logged in successfully",
	})
}

// DemoLogin はデモアカウントでログインする。
// POST /api/session/demo
func (h *AccountHandler) DemoLogin(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requestDevice(w, r)
	if !ok {
		return
	}

	acc, created, err := h.service.DemoLogin(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	message := "Logged in with demo account"
	if created {
		message = "Demo account created"
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Account: toAccountResponse(acc),
		Message: message,
	})
}

// Logout はログイン状態を解除する。
// DELETE /api/session
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requestDevice(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), deviceID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

// Me は現在ログイン中のアカウントを返す。未ログインの場合は401を返す。
// GET /api/session
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requestDevice(w, r)
	if !ok {
		return
	}

	acc, err := h.service.Current(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if acc == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}
