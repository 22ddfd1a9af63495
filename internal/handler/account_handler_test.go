package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/codepad/internal/account"
	"github.com/hitoshi/codepad/internal/model"
)

// --- モック定義 ---

// mockAccountService はAccountServiceInterfaceのモック実装。
type mockAccountService struct {
	registerFn  func(ctx context.Context, device string, in account.RegisterInput) (*model.Account, error)
	loginFn     func(ctx context.Context, device, email, password string) (*model.Account, error)
	demoLoginFn func(ctx context.Context, device string) (*model.Account, bool, error)
	logoutFn    func(ctx context.Context, device string) error
	currentFn   func(ctx context.Context, device string) (*model.Account, error)
}

func (m *mockAccountService) Register(ctx context.Context, device string, in account.RegisterInput) (*model.Account, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, device, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAccountService) Login(ctx context.Context, device, email, password string) (*model.Account, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, device, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAccountService) DemoLogin(ctx context.Context, device string) (*model.Account, bool, error) {
	if m.demoLoginFn != nil {
		return m.demoLoginFn(ctx, device)
	}
	return nil, false, errors.New("not implemented")
}

func (m *mockAccountService) Logout(ctx context.Context, device string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, device)
	}
	return nil
}

func (m *mockAccountService) Current(ctx context.Context, device string) (*model.Account, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx, device)
	}
	return nil, nil
}

var testAccount = &model.Account{
	ID:       "account-1",
	Name:     "Alice",
	Email:    "alice@example.com",
	Password: "secret-pass",
}

// --- POST /api/accounts ---

func TestAccountHandler_Register_Success(t *testing.T) {
	var gotInput account.RegisterInput
	svc := &mockAccountService{
		registerFn: func(ctx context.Context, device string, in account.RegisterInput) (*model.Account, error) {
			if device != "device-1" {
				t.Errorf("device = %q, want %q", device, "device-1")
			}
			gotInput = in
			return testAccount, nil
		},
	}
	h := NewAccountHandler(svc)

	body := `{"name":"Alice","email":"alice@example.com","password":"secret-pass","confirmPassword":"secret-pass"}`
	req := withDevice(httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(body)), "device-1")
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotInput.ConfirmPassword != "secret-pass" || gotInput.Email != "alice@example.com" {
		t.Errorf("input = %+v", gotInput)
	}
	if strings.Contains(w.Body.String(), "secret-pass") {
		t.Error("response must not include the password")
	}

	var resp sessionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Account.ID != "account-1" {
		t.Errorf("account.id = %q, want %q", resp.Account.ID, "account-1")
	}
	if resp.Message == "" {
		t.Error("expected notification message")
	}
}

func TestAccountHandler_Register_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	h := NewAccountHandler(&mockAccountService{})

	req := withDevice(httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader("{")), "device-1")
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidRequest)
	}
}

func TestAccountHandler_Register_DuplicateEmail_ReturnsConflict(t *testing.T) {
	svc := &mockAccountService{
		registerFn: func(ctx context.Context, device string, in account.RegisterInput) (*model.Account, error) {
			return nil, model.NewEmailRegisteredError()
		},
	}
	h := NewAccountHandler(svc)

	req := withDevice(httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{}`)), "device-1")
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestAccountHandler_NoDevice_ReturnsUnauthorized(t *testing.T) {
	h := NewAccountHandler(&mockAccountService{})

	endpoints := map[string]http.HandlerFunc{
		"register": h.Register,
		"login":    h.Login,
		"demo":     h.DemoLogin,
		"logout":   h.Logout,
		"me":       h.Me,
	}
	for name, fn := range endpoints {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`{}`))
			w := httptest.NewRecorder()
			fn(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

// --- POST /api/session ---

func TestAccountHandler_Login_Success(t *testing.T) {
	svc := &mockAccountService{
		loginFn: func(ctx context.Context, device, email, password string) (*model.Account, error) {
			if email != "alice@example.com" || password != "secret-pass" {
				t.Errorf("credentials = %q/%q", email, password)
			}
			return testAccount, nil
		},
	}
	h := NewAccountHandler(svc)

	body := `{"email":"alice@example.com","password":"secret-pass"}`
	req := withDevice(httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(body)), "device-1")
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAccountHandler_Login_InvalidCredentials_ReturnsUnauthorized(t *testing.T) {
	svc := &mockAccountService{
		loginFn: func(ctx context.Context, device, email, password string) (*model.Account, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAccountHandler(svc)

	req := withDevice(httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`{"email":"a","password":"b"}`)), "device-1")
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidCredentials)
	}
}

// --- POST /api/session/demo ---

func TestAccountHandler_DemoLogin_Messages(t *testing.T) {
	tests := []struct {
		name        string
		created     bool
		wantMessage string
	}{
		{"created", true, "Demo account created"},
		{"existing", false, "Logged in with demo account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAccountService{
				demoLoginFn: func(ctx context.Context, device string) (*model.Account, bool, error) {
					return &model.Account{ID: account.DemoAccountID, Email: account.DemoEmail}, tt.created, nil
				},
			}
			h := NewAccountHandler(svc)

			req := withDevice(httptest.NewRequest(http.MethodPost, "/api/session/demo", nil), "device-1")
			w := httptest.NewRecorder()
			h.DemoLogin(w, req)

			var resp sessionResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if resp.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", resp.Message, tt.wantMessage)
			}
		})
	}
}

func TestAccountHandler_DemoLogin_Disabled_ReturnsForbidden(t *testing.T) {
	svc := &mockAccountService{
		demoLoginFn: func(ctx context.Context, device string) (*model.Account, bool, error) {
			return nil, false, model.NewDemoDisabledError()
		},
	}
	h := NewAccountHandler(svc)

	req := withDevice(httptest.NewRequest(http.MethodPost, "/api/session/demo", nil), "device-1")
	w := httptest.NewRecorder()
	h.DemoLogin(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// --- DELETE /api/session, GET /api/session ---

func TestAccountHandler_Logout_Success(t *testing.T) {
	called := false
	svc := &mockAccountService{
		logoutFn: func(ctx context.Context, device string) error {
			called = true
			return nil
		},
	}
	h := NewAccountHandler(svc)

	req := withDevice(httptest.NewRequest(http.MethodDelete, "/api/session", nil), "device-1")
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !called {
		t.Error("expected Logout to be called")
	}
}

func TestAccountHandler_Me(t *testing.T) {
	t.Run("logged in", func(t *testing.T) {
		h := NewAccountHandler(&mockAccountService{
			currentFn: func(ctx context.Context, device string) (*model.Account, error) {
				return testAccount, nil
			},
		})

		req := withDevice(httptest.NewRequest(http.MethodGet, "/api/session", nil), "device-1")
		w := httptest.NewRecorder()
		h.Me(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if strings.Contains(w.Body.String(), "password") {
			t.Error("response must not include the password field")
		}
	})

	t.Run("not logged in", func(t *testing.T) {
		h := NewAccountHandler(&mockAccountService{})

		req := withDevice(httptest.NewRequest(http.MethodGet, "/api/session", nil), "device-1")
		w := httptest.NewRecorder()
		h.Me(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("store error", func(t *testing.T) {
		h := NewAccountHandler(&mockAccountService{
			currentFn: func(ctx context.Context, device string) (*model.Account, error) {
				return nil, errors.New("corrupt")
			},
		})

		req := withDevice(httptest.NewRequest(http.MethodGet, "/api/session", nil), "device-1")
		w := httptest.NewRecorder()
		h.Me(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}
