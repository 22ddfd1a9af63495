package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/codepad/internal/middleware"
	"github.com/hitoshi/codepad/internal/model"
)

// --- テストヘルパー ---

// withDevice はテスト用にリクエストコンテキストにデバイスIDを注入するヘルパー。
func withDevice(r *http.Request, deviceID string) *http.Request {
	return r.WithContext(middleware.ContextWithDeviceID(r.Context(), deviceID))
}

// withAccount はテスト用にデバイスIDと現在のアカウントを注入するヘルパー。
func withAccount(r *http.Request, deviceID, accountID string) *http.Request {
	ctx := middleware.ContextWithDeviceID(r.Context(), deviceID)
	ctx = middleware.ContextWithAccount(ctx, &model.Account{ID: accountID, Name: "Test", Email: accountID + "@example.com"})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- handleServiceError のテスト ---

func TestHandleServiceError_MapsAPIErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", model.NewValidationError("x"), http.StatusBadRequest},
		{"password mismatch", model.NewPasswordMismatchError(), http.StatusBadRequest},
		{"invalid avatar", model.NewInvalidAvatarError("x"), http.StatusBadRequest},
		{"invalid source field", model.NewInvalidSourceFieldError("py"), http.StatusBadRequest},
		{"invalid credentials", model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{"unauthorized", model.NewUnauthorizedError(), http.StatusUnauthorized},
		{"demo disabled", model.NewDemoDisabledError(), http.StatusForbidden},
		{"project not found", model.NewProjectNotFoundError("p1"), http.StatusNotFound},
		{"session not found", model.NewSessionNotFoundError("s1"), http.StatusNotFound},
		{"email registered", model.NewEmailRegisteredError(), http.StatusConflict},
		{"wrapped api error", fmt.Errorf("context: %w", model.NewProjectNotFoundError("p1")), http.StatusNotFound},
		{"plain error", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handleServiceError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := parseAPIErrorResponse(t, w)
			if body.Code == "" || body.Action == "" {
				t.Errorf("error body should carry code and action, got %+v", body)
			}
		})
	}
}

func TestHandleServiceError_PlainError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, errors.New("sqlite: database is locked"))

	body := parseAPIErrorResponse(t, w)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if body.Message == "sqlite: database is locked" {
		t.Error("internal error details must not be exposed")
	}
}
