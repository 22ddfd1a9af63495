// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/codepad/internal/middleware"
	"github.com/hitoshi/codepad/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
// アバターのdata URI（2MiB）をbase64化した値が収まる大きさにする。
const maxRequestBodyBytes = 4 << 20

// messageResponse は通知用メッセージのみを返すレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをJSONとして読み込む。
// 失敗した場合は400レスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// requestDevice はコンテキストのデバイスIDを返す。
// 取得できない場合は401レスポンスを書き込みfalseを返す。
func requestDevice(w http.ResponseWriter, r *http.Request) (string, bool) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return deviceID, true
}

// requestAccount はコンテキストのデバイスIDと現在のアカウントを返す。
// 取得できない場合は401レスポンスを書き込みfalseを返す。
func requestAccount(w http.ResponseWriter, r *http.Request) (string, *model.Account, bool) {
	deviceID, ok := requestDevice(w, r)
	if !ok {
		return "", nil, false
	}
	account, err := middleware.AccountFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", nil, false
	}
	return deviceID, account, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeValidation, model.ErrCodePasswordMismatch,
		model.ErrCodeInvalidAvatar, model.ErrCodeInvalidSourceField:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeDemoDisabled, model.ErrCodeCSRF:
		return http.StatusForbidden
	case model.ErrCodeProjectNotFound, model.ErrCodeSessionNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailRegistered:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
