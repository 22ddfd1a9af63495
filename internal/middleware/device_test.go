package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestDeviceMiddleware_NoCookie_IssuesNewDevice(t *testing.T) {
	var gotDevice string
	handler := NewDeviceMiddleware(DeviceConfig{CookieSecure: true, CookieDomain: "example.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotDevice, _ = DeviceIDFromContext(r.Context())
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if _, err := uuid.Parse(gotDevice); err != nil {
		t.Fatalf("device ID %q should be a UUID: %v", gotDevice, err)
	}

	cookie := findCookie(w.Result(), deviceCookieName)
	if cookie == nil {
		t.Fatal("expected device cookie to be set")
	}
	if cookie.Value != gotDevice {
		t.Errorf("cookie value = %q, context device = %q; should match", cookie.Value, gotDevice)
	}
	if !cookie.HttpOnly {
		t.Error("device cookie should be HttpOnly")
	}
	if !cookie.Secure {
		t.Error("device cookie should be Secure when configured")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want %v", cookie.SameSite, http.SameSiteLaxMode)
	}
	if cookie.MaxAge != deviceCookieMaxAge {
		t.Errorf("MaxAge = %d, want %d", cookie.MaxAge, deviceCookieMaxAge)
	}
}

func TestDeviceMiddleware_ValidCookie_ReusesDevice(t *testing.T) {
	existing := uuid.New().String()

	var gotDevice string
	handler := NewDeviceMiddleware(DeviceConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDevice, _ = DeviceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: deviceCookieName, Value: existing})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if gotDevice != existing {
		t.Errorf("device = %q, want %q", gotDevice, existing)
	}
	if findCookie(w.Result(), deviceCookieName) != nil {
		t.Error("device cookie should not be re-issued")
	}
}

func TestDeviceMiddleware_MalformedCookie_IssuesNewDevice(t *testing.T) {
	var gotDevice string
	handler := NewDeviceMiddleware(DeviceConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDevice, _ = DeviceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: deviceCookieName, Value: "../../etc/passwd"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if gotDevice == "../../etc/passwd" {
		t.Fatal("malformed device cookie must not be used as namespace")
	}
	if findCookie(w.Result(), deviceCookieName) == nil {
		t.Error("expected a replacement device cookie")
	}
}

func TestDeviceIDFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := DeviceIDFromContext(req.Context()); err == nil {
		t.Error("expected error when device ID is missing")
	}
}
