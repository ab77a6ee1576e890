package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func csrfTestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCSRFMiddleware_GETはトークンなしで通過する(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})
	handler := mw(csrfTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// GETレスポンスでCSRFトークンCookieが設定される
	cookies := resp.Cookies()
	found := false
	for _, c := range cookies {
		if c.Name == "csrf_token" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("csrf_token Cookieが設定されていない")
	}
}

func TestCSRFMiddleware_POSTはトークン必須(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})
	handler := mw(csrfTestHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/sources", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestCSRFMiddleware_一致するトークンで通過する(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})
	handler := mw(csrfTestHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/sources", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-abc"})
	req.Header.Set("X-CSRF-Token", "token-abc")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestCSRFMiddleware_トークン不一致は403を返す(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})
	handler := mw(csrfTestHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/sources", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-abc"})
	req.Header.Set("X-CSRF-Token", "token-xyz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestCSRFTokenHandler_新規トークンを発行する(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["token"] == "" {
		t.Error("トークンが返されていない")
	}

	// Cookieにも同じトークンが設定される
	for _, c := range resp.Cookies() {
		if c.Name == "csrf_token" && c.Value != body["token"] {
			t.Error("Cookieとレスポンスのトークンが一致しない")
		}
	}
}

func TestCSRFTokenHandler_既存トークンを再利用する(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "existing-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var body map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["token"] != "existing-token" {
		t.Errorf("token = %q, want %q", body["token"], "existing-token")
	}
}
