package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func findCSRFCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "csrf_token" {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethod_SetsCookie(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	cookie := findCSRFCookie(t, w)
	if cookie == nil {
		t.Fatal("expected csrf_token cookie to be set")
	}
	if len(cookie.Value) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(cookie.Value))
	}
	if cookie.HttpOnly {
		t.Error("csrf_token cookie must be readable from JavaScript")
	}
}

func TestCSRFMiddleware_SafeMethod_KeepsExistingCookie(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "existing-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if findCSRFCookie(t, w) != nil {
		t.Error("cookie must not be reissued when already present")
	}
}

func TestCSRFMiddleware_Mutation_MissingToken_Returns403(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/todos", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}

	var envelope ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if envelope.Error.Code != "CSRF_VALIDATION_FAILED" {
		t.Errorf("error code = %q, want CSRF_VALIDATION_FAILED", envelope.Error.Code)
	}
}

func TestCSRFMiddleware_Mutation_TokenMismatch_Returns403(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be called")
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/todos/t1", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-a"})
	req.Header.Set("X-CSRF-Token", "token-b")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestCSRFMiddleware_Mutation_MatchingToken_Passes(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/todos", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-a"})
	req.Header.Set("X-CSRF-Token", "token-a")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCSRFTokenHandler_IssuesToken(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["token"] == "" {
		t.Error("expected non-empty token in response body")
	}
	cookie := findCSRFCookie(t, w)
	if cookie == nil {
		t.Fatal("expected csrf_token cookie to be set")
	}
	if cookie.Value != body["token"] {
		t.Error("cookie token and body token must match")
	}
}

func TestCSRFTokenHandler_ReturnsExistingToken(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "existing-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["token"] != "existing-token" {
		t.Errorf("token = %q, want existing-token", body["token"])
	}
}
