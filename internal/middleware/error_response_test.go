package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/todoman/internal/model"
)

func TestWriteErrorResponse_EnvelopeShape(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusForbidden, model.NewAuthorizationDeniedError())

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var envelope ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Success {
		t.Error("success must be false in error envelope")
	}
	if envelope.Error.Code != model.ErrCodeAuthorizationDenied {
		t.Errorf("code = %q, want %q", envelope.Error.Code, model.ErrCodeAuthorizationDenied)
	}
	if envelope.Error.Message == "" || envelope.Error.Action == "" {
		t.Error("message and action must be populated")
	}
}

func TestWriteInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}

	var envelope ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", envelope.Error.Code)
	}
}

func TestStatusForAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  *model.APIError
		want int
	}{
		{"バリデーションエラーは400", model.NewValidationError("invalid"), http.StatusBadRequest},
		{"認可エラーは403", model.NewAuthorizationDeniedError(), http.StatusForbidden},
		{"認証エラーは401", model.NewAuthenticationRequiredError(), http.StatusUnauthorized},
		{"未検出エラーは404", model.NewTodoNotFoundError("t1"), http.StatusNotFound},
		{"通信エラーは500", model.NewRemoteError(nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusForAPIError(tt.err); got != tt.want {
				t.Errorf("StatusForAPIError(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}
