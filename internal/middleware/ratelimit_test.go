package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    3,
		MutationRate:    rate.Limit(1),
		MutationBurst:   2,
		CleanupInterval: time.Hour,
	}
}

func doRequest(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		if w := doRequest(handler, "user-1"); w.Code != http.StatusOK {
			t.Fatalf("request #%d status = %d, want 200", i+1, w.Code)
		}
	}
}

func TestGeneralMiddleware_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		doRequest(handler, "user-1")
	}
	w := doRequest(handler, "user-1")

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

// ユーザーごとに独立したリミッターであること
func TestGeneralMiddleware_PerUserIsolation(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		doRequest(handler, "user-1")
	}
	if w := doRequest(handler, "user-1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("user-1 status = %d, want 429", w.Code)
	}

	if w := doRequest(handler, "user-2"); w.Code != http.StatusOK {
		t.Errorf("user-2 status = %d, want 200 (independent limiter)", w.Code)
	}
}

func TestMutationMiddleware_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	mutation := rl.MutationMiddleware()(okHandler())

	// 変更操作のバースト(2)を使い切る
	for i := 0; i < 2; i++ {
		if w := doRequest(mutation, "user-1"); w.Code != http.StatusOK {
			t.Fatalf("mutation #%d status = %d, want 200", i+1, w.Code)
		}
	}
	if w := doRequest(mutation, "user-1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("mutation over burst status = %d, want 429", w.Code)
	}

	// API全般のリミッターは影響を受けない
	if w := doRequest(general, "user-1"); w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
}

func TestRateLimiter_MissingUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	if w := doRequest(handler, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestCleanup_RemovesStaleEntries(t *testing.T) {
	config := testRateLimiterConfig()
	config.CleanupInterval = 10 * time.Millisecond
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	doRequest(handler, "user-1")

	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("limiter count = %d, want 1", rl.GeneralLimiterCount())
	}

	// TTL（CleanupInterval * 2）経過後にクリーンアップされること
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rl.GeneralLimiterCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("stale limiter entry was not cleaned up")
}
