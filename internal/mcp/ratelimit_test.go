package mcp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	limiter := NewRateLimiter(1, 5)

	for i := 0; i < 5; i++ {
		if !limiter.Allow("client-a") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if limiter.Allow("client-a") {
		t.Error("request beyond burst allowed")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(1, 1)

	if !limiter.Allow("client-a") {
		t.Fatal("first request for client-a denied")
	}
	if limiter.Allow("client-a") {
		t.Error("second request for client-a allowed")
	}
	if !limiter.Allow("client-b") {
		t.Error("client-b throttled by client-a's usage")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "10.0.0.1:52100"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", rec.Header().Get("Retry-After"))
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("429 body is not JSON: %v", err)
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("429 body missing error object: %v", body)
	}
	if errObj["code"] != float64(-32029) {
		t.Errorf("error code = %v, want -32029", errObj["code"])
	}

	// A different client host is not throttled
	other := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	other.RemoteAddr = "10.0.0.2:52100"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}
}
