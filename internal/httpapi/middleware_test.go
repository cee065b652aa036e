package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"medidesk.org/internal/audit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = audit.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/info", nil))
	if got := rec.Header().Get("X-Request-Id"); got == "" || got != seen {
		t.Fatalf("header %q, context %q", got, seen)
	}

	// An inbound id is kept for cross-hop correlation.
	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	req.Header.Set("X-Request-Id", "upstream-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "upstream-1" {
		t.Fatalf("inbound id not kept: %q", seen)
	}
}

func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	h := RateLimit(okHandler(), 2, 1)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}

	// A different client has its own bucket.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/info", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("independent client status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/users", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("origin not allowed: %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	// Foreign origins get no allow header.
	req = httptest.NewRequest(http.MethodOptions, "/api/users", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin allowed")
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("missing CSP")
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.0.1:9999"
	if ip := clientIP(req); ip != "192.168.0.1" {
		t.Fatalf("ip = %q", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 192.168.0.1")
	if ip := clientIP(req); ip != "203.0.113.5" {
		t.Fatalf("forwarded ip = %q", ip)
	}
}
