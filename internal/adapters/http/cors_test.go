package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/karenmasterson/dns-gpt-backend/internal/config"
)

func TestCORSWildcardAllowsAnyOrigin(t *testing.T) {
	handler := newTestHandler(config.Config{CORSAllowedOrigins: "*"}, &embedderFake{}, &storeFake{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard allow-origin, got %q", got)
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	embedder := &embedderFake{}
	handler := newTestHandler(config.Config{CORSAllowedOrigins: "*"}, embedder, &storeFake{})

	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", res.Code)
	}
	if res.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("expected allowed methods header")
	}
	if embedder.calls != 0 {
		t.Fatalf("preflight must not reach the pipeline")
	}
}

func TestCORSListRejectsUnknownOrigin(t *testing.T) {
	handler := newTestHandler(config.Config{CORSAllowedOrigins: "https://ops.example.com"}, &embedderFake{}, &storeFake{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unknown origin must not be allowed, got %q", got)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.Header.Set("Origin", "https://ops.example.com")
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)

	if got := res2.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Fatalf("listed origin should be echoed, got %q", got)
	}
}
