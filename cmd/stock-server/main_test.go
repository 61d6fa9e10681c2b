package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/api"
	"github.com/MorseWayne/stock_guard/internal/breaker"
)

func TestHealthz_OK(t *testing.T) {
	// Build a minimal mux identical to main's handler for /healthz
	registry := breaker.NewRegistry(zap.NewNop())
	registry.Register("database", breaker.DefaultConfig())
	health := api.NewHealthHandler(registry, "test", zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.Healthz)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
}

func TestHealthz_DegradedWhenBreakerOpen(t *testing.T) {
	registry := breaker.NewRegistry(zap.NewNop())
	db := registry.Register("database", breaker.DefaultConfig())
	db.ForceState(breaker.StateOpen)
	health := api.NewHealthHandler(registry, "test", zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	health.Healthz(rw, req)

	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with an open breaker, got %d", rw.Code)
	}
}

func TestRequireMethod(t *testing.T) {
	handler := requireMethod(http.MethodPost, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rw := httptest.NewRecorder()
	handler(rw, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	handler(rw, httptest.NewRequest(http.MethodPost, "/x", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 for POST, got %d", rw.Code)
	}
}
