package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestReadiness_AllHealthy(t *testing.T) {
	e := echo.New()
	h := NewHealthDependenciesHandler(map[string]Check{
		"directory": func(context.Context) error { return nil },
		"redis":     func(context.Context) error { return nil },
	})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/ready", nil), rec)

	if err := h.Readiness(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadiness_Degraded(t *testing.T) {
	e := echo.New()
	h := NewHealthDependenciesHandler(map[string]Check{
		"directory": func(context.Context) error { return nil },
		"redis":     func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/ready", nil), rec)

	if err := h.Readiness(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decode(t, rec)
	deps, _ := resp["dependencies"].(map[string]any)
	redis, _ := deps["redis"].(map[string]any)
	if resp["status"] != "degraded" || redis["status"] != "unhealthy" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}
