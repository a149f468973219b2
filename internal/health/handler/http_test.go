package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

func probe(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestLiveAlwaysOK(t *testing.T) {
	h := NewHandler(&mockPinger{pingErr: errors.New("down")}, nil)
	rec := probe(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (liveness ignores dependencies)", rec.Code)
	}
}

func TestReadyAllHealthy(t *testing.T) {
	h := NewHandler(&mockPinger{}, &mockPinger{})
	rec := probe(t, h, "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyDatabaseDown(t *testing.T) {
	h := NewHandler(&mockPinger{pingErr: errors.New("connection refused")}, &mockPinger{})
	rec := probe(t, h, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReadyNilPingersSkipped(t *testing.T) {
	h := NewHandler(nil, nil)
	rec := probe(t, h, "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
