package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestRouter() (*echo.Echo, *Dispatcher) {
	e := echo.New()
	d := NewDispatcher(NewMemEndpointStore())
	NewHandler(d).RegisterRoutes(e.Group("/webhooks"))
	return e, d
}

func TestHandlerRegisterEndpoint(t *testing.T) {
	e, _ := newTestRouter()

	body := `{"url":"https://example.com/hook","events":["record.*"]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var ep Endpoint
	if err := json.Unmarshal(rec.Body.Bytes(), &ep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ep.ID == "" || ep.Secret == "" {
		t.Errorf("expected id and secret in response, got %+v", ep)
	}
}

func TestHandlerRegisterEndpoint_BadURL(t *testing.T) {
	e, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(`{"url":"ftp://x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerPauseResume(t *testing.T) {
	e, d := newTestRouter()
	ep, err := d.RegisterEndpoint(context.Background(), "https://example.com/hook", "shh", []string{"*"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+ep.ID+"/pause", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", rec.Code)
	}
	got, _ := d.store.GetEndpoint(context.Background(), ep.ID)
	if got.Status != "paused" {
		t.Errorf("expected paused, got %s", got.Status)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/"+ep.ID+"/resume", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d", rec.Code)
	}
	got, _ = d.store.GetEndpoint(context.Background(), ep.ID)
	if got.Status != "active" {
		t.Errorf("expected active, got %s", got.Status)
	}
}

func TestHandlerDeleteEndpoint(t *testing.T) {
	e, d := newTestRouter()
	ep, err := d.RegisterEndpoint(context.Background(), "https://example.com/hook", "shh", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/webhooks/"+ep.ID, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/webhooks/"+ep.ID, nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}
