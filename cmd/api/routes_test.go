package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"call-insights/internal/auth"
	"call-insights/internal/calls"
	"call-insights/internal/config"
	"call-insights/internal/httpapi"
)

type noopProcessor struct{}

func (noopProcessor) Submit(string, string) {}

func newTestRouter(t *testing.T) (*gin.Engine, *auth.Manager, *calls.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}}
	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		t.Fatal(err)
	}
	svc := calls.NewService(calls.NewMemoryRepo(), noopProcessor{})

	r := gin.New()
	registerRoutes(r, routeDeps{
		cfg:      cfg,
		authMW:   auth.RequireAccessToken(m),
		handlers: httpapi.Handlers{Auth: m, Calls: svc},
	})
	return r, m, svc
}

func bearer(t *testing.T, m *auth.Manager, role string) string {
	t.Helper()
	pair, err := m.IssuePair(time.Now(), "u1", role)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + pair.AccessToken
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutes_HealthIsPublic(t *testing.T) {
	r, _, _ := newTestRouter(t)
	for _, p := range []string{"/healthz", "/health", "/metrics"} {
		if w := serve(r, httptest.NewRequest(http.MethodGet, p, nil)); w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", p, w.Code)
		}
	}
}

func TestRoutes_ProtectedRequireToken(t *testing.T) {
	r, m, _ := newTestRouter(t)

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/api/calls", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	req.Header.Set("Authorization", bearer(t, m, "viewer"))
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func TestRoutes_DeleteRequiresOperator(t *testing.T) {
	r, m, svc := newTestRouter(t)
	c, err := svc.CreateCall(context.Background(), calls.CreateCallInput{CallSID: "CA1", From: "+1", To: "+2"})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/calls/"+c.ID, nil)
	req.Header.Set("Authorization", bearer(t, m, "viewer"))
	if w := serve(r, req); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/calls/"+c.ID, nil)
	req.Header.Set("Authorization", bearer(t, m, "operator"))
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for operator, got %d", w.Code)
	}
}

func TestRoutes_InboundWebhookIsPublic(t *testing.T) {
	r, _, svc := newTestRouter(t)

	form := url.Values{"CallSid": {"CA9"}, "From": {"+15551112222"}, "To": {"+15553334444"}}
	req := httptest.NewRequest(http.MethodPost, "/api/calls/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := serve(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "<Record") {
		t.Fatalf("expected TwiML with Record verb, got %s", w.Body.String())
	}
	cs, _ := svc.ListCalls(context.Background())
	if len(cs) != 1 || cs[0].CallSID != "CA9" {
		t.Fatalf("expected the inbound call to be stored, got %+v", cs)
	}
}

func TestRoutes_RefreshIssuesUsableAccessToken(t *testing.T) {
	r, m, _ := newTestRouter(t)
	pair, err := m.IssuePair(time.Now(), "u1", "operator")
	if err != nil {
		t.Fatal(err)
	}

	body := `{"refreshToken":"` + pair.RefreshToken + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var next auth.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &next); err != nil || next.AccessToken == "" || next.RefreshToken == "" {
		t.Fatalf("expected token pair, got %s (%v)", w.Body.String(), err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	req.Header.Set("Authorization", "Bearer "+next.AccessToken)
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Fatalf("expected refreshed access token accepted, got %d", w.Code)
	}
}

func TestRoutes_RefreshRejectsAccessToken(t *testing.T) {
	r, m, _ := newTestRouter(t)
	pair, _ := m.IssuePair(time.Now(), "u1", "operator")

	body := `{"refreshToken":"` + pair.AccessToken + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if w := serve(r, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	if w := serve(r, req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", w.Code)
	}
}

func TestNewLogger_HonorsLogLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, config.AppConfig{Env: "production", LogLevel: "debug"})
	log.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected debug line with LOG_LEVEL=debug, got %q", buf.String())
	}

	buf.Reset()
	log = newLogger(&buf, config.AppConfig{Env: "production", LogLevel: "error"})
	log.Warn("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected warn suppressed with LOG_LEVEL=error, got %q", buf.String())
	}
}
