package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/config"
	"github.com/hospital/hms/internal/platform/auth"
)

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:            env,
		JWTSecret:      "test-secret",
		JWTIssuer:      "hms",
		TokenTTL:       time.Hour,
		CORSOrigins:    []string{"http://localhost:3000"},
		BodyLimit:      "1M",
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
}

func serve(t *testing.T, cfg *config.Config, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := newServer(cfg, zerolog.Nop(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	rec := serve(t, testConfig("production"), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestServer_RequiresToken(t *testing.T) {
	rec := serve(t, testConfig("production"), httptest.NewRequest(http.MethodGet, "/api/v1/medicines", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Errorf("expected error envelope, got %s", rec.Body.String())
	}
}

func TestServer_RoleGate(t *testing.T) {
	cfg := testConfig("production")
	token, _, err := auth.NewTokenIssuer(cfg.JWTIssuer, cfg.SigningKey(), time.Hour).
		Issue(auth.Principal{UserID: 5, Roles: []string{auth.RoleNurse}})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pharmacy", strings.NewReader(`{"prescription_id":1}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if rec := serve(t, cfg, req); rec.Code != http.StatusForbidden {
		t.Errorf("nurse dispensing: expected 403, got %d", rec.Code)
	}
}

func TestServer_GatewayCallbacksArePublic(t *testing.T) {
	// Without VNPay configured the IPN still answers, proving no token was demanded.
	rec := serve(t, testConfig("production"), httptest.NewRequest(http.MethodGet, "/api/v1/payments/vnpay/ipn", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"RspCode":"99"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	cfg := testConfig("development")
	rec := serve(t, cfg, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMigrationsFS(t *testing.T) {
	if migrationsFS("") == nil {
		t.Fatal("expected embedded migrations")
	}
	if migrationsFS(t.TempDir()) == nil {
		t.Fatal("expected directory filesystem")
	}
}

func TestRunServer_FailsWithoutDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if err := runServer(); err == nil {
		t.Fatal("expected startup error without DATABASE_URL")
	}
}
