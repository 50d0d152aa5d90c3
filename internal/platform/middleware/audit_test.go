package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newAuditContext(method, path string, p *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAudit_RecordsWrite(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newAuditContext(http.MethodPost, "/api/v1/pharmacy",
		&auth.Principal{UserID: 3, Roles: []string{auth.RolePharmacist}})
	c.Set("request_id", "req-123")

	err := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return c.JSON(http.StatusCreated, map[string]string{"ok": "1"})
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}

	got := rec.entries[0]
	if got.UserID != 3 || got.Resource != "pharmacy" || got.Action != "create" {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.StatusCode != http.StatusCreated || got.RequestID != "req-123" {
		t.Errorf("unexpected status/request id %+v", got)
	}
	if len(got.UserRoles) != 1 || got.UserRoles[0] != auth.RolePharmacist {
		t.Errorf("unexpected roles %v", got.UserRoles)
	}
}

func TestAudit_SkipsReads(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newAuditContext(http.MethodGet, "/api/v1/medicines", nil)

	Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if rec.count() != 0 {
		t.Errorf("expected reads to be skipped, got %d entries", rec.count())
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newAuditContext(http.MethodPost, "/health", nil)

	Audit(zerolog.Nop(), rec)(func(c echo.Context) error { return nil })(c)
	if rec.count() != 0 {
		t.Errorf("expected /health to be skipped")
	}
}

func TestAudit_CapturesErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newAuditContext(http.MethodPost, "/api/v1/pharmacy", &auth.Principal{UserID: 1})

	handlerErr := echo.NewHTTPError(http.StatusConflict, "Prescription has already been dispensed")
	err := Audit(zerolog.Nop(), rec)(func(c echo.Context) error { return handlerErr })(c)
	if err != handlerErr {
		t.Fatalf("expected handler error to pass through, got %v", err)
	}
	if rec.entries[0].StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.entries[0].StatusCode)
	}
}

func TestAudit_RecorderErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{err: errors.New("disk full")}
	c, _ := newAuditContext(http.MethodDelete, "/api/v1/medicines/4", &auth.Principal{UserID: 1})

	err := Audit(zerolog.New(&buf), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("recorder failure must not fail the request: %v", err)
	}
	if !strings.Contains(buf.String(), "failed to record audit entry") {
		t.Errorf("expected recorder error in log: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"action":"delete"`) {
		t.Errorf("expected delete action in log: %s", buf.String())
	}
}

func TestResourceOf(t *testing.T) {
	tests := map[string]string{
		"/api/v1/prescriptions/7/cancel": "prescriptions",
		"/api/v1/pharmacy":               "pharmacy",
		"/api/v1/":                       "unknown",
	}
	for in, want := range tests {
		if got := resourceOf(in); got != want {
			t.Errorf("resourceOf(%q) = %q, want %q", in, got, want)
		}
	}
}
