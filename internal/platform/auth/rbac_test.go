package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runRequireRole(t *testing.T, p *Principal, roles ...string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequireRole(roles...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	return rec, err
}

func TestRequireRole_Allowed(t *testing.T) {
	rec, err := runRequireRole(t, &Principal{UserID: 1, Roles: []string{RolePharmacist}}, RolePharmacist, RoleDoctor)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	_, err := runRequireRole(t, &Principal{UserID: 1, Roles: []string{RoleAdmin}}, RolePharmacist)
	if err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	_, err := runRequireRole(t, &Principal{UserID: 1, Roles: []string{RolePatient}}, RolePharmacist)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	_, err := runRequireRole(t, nil, RolePharmacist)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestIsValidRole(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleDoctor, RoleNurse, RolePharmacist, RoleReceptionist, RolePatient} {
		if !IsValidRole(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	if IsValidRole("physician") {
		t.Error("physician is not a role in this system")
	}
}
