package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runRequireRole(t *testing.T, roles []string, required ...string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), "u1", roles))
	c := e.NewContext(req, httptest.NewRecorder())
	return RequireRole(required...)(okHandler)(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	if err := runRequireRole(t, []string{RoleCoder}, RoleCoder); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_AnyOf(t *testing.T) {
	if err := runRequireRole(t, []string{RoleClinician}, RoleCoder, RoleClinician); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	err := runRequireRole(t, []string{RoleClinician}, RoleCoder)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_NoRoles(t *testing.T) {
	err := runRequireRole(t, nil, RoleCoder)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if err := runRequireRole(t, []string{RoleAdmin}, RoleCoder); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}
