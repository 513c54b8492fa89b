package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, roles []string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func invoke(t *testing.T, mw echo.MiddlewareFunc, authHeader string, c echo.Context) error {
	t.Helper()
	if authHeader != "" {
		c.Request().Header.Set("Authorization", authHeader)
	}
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return handler(c)
}

func newCtx() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	c, _ := newCtx()
	token := signToken(t, []string{"admin"})
	if err := invoke(t, JWTMiddleware(testSecret), "Bearer "+token, c); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if uid := UserID(c); uid != "user-42" {
		t.Errorf("user_id = %q, want user-42", uid)
	}
}

func TestJWTMiddlewareRejectsMissingToken(t *testing.T) {
	c, _ := newCtx()
	err := invoke(t, JWTMiddleware(testSecret), "", c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestJWTMiddlewareRejectsWrongSecret(t *testing.T) {
	c, _ := newCtx()
	token := signToken(t, nil)
	err := invoke(t, JWTMiddleware([]byte("other-secret")), "Bearer "+token, c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	c, _ := newCtx()
	c.Set("user_roles", []string{"midwife"})

	handler := RequireRole("admin", "midwife")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("allowed role rejected: %v", err)
	}

	c2, _ := newCtx()
	c2.Set("user_roles", []string{"frontdesk"})
	handler = RequireRole("admin")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	err := handler(c2)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestDevAuthGrantsAdmin(t *testing.T) {
	c, _ := newCtx()
	handler := DevAuthMiddleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("dev auth: %v", err)
	}
	roles, _ := c.Get("user_roles").([]string)
	if len(roles) != 1 || roles[0] != "admin" {
		t.Errorf("roles = %v, want [admin]", roles)
	}
}
