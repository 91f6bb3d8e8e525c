package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func contextWithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, UserRolesKey, roles)
}

func signToken(t *testing.T, key []byte, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestJWTMiddleware_RejectsMissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	mw := JWTMiddleware(JWTConfig{SigningKey: []byte("secret")})
	handler := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	err := handler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_AcceptsValidToken(t *testing.T) {
	key := []byte("secret")
	tokenStr := signToken(t, key, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "eval-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{"psychologist"},
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	mw := JWTMiddleware(JWTConfig{SigningKey: key})
	var gotID string
	var gotRoles []string
	handler := mw(func(c echo.Context) error {
		gotID = UserIDFromContext(c.Request().Context())
		gotRoles = RolesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "eval-1" {
		t.Errorf("expected user id eval-1, got %q", gotID)
	}
	if len(gotRoles) != 1 || gotRoles[0] != "psychologist" {
		t.Errorf("unexpected roles: %v", gotRoles)
	}
}

func TestJWTMiddleware_RejectsExpiredToken(t *testing.T) {
	key := []byte("secret")
	tokenStr := signToken(t, key, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "eval-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	mw := JWTMiddleware(JWTConfig{SigningKey: key})
	handler := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	err := handler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for expired token, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()

	run := func(roles []string, required ...string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		dev := func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				ctx := c.Request().Context()
				ctx = contextWithRoles(ctx, roles)
				c.SetRequest(c.Request().WithContext(ctx))
				return next(c)
			}
		}
		handler := dev(RequireRole(required...)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		}))
		return handler(c)
	}

	if err := run([]string{"psychiatrist"}, "psychiatrist", "psychologist"); err != nil {
		t.Errorf("psychiatrist should pass: %v", err)
	}
	if err := run([]string{"admin"}, "psychiatrist"); err != nil {
		t.Errorf("admin should always pass: %v", err)
	}
	err := run([]string{"reception"}, "psychiatrist")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403 for missing role, got %v", err)
	}
}
