package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func runProtected(t *testing.T, secret []byte, header string, mw ...echo.MiddlewareFunc) (int, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	if err := h(c); err != nil {
		he, ok := err.(*echo.HTTPError)
		if !ok {
			t.Fatalf("unexpected error %v", err)
		}
		return he.Code, c
	}
	return rec.Code, c
}

func TestEchoAuthMiddleware(t *testing.T) {
	secret := []byte("s3cret")
	token, err := SignJWT("ops", secret, time.Minute, ScopeRefresh)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	code, c := runProtected(t, secret, "Bearer "+token, EchoAuthMiddleware(secret), RequireScopes(secret, ScopeRefresh))
	if code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", code)
	}
	if sub, ok := SubjectFromContext(c.Request().Context()); !ok || sub != "ops" {
		t.Fatalf("subject not propagated: %q %v", sub, ok)
	}

	if code, _ := runProtected(t, secret, "", EchoAuthMiddleware(secret)); code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401 got %d", code)
	}

	expired, _ := SignJWT("ops", secret, -time.Minute)
	if code, _ := runProtected(t, secret, "Bearer "+expired, EchoAuthMiddleware(secret)); code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401 got %d", code)
	}

	other, _ := SignJWT("ops", []byte("other"), time.Minute)
	if code, _ := runProtected(t, secret, "Bearer "+other, EchoAuthMiddleware(secret)); code != http.StatusUnauthorized {
		t.Fatalf("foreign token: expected 401 got %d", code)
	}
}

func TestRequireScopesRejectsMissingScope(t *testing.T) {
	secret := []byte("s3cret")
	token, _ := SignJWT("tenant", secret, time.Minute)
	code, _ := runProtected(t, secret, "Bearer "+token, EchoAuthMiddleware(secret), RequireScopes(secret, ScopeRefresh))
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", code)
	}
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	code, _ := runProtected(t, nil, "", EchoAuthMiddleware(nil), RequireScopes(nil, ScopeRefresh))
	if code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", code)
	}
}

func TestExtractScopesAcceptsSpaceSeparatedClaim(t *testing.T) {
	got := extractScopes(jwt.MapClaims{"scope": "refresh inbox"})
	if len(got) != 2 || got[0] != "refresh" || got[1] != "inbox" {
		t.Fatalf("unexpected scopes %v", got)
	}
}
