package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempora/schedgate/internal/utils"
)

const secret = "test-secret"

func invoke(t *testing.T, mw echo.MiddlewareFunc, authorization string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec, c
}

func TestBearerAuthAcceptsSignedToken(t *testing.T) {
	tok, err := utils.NewBearerToken(secret, "engine", "scheduler", 15)
	require.NoError(t, err)

	rec, c := invoke(t, BearerAuth(secret), "Bearer "+tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "engine", c.Get("client_id"))
	assert.Equal(t, "scheduler", c.Get("role"))
}

func TestBearerAuthRejectsMissingHeader(t *testing.T) {
	rec, _ := invoke(t, BearerAuth(secret), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")
}

func TestBearerAuthRejectsWrongSecret(t *testing.T) {
	tok, err := utils.NewBearerToken("other-secret", "engine", "scheduler", 15)
	require.NoError(t, err)

	rec, _ := invoke(t, BearerAuth(secret), "Bearer "+tok.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")
}

func TestBearerAuthRejectsExpiredToken(t *testing.T) {
	tok, err := utils.NewBearerToken(secret, "engine", "scheduler", -5)
	require.NoError(t, err)

	rec, _ := invoke(t, BearerAuth(secret), "Bearer "+tok.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	run := func(role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set("role", role)
		handler := RequireRole("scheduler")(func(c echo.Context) error {
			return c.NoContent(http.StatusCreated)
		})
		require.NoError(t, handler(c))
		return rec
	}

	assert.Equal(t, http.StatusCreated, run("scheduler").Code)
	assert.Equal(t, http.StatusForbidden, run("viewer").Code)
	assert.Equal(t, http.StatusForbidden, run("").Code)
}
