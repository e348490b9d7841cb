package handlers

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/leadwire/internal/auth"
	"github.com/leadwire/leadwire/internal/server"
)

const testSecret = "handler-secret"

func newTestEcho(t *testing.T, h interface{ Register(*echo.Echo) }) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Validator = server.NewValidator()
	e.Use(auth.JWTMiddleware(testSecret, nil))
	h.Register(e)
	return e
}

func doRequest(t *testing.T, e *echo.Echo, claims auth.Claims, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	token, _, err := auth.GenerateToken(claims, testSecret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

var (
	staff  = auth.Claims{TenantID: "t1", Role: "ADMIN"}
	client = auth.Claims{TenantID: "t1", Role: auth.RoleClient, CustomerID: "c1"}
)

func mustStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}
