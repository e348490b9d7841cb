package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken_RoundTripThroughMiddleware(t *testing.T) {
	secret := "test-secret"
	tokenStr, expiresAt, err := GenerateToken(Claims{TenantID: "t1", Role: RoleClient, CustomerID: "c9"}, secret, 5*time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)

	e := echo.New()
	e.Use(JWTMiddleware(secret, nil))
	var got Claims
	e.GET("/me", func(c echo.Context) error {
		claims, err := ClaimsFromContext(c)
		if err != nil {
			return err
		}
		got = claims
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "c9", got.CustomerID)
	assert.True(t, got.IsClient())
}

func TestJWTMiddleware_RejectsWrongSecret(t *testing.T) {
	tokenStr, _, err := GenerateToken(Claims{TenantID: "t1"}, "other", time.Minute)
	require.NoError(t, err)

	e := echo.New()
	e.Use(JWTMiddleware("test-secret", nil))
	e.GET("/me", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/me?token="+tokenStr, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClaimsFromContext_MissingUser(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, err := ClaimsFromContext(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Equal(t, "invalid token", httpErr.Message)
}

func TestClaimsFromMap_SnakeCaseKeys(t *testing.T) {
	claims := ClaimsFromMap(jwt.MapClaims{"tenant_id": "t2", "role": "client", "customer_id": "c1"})
	assert.Equal(t, "t2", claims.TenantID)
	assert.Equal(t, "c1", claims.CustomerID)
	assert.True(t, claims.IsClient())
}

func TestGenerateToken_Validation(t *testing.T) {
	_, _, err := GenerateToken(Claims{}, "s", time.Minute)
	assert.Error(t, err)
	_, _, err = GenerateToken(Claims{TenantID: "t"}, "", time.Minute)
	assert.Error(t, err)
	_, _, err = GenerateToken(Claims{TenantID: "t"}, "s", 0)
	assert.Error(t, err)
}
