package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimTenantID        = "tenantId"
	claimTenantIDSnake   = "tenant_id"
	claimRole            = "role"
	claimCustomerID      = "customerId"
	claimCustomerIDSnake = "customer_id"
	claimSubject         = "sub"

	// RoleClient is the external customer-facing role.
	RoleClient = "CLIENT"
)

// Claims are the tenant claims carried by an issued token.
type Claims struct {
	Subject    string
	TenantID   string
	Role       string
	CustomerID string
}

// IsClient reports whether the claims belong to an external customer session.
func (c Claims) IsClient() bool {
	return strings.EqualFold(strings.TrimSpace(c.Role), RoleClient)
}

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// ClaimsFromContext extracts the tenant claims set by JWTMiddleware.
func ClaimsFromContext(c echo.Context) (Claims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return Claims{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	claims := ClaimsFromMap(mc)
	if claims.TenantID == "" {
		return Claims{}, echo.NewHTTPError(http.StatusUnauthorized, "tenant id missing")
	}
	return claims, nil
}

// ClaimsFromMap reads tenant claims, accepting camelCase and snake_case keys.
func ClaimsFromMap(mc jwt.MapClaims) Claims {
	claims := Claims{
		Subject:    strings.TrimSpace(claimString(mc, claimSubject)),
		TenantID:   strings.TrimSpace(claimString(mc, claimTenantID)),
		Role:       strings.TrimSpace(claimString(mc, claimRole)),
		CustomerID: strings.TrimSpace(claimString(mc, claimCustomerID)),
	}
	if claims.TenantID == "" {
		claims.TenantID = strings.TrimSpace(claimString(mc, claimTenantIDSnake))
	}
	if claims.CustomerID == "" {
		claims.CustomerID = strings.TrimSpace(claimString(mc, claimCustomerIDSnake))
	}
	return claims
}

// GenerateToken creates a signed JWT carrying the tenant claims.
func GenerateToken(claims Claims, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(claims.TenantID) == "" {
		return "", time.Time{}, fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	mc := jwt.MapClaims{
		claimTenantID: claims.TenantID,
		claimRole:     claims.Role,
		"iat":         now.Unix(),
		"exp":         expiresAt.Unix(),
	}
	if claims.Subject != "" {
		mc[claimSubject] = claims.Subject
	}
	if claims.CustomerID != "" {
		mc[claimCustomerID] = claims.CustomerID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
