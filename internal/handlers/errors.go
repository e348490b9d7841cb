package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadwire/leadwire/internal/auth"
)

// ErrorResponse is the JSON body of failed requests.
type ErrorResponse struct {
	Message  string `json:"message"`
	Upstream any    `json:"upstream,omitempty"`
}

// requireStaff returns the caller's claims, rejecting external customer
// sessions.
func requireStaff(c echo.Context) (auth.Claims, error) {
	claims, err := auth.ClaimsFromContext(c)
	if err != nil {
		return auth.Claims{}, err
	}
	if claims.IsClient() {
		return auth.Claims{}, echo.NewHTTPError(http.StatusForbidden, "operator role required")
	}
	return claims, nil
}
