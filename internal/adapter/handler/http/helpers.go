package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/marioschiavon/uplink/internal/middleware/auth"
)

// authUser resolves the authenticated user or writes a 401. The returned
// error, when non-nil, is the already-written response.
func authUser(c echo.Context) (*auth.AuthUser, error) {
	user, err := auth.GetUserFromContext(c)
	if err != nil {
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}
	return user, nil
}
