package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"sportsreg_app/internal/models"
)

// currentUserID reads the authenticated user id set by the auth middleware.
func currentUserID(c echo.Context) (uint, error) {
	id, ok := c.Get("userID").(uint)
	if !ok || id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return id, nil
}

func currentRole(c echo.Context) models.Role {
	role, _ := c.Get("userRole").(models.Role)
	return role
}

func uintParam(c echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(v), nil
}
