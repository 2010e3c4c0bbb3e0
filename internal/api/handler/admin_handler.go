package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sirpyerre/tenant-portal/internal/api/middleware"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

type AdminHandler struct {
	sessions ports.SessionService
}

func NewAdminHandler(sessions ports.SessionService) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

type userStatusResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Active  bool   `json:"active"`
}

// Deactivate blocks a member of the caller's tenant and revokes their refresh tokens.
//
// @Summary      Deactivate user
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  userStatusResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/admin/users/{id}/deactivate [post]
func (h *AdminHandler) Deactivate(c echo.Context) error {
	return h.setActive(c, false)
}

// Reactivate lets a previously deactivated member sign in again.
//
// @Summary      Reactivate user
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  userStatusResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/admin/users/{id}/reactivate [post]
func (h *AdminHandler) Reactivate(c echo.Context) error {
	return h.setActive(c, true)
}

func (h *AdminHandler) setActive(c echo.Context, active bool) error {
	userID := c.Param("id")
	if err := h.sessions.SetUserActive(c.Request().Context(), middleware.CurrentSession(c), userID, active); err != nil {
		return err
	}

	msg := "User deactivated"
	if active {
		msg = "User reactivated"
	}
	return c.JSON(http.StatusOK, userStatusResponse{Message: msg, UserID: userID, Active: active})
}
