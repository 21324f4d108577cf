// README: Base handler utilities (JSON helpers, error mapping, role checks).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kwenda/internal/http/middleware"
	"kwenda/internal/modules/assignment"
	"kwenda/internal/modules/dispatch"
	"kwenda/internal/modules/location"
	"kwenda/internal/types"
)

const (
	RoleDriver     = "driver"
	RoleDispatcher = "dispatcher"
	RoleAdmin      = "admin"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the ids issued by Firebase auth and by uuid.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps module errors to status codes. Unknown errors are
// attached to the context for the logging middleware and hidden from clients.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidInput),
		errors.Is(err, assignment.ErrBadRequest),
		errors.Is(err, location.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrNoDriverAvailable),
		errors.Is(err, dispatch.ErrUnknownDriver),
		errors.Is(err, assignment.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, assignment.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, assignment.ErrInvalidState),
		errors.Is(err, assignment.ErrConflict),
		errors.Is(err, assignment.ErrExpired):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// requireRole writes 403 and returns false unless the caller has one of roles.
func requireRole(c *gin.Context, roles ...string) bool {
	role := middleware.CallerRole(c)
	for _, r := range roles {
		if role == r {
			return true
		}
	}
	writeError(c, http.StatusForbidden, "forbidden: role not allowed")
	return false
}

// pathID reads and validates the :id path parameter.
func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return types.ID(id), true
}
