// README: Assignment handlers for drivers answering offers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"kwenda/internal/http/middleware"
	"kwenda/internal/modules/assignment"
	"kwenda/internal/types"
)

type AssignmentHandler struct {
	assignments *assignment.Service
}

func NewAssignmentHandler(svc *assignment.Service) *AssignmentHandler {
	return &AssignmentHandler{assignments: svc}
}

// Get returns an assignment to its driver or to dispatch staff.
func (h *AssignmentHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, err := h.assignments.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	role := middleware.CallerRole(c)
	if role != RoleDispatcher && role != RoleAdmin && string(a.DriverID) != middleware.CallerUID(c) {
		writeError(c, http.StatusForbidden, "forbidden: not your assignment")
		return
	}
	writeJSON(c, http.StatusOK, a)
}

func (h *AssignmentHandler) Accept(c *gin.Context) {
	h.answer(c, h.assignments.Accept)
}

func (h *AssignmentHandler) Decline(c *gin.Context) {
	h.answer(c, h.assignments.Decline)
}

func (h *AssignmentHandler) answer(c *gin.Context, fn func(context.Context, assignment.AnswerCommand) (*assignment.Assignment, error)) {
	if !requireRole(c, RoleDriver) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, err := fn(c.Request.Context(), assignment.AnswerCommand{
		AssignmentID: id,
		DriverID:     types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, a)
}
