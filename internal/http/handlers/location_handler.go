// README: Driver location and availability handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kwenda/internal/http/middleware"
	"kwenda/internal/modules/location"
	"kwenda/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type locationReq struct {
	Seq           int64    `json:"seq"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Rating        *float64 `json:"rating"`
	CompletedJobs int      `json:"completed_jobs"`
	ServiceTypes  []string `json:"service_types"`
	Available     *bool    `json:"available"`
}

type availabilityReq struct {
	Available *bool `json:"available"`
}

// Update stores the reporting driver's position. Only the driver may report
// for themselves.
func (h *LocationHandler) Update(c *gin.Context) {
	id, ok := h.selfDriver(c)
	if !ok {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}
	res, err := h.location.UpdateDriverLocation(c.Request.Context(), location.DriverUpdate{
		DriverID:      id,
		Seq:           req.Seq,
		Position:      types.Point{Lat: req.Lat, Lng: req.Lng},
		Rating:        req.Rating,
		CompletedJobs: req.CompletedJobs,
		ServiceTypes:  req.ServiceTypes,
		Available:     available,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *LocationHandler) SetAvailability(c *gin.Context) {
	id, ok := h.selfDriver(c)
	if !ok {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		writeError(c, http.StatusBadRequest, "available is required")
		return
	}
	if err := h.location.SetAvailability(c.Request.Context(), id, *req.Available); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"driver_id": id, "available": *req.Available})
}

func (h *LocationHandler) selfDriver(c *gin.Context) (types.ID, bool) {
	id, ok := pathID(c)
	if !ok {
		return "", false
	}
	if middleware.CallerRole(c) != RoleDriver {
		writeError(c, http.StatusForbidden, "forbidden: driver role required")
		return "", false
	}
	if middleware.CallerUID(c) != string(id) {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return "", false
	}
	return id, true
}
