// README: Dispatch handlers: ranking preview and driver assignment.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kwenda/internal/modules/dispatch"
	"kwenda/internal/types"
)

type DispatchHandler struct {
	dispatch *dispatch.Service
}

func NewDispatchHandler(svc *dispatch.Service) *DispatchHandler {
	return &DispatchHandler{dispatch: svc}
}

type previewReq struct {
	dispatch.Request
	Candidates []dispatch.Candidate `json:"candidates"`
}

type previewResp struct {
	Ranked []dispatch.ScoredCandidate `json:"ranked"`
	Best   *dispatch.ScoredCandidate  `json:"best"`
}

// Preview ranks the candidates in the body without touching any state.
func (h *DispatchHandler) Preview(c *gin.Context) {
	var req previewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	priority, err := dispatch.ParsePriority(string(req.Priority))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	req.Priority = priority

	ranked, err := h.dispatch.Preview(req.Request, req.Candidates)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	resp := previewResp{Ranked: ranked}
	if best, ok := dispatch.PickBest(ranked); ok {
		resp.Best = &best
	}
	writeJSON(c, http.StatusOK, resp)
}

type dispatchReq struct {
	OrderID          string      `json:"order_id"`
	Pickup           types.Point `json:"pickup"`
	Priority         string      `json:"priority"`
	ServiceType      string      `json:"service_type"`
	MaxDistanceKm    float64     `json:"max_distance_km"`
	ExcludeDriverIDs []string    `json:"exclude_driver_ids"`
}

type dispatchResp struct {
	Offer      dispatch.Offer `json:"offer"`
	Candidates int            `json:"candidates"`
}

// Dispatch finds and offers the best driver for an order.
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	if !requireRole(c, RoleDispatcher, RoleAdmin) {
		return
	}
	var req dispatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.OrderID) {
		writeError(c, http.StatusBadRequest, "invalid order_id")
		return
	}
	exclude := make([]types.ID, len(req.ExcludeDriverIDs))
	for i, id := range req.ExcludeDriverIDs {
		exclude[i] = types.ID(id)
	}

	res, err := h.dispatch.Dispatch(c.Request.Context(), dispatch.Command{
		OrderID:          types.ID(req.OrderID),
		Pickup:           req.Pickup,
		Priority:         dispatch.Priority(req.Priority),
		ServiceType:      req.ServiceType,
		MaxDistanceKm:    req.MaxDistanceKm,
		ExcludeDriverIDs: exclude,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, dispatchResp{Offer: res.Offer, Candidates: len(res.Ranked)})
}
