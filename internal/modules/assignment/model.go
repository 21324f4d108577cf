// README: Assignment aggregate: one driver offered one order, and the driver's answer.
package assignment

import (
	"time"

	"kwenda/internal/modules/dispatch"
	"kwenda/internal/types"
)

type Status string

const (
	StatusOffered  Status = "offered"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
)

type Assignment struct {
	ID              types.ID          `json:"id"`
	OrderID         types.ID          `json:"order_id"`
	DriverID        types.ID          `json:"driver_id"`
	Status          Status            `json:"status"`
	StatusVersion   int               `json:"status_version"`
	Priority        dispatch.Priority `json:"priority"`
	Pickup          types.Point       `json:"pickup"`
	DistanceKm      float64           `json:"distance_km"`
	Score           float64           `json:"score"`
	ETAMinutes      int               `json:"eta_minutes"`
	RouteETAMinutes int               `json:"route_eta_minutes,omitempty"`
	RadiusKm        float64           `json:"radius_km"`
	CreatedAt       time.Time         `json:"created_at"`
	RespondedAt     *time.Time        `json:"responded_at,omitempty"`
}

// AllowedTransitions is the assignment state flow as code. Every answer is final.
var AllowedTransitions = map[Status][]Status{
	StatusOffered: {StatusAccepted, StatusDeclined, StatusExpired},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func fromOffer(o dispatch.Offer) *Assignment {
	return &Assignment{
		ID:              o.ID,
		OrderID:         o.OrderID,
		DriverID:        o.DriverID,
		Status:          StatusOffered,
		Priority:        o.Priority,
		Pickup:          o.Pickup,
		DistanceKm:      o.DistanceKm,
		Score:           o.Score,
		ETAMinutes:      o.ETAMinutes,
		RouteETAMinutes: o.RouteETAMinutes,
		RadiusKm:        o.RadiusKm,
		CreatedAt:       o.OfferedAt,
	}
}
