// README: Dispatch candidates, requests and scored results.
package dispatch

import (
	"time"

	"kwenda/internal/types"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ServiceAny is the capability every online driver is indexed under.
const ServiceAny = "any"

const (
	// DefaultMaxDistanceKm applies when a request leaves MaxDistanceKm unset.
	DefaultMaxDistanceKm = 10.0
	// DefaultRating is assumed for drivers without a rating yet.
	DefaultRating = 4.0
	MaxRating     = 5.0

	weightProximity  = 0.4
	weightRating     = 0.3
	weightExperience = 0.2
	weightPriority   = 0.1

	// proximity loses 10 points per km.
	proximityPenaltyPerKm = 10.0
	// experience saturates at 50 completed jobs.
	experiencePerJob = 2.0
	minutesPerKm     = 2.0
)

// Candidate is a driver eligible for a dispatch decision.
type Candidate struct {
	ID       types.ID    `json:"id"`
	Location types.Point `json:"location"`
	// Rating is 0-5; nil means unrated.
	Rating        *float64 `json:"rating,omitempty"`
	CompletedJobs int      `json:"completed_jobs"`
}

// EffectiveRating returns the rating used for scoring.
func (c Candidate) EffectiveRating() float64 {
	if c.Rating == nil {
		return DefaultRating
	}
	return *c.Rating
}

type Request struct {
	Pickup   types.Point `json:"pickup"`
	Priority Priority    `json:"priority"`
	// MaxDistanceKm of zero means DefaultMaxDistanceKm.
	MaxDistanceKm float64 `json:"max_distance_km"`
}

type ScoredCandidate struct {
	Candidate  Candidate `json:"candidate"`
	DistanceKm float64   `json:"distance_km"`
	Score      float64   `json:"score"`
	ETAMinutes int       `json:"eta_minutes"`
}

// DriverState is what a driver pool keeps about one driver.
type DriverState struct {
	ID            types.ID
	Location      types.Point
	Rating        *float64
	CompletedJobs int
	ServiceTypes  []string
	Available     bool
}

func (d DriverState) candidate() Candidate {
	return Candidate{
		ID:            d.ID,
		Location:      d.Location,
		Rating:        d.Rating,
		CompletedJobs: d.CompletedJobs,
	}
}

// Command asks the service to find and assign a driver for an order.
type Command struct {
	OrderID     types.ID
	Pickup      types.Point
	Priority    Priority
	ServiceType string
	// MaxDistanceKm of zero uses the configured default.
	MaxDistanceKm float64
	// ExcludeDriverIDs lists drivers that already declined this order.
	ExcludeDriverIDs []types.ID
}

// Offer is the outcome of a successful dispatch: one driver offered one order.
type Offer struct {
	ID         types.ID    `json:"id"`
	OrderID    types.ID    `json:"order_id"`
	DriverID   types.ID    `json:"driver_id"`
	Pickup     types.Point `json:"pickup"`
	Priority   Priority    `json:"priority"`
	DistanceKm float64     `json:"distance_km"`
	Score      float64     `json:"score"`
	ETAMinutes int         `json:"eta_minutes"`
	// RouteETAMinutes is the road-network estimate, zero when unavailable.
	RouteETAMinutes int       `json:"route_eta_minutes,omitempty"`
	RadiusKm        float64   `json:"radius_km"`
	OfferedAt       time.Time `json:"offered_at"`
}

type Result struct {
	Offer Offer
	// Ranked is the full ranking at the radius that produced the offer.
	Ranked []ScoredCandidate
}
