// README: Driver location updates and the snapshots persisted for replay.
package location

import (
	"time"

	"kwenda/internal/types"
)

// DriverUpdate is one report from a driver app. Seq increases per driver;
// reports that arrive out of order are ignored. Zero Seq disables the check.
type DriverUpdate struct {
	DriverID      types.ID    `json:"driver_id"`
	Seq           int64       `json:"seq"`
	Position      types.Point `json:"position"`
	Rating        *float64    `json:"rating,omitempty"`
	CompletedJobs int         `json:"completed_jobs"`
	ServiceTypes  []string    `json:"service_types,omitempty"`
	Available     bool        `json:"available"`
}

type UpdateResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type Snapshot struct {
	ID         int64
	DriverID   types.ID
	Position   types.Point
	Available  bool
	RecordedAt time.Time
}
