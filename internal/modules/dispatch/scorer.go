package dispatch

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"kwenda/internal/geo"
)

// ErrInvalidInput is returned when a request or candidate cannot be ranked.
var ErrInvalidInput = errors.New("invalid dispatch input")

// Score ranks candidates for a pickup. Candidates farther than the request's
// max distance are dropped; the rest are ordered by score descending, then
// distance ascending, then ID ascending. A single invalid coordinate fails the
// whole call. Score is pure and safe for concurrent use.
func Score(req Request, candidates []Candidate) ([]ScoredCandidate, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}

	maxKm := req.maxDistanceKm()
	bonus := req.Priority.bonus()
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		d := geo.HaversineKm(req.Pickup, c.Location)
		if !(d <= maxKm) {
			continue
		}
		scored = append(scored, ScoredCandidate{
			Candidate:  c,
			DistanceKm: d,
			Score:      compositeScore(d, c.EffectiveRating(), c.CompletedJobs, bonus),
			ETAMinutes: etaMinutes(d),
		})
	}

	slices.SortStableFunc(scored, compareScored)
	return scored, nil
}

// PickBest returns the top ranked candidate, or false when there is none.
func PickBest(scored []ScoredCandidate) (ScoredCandidate, bool) {
	if len(scored) == 0 {
		return ScoredCandidate{}, false
	}
	return scored[0], true
}

func compositeScore(distanceKm, rating float64, completedJobs int, priorityBonus float64) float64 {
	proximity := math.Max(0, 100-distanceKm*proximityPenaltyPerKm)
	ratingScore := rating / MaxRating * 100
	experience := math.Min(100, float64(completedJobs)*experiencePerJob)
	return weightProximity*proximity +
		weightRating*ratingScore +
		weightExperience*experience +
		weightPriority*priorityBonus
}

func etaMinutes(distanceKm float64) int {
	return int(math.Ceil(distanceKm * minutesPerKm))
}

func compareScored(a, b ScoredCandidate) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DistanceKm, b.DistanceKm); c != 0 {
		return c
	}
	return cmp.Compare(a.Candidate.ID, b.Candidate.ID)
}

func (p Priority) bonus() float64 {
	switch p {
	case PriorityUrgent:
		return 20
	case PriorityHigh:
		return 10
	default:
		return 0
	}
}

// ParsePriority maps an empty string to PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case "":
		return PriorityNormal, nil
	case PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, s)
	}
}

func (r Request) maxDistanceKm() float64 {
	if r.MaxDistanceKm == 0 {
		return DefaultMaxDistanceKm
	}
	return r.MaxDistanceKm
}

func (r Request) validate() error {
	if err := r.Pickup.Validate(); err != nil {
		return fmt.Errorf("%w: pickup: %v", ErrInvalidInput, err)
	}
	if _, err := ParsePriority(string(r.Priority)); err != nil {
		return err
	}
	if math.IsNaN(r.MaxDistanceKm) || math.IsInf(r.MaxDistanceKm, 0) || r.MaxDistanceKm < 0 {
		return fmt.Errorf("%w: max distance %v", ErrInvalidInput, r.MaxDistanceKm)
	}
	return nil
}

func (c Candidate) validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: candidate without id", ErrInvalidInput)
	}
	if err := c.Location.Validate(); err != nil {
		return fmt.Errorf("%w: candidate %s: %v", ErrInvalidInput, c.ID, err)
	}
	if c.Rating != nil {
		if r := *c.Rating; math.IsNaN(r) || r < 0 || r > MaxRating {
			return fmt.Errorf("%w: candidate %s: rating %v", ErrInvalidInput, c.ID, r)
		}
	}
	if c.CompletedJobs < 0 {
		return fmt.Errorf("%w: candidate %s: completed jobs %d", ErrInvalidInput, c.ID, c.CompletedJobs)
	}
	return nil
}
