// README: Rider model, reliability/penalty policy, and suspension state.
package rider

import (
	"time"

	"lastmile/internal/types"
)

// State is the derived rider lifecycle: Active -> Penalized(n) ->
// Suspended(until). There is no automatic recovery; the score only decays.
type State string

const (
	StateActive    State = "active"
	StatePenalized State = "penalized"
	StateSuspended State = "suspended"
	StateInactive  State = "inactive"
)

const (
	// InitialScore is the reliability ceiling every rider starts at.
	InitialScore = 100
	// PenaltyStep is subtracted from the reliability score per penalty.
	PenaltyStep = 10

	shortSuspensionThreshold = 3
	longSuspensionThreshold  = 5
	shortSuspension          = 3 * time.Hour
	longSuspension           = 24 * time.Hour
)

type Rider struct {
	ID               types.ID
	Name             string
	Phone            string
	Email            string
	Position         types.Point
	Cell             string
	IsActive         bool
	ReliabilityScore int
	PenaltyCount     int
	SuspendedUntil   *time.Time
	UpdatedAt        time.Time
}

// StateAt derives the rider's lifecycle state at the given instant.
func (r Rider) StateAt(now time.Time) State {
	if !r.IsActive {
		return StateInactive
	}
	if r.SuspendedUntil != nil && now.Before(*r.SuspendedUntil) {
		return StateSuspended
	}
	if r.PenaltyCount > 0 {
		return StatePenalized
	}
	return StateActive
}

// SuspensionFor returns the suspension window a rider earns on reaching the
// given penalty count, or zero when the count is below every threshold.
func SuspensionFor(penaltyCount int) time.Duration {
	switch {
	case penaltyCount >= longSuspensionThreshold:
		return longSuspension
	case penaltyCount >= shortSuspensionThreshold:
		return shortSuspension
	default:
		return 0
	}
}
