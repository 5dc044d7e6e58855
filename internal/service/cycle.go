package service

import (
	"time"
)

// State is the scheduler position within a cycle
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateNormalizing
	StatePublishing
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateNormalizing:
		return "normalizing"
	case StatePublishing:
		return "publishing"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// CycleStatus is the outcome of one cycle
type CycleStatus string

const (
	// CycleSucceeded means the API answered 202 Accepted
	CycleSucceeded CycleStatus = "succeeded"
	// CycleRejected means the API answered with any other status
	CycleRejected CycleStatus = "rejected"
	// CycleSkipped means an error ended the cycle early
	CycleSkipped CycleStatus = "skipped"
)

// Phase names the step a cycle was in when it ended
type Phase string

const (
	PhaseFetch     Phase = "fetch"
	PhaseNormalize Phase = "normalize"
	PhasePublish   Phase = "publish"
)

// CycleResult describes one fetch -> normalize -> publish pass. Every cycle
// produces one; errors never leave RunCycle any other way.
type CycleResult struct {
	ID         string
	Status     CycleStatus
	Phase      Phase
	StatusCode int
	Body       string
	Err        error
	ReadingAt  time.Time
	StartedAt  time.Time
	Duration   time.Duration
}

// OK reports whether the reading was accepted
func (r CycleResult) OK() bool {
	return r.Status == CycleSucceeded
}

func (r CycleResult) skip(phase Phase, err error) CycleResult {
	r.Status = CycleSkipped
	r.Phase = phase
	r.Err = err
	return r
}

// Status is a snapshot of the scheduler for the health endpoint
type Status struct {
	Running   bool
	State     State
	Cycles    uint64
	Interval  time.Duration
	LastCycle *CycleResult
}
