package types

import (
	"fmt"

	"github.com/zeu5/locomotion-rl/physics"
)

// Task is the capability set one agent kind provides to the episode driver.
// Observations and actions are fixed length vectors exchanged once per
// decision tick.
type Task interface {
	// Reset moves the agent to spawn at rest and re-arms its actuators
	Reset(spawn physics.Pose)
	ObservationSize() int
	ActionSize() int
	CollectObservations() []float64
	// ApplyAction receives a vector of ActionSize components clamped to [-1, 1]
	ApplyAction(action []float64)
	// Deactivate releases all actuators for the tick
	Deactivate()
	// Actuate runs once per physics step while the episode is active
	Actuate(dt float64)
	ComputeReward(action []float64) float64
	CheckTermination(ctx *EpisodeContext) TerminationReason
}

// Placement supplies the spawn transform of each episode
type Placement interface {
	Spawn(episode int) physics.Pose
}

// EpisodeState is the lifecycle state of a driver
type EpisodeState int

const (
	Begin EpisodeState = iota
	Active
	Terminated
)

func (s EpisodeState) String() string {
	switch s {
	case Begin:
		return "begin"
	case Active:
		return "active"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TerminationReason tells why an episode ended. None of them are errors.
type TerminationReason int

const (
	NotTerminated TerminationReason = iota
	Fell
	Timeout
	Success
	Collided
	// Interrupted episodes were force reset by the harness
	Interrupted
)

var reasonNames = map[TerminationReason]string{
	NotTerminated: "none",
	Fell:          "fell",
	Timeout:       "timeout",
	Success:       "success",
	Collided:      "collided",
	Interrupted:   "interrupted",
}

func (r TerminationReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

func (r TerminationReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *TerminationReason) UnmarshalText(b []byte) error {
	for k, v := range reasonNames {
		if v == string(b) {
			*r = k
			return nil
		}
	}
	return fmt.Errorf("unknown termination reason %q", string(b))
}

// Reasons lists every terminal reason in a stable order
func Reasons() []TerminationReason {
	return []TerminationReason{Fell, Timeout, Success, Collided, Interrupted}
}
