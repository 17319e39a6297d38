package types

import (
	"encoding/json"
	"os"
)

// Step is one decision tick of an episode
type Step struct {
	Index       int       `json:"index"`
	Observation []float64 `json:"observation"`
	Action      []float64 `json:"action"`
	Reward      float64   `json:"reward"`
	Active      bool      `json:"active"`
}

// Trace of an episode as a sequence of decision ticks
type Trace struct {
	Steps  []Step            `json:"steps"`
	Reason TerminationReason `json:"reason"`
}

func NewTrace() *Trace {
	return &Trace{
		Steps: make([]Step, 0),
	}
}

func (t *Trace) Append(step Step) {
	t.Steps = append(t.Steps, step)
}

func (t *Trace) Len() int {
	return len(t.Steps)
}

func (t *Trace) Get(i int) (Step, bool) {
	if i < 0 || i >= len(t.Steps) {
		return Step{}, false
	}
	return t.Steps[i], true
}

func (t *Trace) Last() (Step, bool) {
	return t.Get(len(t.Steps) - 1)
}

func (t *Trace) Slice(from, to int) *Trace {
	sliced := NewTrace()
	for i := from; i < to && i < len(t.Steps); i++ {
		s := t.Steps[i]
		s.Index = i - from
		sliced.Append(s)
	}
	return sliced
}

// TotalReward sums the rewards of all the steps
func (t *Trace) TotalReward() float64 {
	total := 0.0
	for _, s := range t.Steps {
		total += s.Reward
	}
	return total
}

// Record writes the trace as json to the given path
func (t *Trace) Record(p string) error {
	bs, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(p, bs, 0644)
}
