// Package debugview publishes read-only snapshots of a running simulation
// over http, along with prometheus metrics for the ended episodes.
package debugview

import (
	"math"
	"sort"
	"sync"

	"github.com/zeu5/locomotion-rl/actuator"
	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/types"
	"gonum.org/v1/gonum/spatial/r3"
)

// Inspectable tasks expose their bodies to the board
type Inspectable interface {
	Bodies() []*physics.Body
}

// Actuated tasks additionally expose their joint controllers
type Actuated interface {
	Controllers() []*actuator.Controller
}

type BodyState struct {
	Name     string     `json:"name"`
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity"`
	Up       [3]float64 `json:"up"`
	// Finite is false when any component was NaN or infinite; such
	// components are reported as 0
	Finite bool `json:"finite"`
}

type Snapshot struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Tick         int     `json:"tick"`
	State        string  `json:"state"`
	Active       bool    `json:"active"`
	Episode      int     `json:"episode"`
	Step         int     `json:"step"`
	Elapsed      float64 `json:"elapsed"`
	Reward       float64 `json:"reward"`
	Episodes     int     `json:"episodes"`
	PolicyErrors int     `json:"policy_errors"`

	Bodies      []BodyState      `json:"bodies,omitempty"`
	Controllers []actuator.State `json:"controllers,omitempty"`
}

// Board holds the latest snapshot of every driver of the attached
// simulation. Capture is called from the simulation goroutine, the readers
// from http handlers.
type Board struct {
	lock      *sync.RWMutex
	sim       *types.Simulation
	snapshots map[string]Snapshot
}

func NewBoard() *Board {
	return &Board{
		lock:      new(sync.RWMutex),
		snapshots: make(map[string]Snapshot),
	}
}

// Attach captures sim after every tick. The board follows one simulation at
// a time; snapshots of the previously attached one are dropped and its later
// ticks are ignored.
func (b *Board) Attach(sim *types.Simulation) {
	b.lock.Lock()
	b.sim = sim
	b.snapshots = make(map[string]Snapshot)
	b.lock.Unlock()
	sim.AfterTick(b.Capture)
}

// Capture replaces the board with the current drivers of sim, so a driver
// removed from it disappears
func (b *Board) Capture(sim *types.Simulation) {
	snaps := make([]Snapshot, 0, len(sim.Drivers()))
	for _, d := range sim.Drivers() {
		snaps = append(snaps, snapshot(sim.Ticks(), d))
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.sim != nil && b.sim != sim {
		return
	}
	b.snapshots = make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		b.snapshots[s.ID] = s
	}
}

func (b *Board) Snapshots() []Snapshot {
	b.lock.RLock()
	defer b.lock.RUnlock()
	out := make([]Snapshot, 0, len(b.snapshots))
	for _, s := range b.snapshots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get looks a snapshot up by driver id or name
func (b *Board) Get(key string) (Snapshot, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if s, ok := b.snapshots[key]; ok {
		return s, true
	}
	for _, s := range b.snapshots {
		if s.Name == key {
			return s, true
		}
	}
	return Snapshot{}, false
}

func snapshot(tick int, d *types.Driver) Snapshot {
	s := Snapshot{
		ID:           d.ID(),
		Name:         d.Name(),
		Tick:         tick,
		State:        d.State().String(),
		Active:       d.Active(),
		Episodes:     d.Episodes(),
		PolicyErrors: d.PolicyErrors(),
	}
	if ep := d.Episode(); ep != nil {
		s.Episode = ep.Episode
		s.Step = ep.Step
		s.Elapsed = ep.Elapsed
		s.Reward = finite(ep.Reward)
	}
	if in, ok := d.Task().(Inspectable); ok {
		for _, body := range in.Bodies() {
			s.Bodies = append(s.Bodies, bodyState(body))
		}
	}
	if ac, ok := d.Task().(Actuated); ok {
		for _, c := range ac.Controllers() {
			cs := c.State()
			cs.Target = finite(cs.Target)
			cs.Normalized = finite(cs.Normalized)
			cs.Angle = finite(cs.Angle)
			cs.Velocity = finite(cs.Velocity)
			cs.Torque = finite(cs.Torque)
			s.Controllers = append(s.Controllers, cs)
		}
	}
	return s
}

func bodyState(b *physics.Body) BodyState {
	out := BodyState{Name: b.Name, Finite: true}
	vecs := []r3.Vec{b.Position, b.LinearVelocity, b.Up()}
	dst := []*[3]float64{&out.Position, &out.Velocity, &out.Up}
	for i, v := range vecs {
		for j, c := range []float64{v.X, v.Y, v.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				out.Finite = false
				c = 0
			}
			dst[i][j] = c
		}
	}
	return out
}

// finite maps NaN and infinities to 0, json cannot carry them
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
