package arena

import (
	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r3"
)

// Fixed spawns every episode at the same pose
type Fixed struct {
	Pose physics.Pose
}

var _ types.Placement = Fixed{}

func NewFixed(position r3.Vec, yaw float64) Fixed {
	return Fixed{Pose: physics.NewPose(position, physics.AxisAngle(physics.Up, yaw))}
}

func (f Fixed) Spawn(int) physics.Pose {
	return f.Pose
}

// Jittered spawns around Center, displaced on the ground plane by at most
// Radius and turned about the vertical by at most YawRange radians. The
// spawn of an episode only depends on the seed and the episode number.
type Jittered struct {
	Center   r3.Vec
	Radius   float64
	YawRange float64
	Seed     uint64
}

var _ types.Placement = Jittered{}

func (j Jittered) Spawn(episode int) physics.Pose {
	rnd := rand.New(rand.NewSource(j.Seed ^ (uint64(episode)*0x9e3779b97f4a7c15 + 1)))
	// rejection sample the disc
	var dx, dz float64
	for {
		dx, dz = 2*rnd.Float64()-1, 2*rnd.Float64()-1
		if dx*dx+dz*dz <= 1 {
			break
		}
	}
	yaw := (2*rnd.Float64() - 1) * j.YawRange
	pos := r3.Add(j.Center, r3.Vec{X: dx * j.Radius, Z: dz * j.Radius})
	return physics.NewPose(pos, physics.AxisAngle(physics.Up, yaw))
}
