package skeleton

import (
	"github.com/zeu5/locomotion-rl/physics"
	"gonum.org/v1/gonum/spatial/r1"
)

// BodyPart is one rigid body of the skeleton. Parent is the index of the
// parent part, -1 for the root.
type BodyPart struct {
	Index  int
	Name   string
	Parent int
	Body   *physics.Body

	// rest pose relative to the root, fixed at build time
	rest physics.Pose
	// world pose at creation, used until the skeleton is finished
	created physics.Pose
	owner   *Builder
}

// Rest is the pose of the part relative to the root at build time
func (p *BodyPart) Rest() physics.Pose {
	return p.rest
}

// JointSpec links the child part to its parent. Limits are in radians,
// primary axis first.
type JointSpec struct {
	Name        string
	ParentIndex int
	ChildIndex  int
	Kind        physics.JointKind
	Limits      []r1.Interval
	Gains       Gains
	Joint       *physics.Joint
}

// PrimaryLimit is the range of the actuated axis
func (j *JointSpec) PrimaryLimit() r1.Interval {
	return j.Limits[0]
}

// Skeleton is the finished tree of body parts and joints. The topology is
// fixed; only pose and velocity change between episodes.
type Skeleton struct {
	Name    string
	parts   []*BodyPart
	parents []int
	joints  []*JointSpec
	byName  map[string]int
	// world pose of the root at build time
	home physics.Pose
}

func (s *Skeleton) Parts() []*BodyPart {
	return s.parts
}

func (s *Skeleton) Root() *BodyPart {
	return s.parts[0]
}

// Joints in part declaration order, one per non-root part
func (s *Skeleton) Joints() []*JointSpec {
	return s.joints
}

// Parents returns the parent index of every part
func (s *Skeleton) Parents() []int {
	return s.parents
}

func (s *Skeleton) Part(name string) (*BodyPart, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.parts[i], true
}

// Home is the root pose the skeleton was built at. Spawning at
// placement.Compose(Home()) keeps the built height above the placement.
func (s *Skeleton) Home() physics.Pose {
	return s.home
}

// Mass is the total mass of all parts
func (s *Skeleton) Mass() float64 {
	total := 0.0
	for _, p := range s.parts {
		total += p.Body.Mass
	}
	return total
}

// ResetPose moves every part to spawn composed with its rest pose and zeroes
// all velocities and pending forces
func (s *Skeleton) ResetPose(spawn physics.Pose) {
	spawn = physics.NewPose(spawn.Position, spawn.Orientation)
	for _, p := range s.parts {
		world := spawn.Compose(p.rest)
		p.Body.SetPose(world.Position, world.Orientation)
		p.Body.ZeroVelocity()
	}
}
