package actuator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/skeleton"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNormalizedTargetMapping(t *testing.T) {
	limits := r1.Interval{Min: -0.7, Max: 0.4}
	c := NewController("knee", nil, skeleton.Gains{Kp: 1}, limits)

	c.SetNormalizedTarget(-1)
	assert.Equal(t, limits.Min, c.Target())
	c.SetNormalizedTarget(1)
	assert.Equal(t, limits.Max, c.Target())

	prev := math.Inf(-1)
	for i := 0; i <= 200; i++ {
		tt := -1 + float64(i)/100
		c.SetNormalizedTarget(tt)
		assert.True(t, c.Enabled())
		assert.GreaterOrEqual(t, c.Target(), limits.Min)
		assert.LessOrEqual(t, c.Target(), limits.Max)
		assert.GreaterOrEqual(t, c.Target(), prev, "t=%v", tt)
		prev = c.Target()
	}

	// out of range inputs are clamped, never rejected
	c.SetNormalizedTarget(5)
	assert.Equal(t, limits.Max, c.Target())
	assert.Equal(t, 1.0, c.Normalized())
	c.SetNormalizedTarget(-3)
	assert.Equal(t, limits.Min, c.Target())
	c.SetNormalizedTarget(math.NaN())
	assert.InDelta(t, -0.15, c.Target(), 1e-12)
}

func TestZeroErrorTorqueOnlyDamps(t *testing.T) {
	for _, angle := range []float64{-3, -0.5, 0, 1.2, math.Pi} {
		for _, omega := range []float64{-10, -0.1, 1e-6, 2, 50} {
			for _, kd := range []float64{0, 0.5, 4} {
				tq := Torque(20, kd, angle, angle, omega)
				assert.LessOrEqual(t, tq*omega, 0.0, "angle=%v omega=%v kd=%v", angle, omega, kd)
			}
		}
	}
}

func TestTorqueWrapsAcrossPi(t *testing.T) {
	// 170 degrees to -170 degrees is a 20 degree step forward, not 340 back
	tq := Torque(1, 0, -170*math.Pi/180, 170*math.Pi/180, 0)
	assert.InDelta(t, 20*math.Pi/180, tq, 1e-9)
}

func TestMirroredJointsMirrorTorque(t *testing.T) {
	gains := skeleton.Gains{Kp: 12, Kd: 0.8}
	left := NewController("left", nil, gains, r1.Interval{Min: -0.3, Max: 0.9})
	right := NewController("right", nil, gains, r1.Interval{Min: -0.9, Max: 0.3})

	for _, a := range []float64{-1, -0.4, 0, 0.25, 1} {
		left.SetNormalizedTarget(a)
		right.SetNormalizedTarget(-a)
		assert.InDelta(t, -left.Target(), right.Target(), 1e-12)

		for _, in := range []struct{ angle, omega float64 }{{0.1, 2}, {-0.6, -0.3}, {0.8, 0}} {
			tl := Torque(gains.Kp, gains.Kd, left.Target(), in.angle, in.omega)
			tr := Torque(gains.Kp, gains.Kd, right.Target(), -in.angle, -in.omega)
			assert.InDelta(t, -tl, tr, 1e-9)
		}
	}
}

func TestRearm(t *testing.T) {
	c := NewController("hip", nil, skeleton.Gains{Kp: 1}, r1.Interval{Min: -0.5, Max: 0.5})
	assert.False(t, c.Enabled())
	assert.Equal(t, 0.0, c.Target())

	c.SetNormalizedTarget(0.8)
	c.Rearm()
	assert.False(t, c.Enabled())
	assert.Equal(t, 0.0, c.Target())
	assert.Equal(t, 0.0, c.Normalized())

	// rest angle outside the range clamps to the nearest limit
	shifted := NewController("shifted", nil, skeleton.Gains{Kp: 1}, r1.Interval{Min: 0.2, Max: 1})
	assert.Equal(t, 0.2, shifted.Target())
	assert.Equal(t, -1.0, shifted.Normalized())
}

func TestStepFaultIsSkipped(t *testing.T) {
	missing := NewController("ghost", nil, skeleton.Gains{Kp: 1}, r1.Interval{Min: -1, Max: 1})
	missing.SetNormalizedTarget(0.5)
	assert.NotPanics(t, func() { missing.Step(0.005) })
	assert.Equal(t, 1, missing.Faults())
	assert.Equal(t, 0.0, missing.Angle())

	broken := NewController("broken", &physics.Joint{}, skeleton.Gains{Kp: 1}, r1.Interval{Min: -1, Max: 1})
	broken.SetNormalizedTarget(0.5)
	broken.Step(0.005)
	broken.Step(0.005)
	assert.Equal(t, 2, broken.Faults())

	// disabled controllers never count faults
	broken.Disable()
	broken.Step(0.005)
	assert.Equal(t, 2, broken.Faults())
}

func pair(t *testing.T) (*physics.World, *skeleton.JointSpec) {
	t.Helper()
	cfg := physics.DefaultConfig()
	cfg.Ground = nil
	cfg.Gravity = r3.Vec{}
	w := physics.NewWorld(cfg)
	s, err := skeleton.Build(skeleton.Config{
		Name: "pair",
		Parts: []skeleton.PartConfig{
			{Name: "base", Shape: "box", HalfExtents: r3.Vec{X: 0.3, Y: 0.1, Z: 0.3}, Mass: 2},
			{
				Name:        "link",
				Parent:      "base",
				Shape:       "box",
				HalfExtents: r3.Vec{X: 0.05, Y: 0.2, Z: 0.05},
				Mass:        0.5,
				Offset:      r3.Vec{Y: -0.3},
				Joint: &skeleton.JointConfig{
					Type:   "hinge",
					Axis:   r3.Vec{X: 1},
					Limits: []skeleton.Limit{{Min: -30, Max: 30}},
					Gains:  skeleton.Gains{Kp: 20, Kd: 1},
				},
			},
		},
	}, w)
	require.NoError(t, err)
	return w, s.Joints()[0]
}

func TestStepDrivesJointToTarget(t *testing.T) {
	w, spec := pair(t)
	c := FromSpec(spec)
	assert.Equal(t, spec.Gains, c.Gains())

	c.SetNormalizedTarget(0.5)
	require.InDelta(t, 15*math.Pi/180, c.Target(), 1e-12)
	for i := 0; i < 400; i++ {
		c.Step(0.005)
		w.Step(0.005)
	}
	assert.InDelta(t, c.Target(), c.Angle(), 0.05)
	assert.InDelta(t, 0, c.AngularVelocity(), 0.1)
	assert.Equal(t, 0, c.Faults())
}

func TestDisabledControllerAppliesNoTorque(t *testing.T) {
	_, spec := pair(t)
	c := FromSpec(spec)
	c.SetNormalizedTarget(1)
	c.Disable()
	c.Step(0.005)
	assert.Equal(t, r3.Vec{}, spec.Joint.Child.Torque())
	assert.Equal(t, 0.0, c.LastTorque())

	c.SetNormalizedTarget(1)
	c.Step(0.005)
	child := spec.Joint.Child.Torque()
	parent := spec.Joint.Parent.Torque()
	assert.Greater(t, r3.Norm(child), 0.0)
	assert.InDelta(t, 0, r3.Norm(r3.Add(child, parent)), 1e-12)
	// torque is scaled by the child's mass
	assert.InDelta(t, math.Abs(c.LastTorque())*0.5, r3.Norm(child), 1e-12)
}

func TestSetGains(t *testing.T) {
	c := NewController("j", nil, skeleton.Gains{Kp: 3, Kd: 1}, r1.Interval{Min: -1, Max: 1})
	c.SetGains(skeleton.Gains{Kp: -1, Kd: 1})
	assert.Equal(t, skeleton.Gains{Kp: 3, Kd: 1}, c.Gains())
	c.SetGains(skeleton.Gains{})
	assert.Equal(t, skeleton.Gains{}, c.Gains())
}
