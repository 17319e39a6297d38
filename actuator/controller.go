package actuator

import (
	"math"

	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/skeleton"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/spatial/r3"
)

// Torque is the PD law. The angle error is taken on the circle so targets on
// either side of +-pi do not flip its sign.
func Torque(kp, kd, target, current, omega float64) float64 {
	err := physics.WrapAngle(target - current)
	return kp*err - kd*omega
}

// Controller drives the primary axis of one joint towards a target angle
type Controller struct {
	name   string
	joint  *physics.Joint
	kp, kd float64
	limits r1.Interval

	normalized float64
	target     float64
	enabled    bool

	lastTorque float64
	faults     int
	logger     *zap.Logger
}

// NewController creates a disarmed controller. limits are in radians.
func NewController(name string, joint *physics.Joint, gains skeleton.Gains, limits r1.Interval) *Controller {
	c := &Controller{
		name:   name,
		joint:  joint,
		kp:     gains.Kp,
		kd:     gains.Kd,
		limits: limits,
		logger: zap.L().Named("actuator").With(zap.String("joint", name)),
	}
	c.Rearm()
	return c
}

// FromSpec uses the joint's default gains and primary limit
func FromSpec(spec *skeleton.JointSpec) *Controller {
	return NewController(spec.Name, spec.Joint, spec.Gains, spec.PrimaryLimit())
}

// ForSkeleton returns one controller per joint, in joint order
func ForSkeleton(s *skeleton.Skeleton) []*Controller {
	out := make([]*Controller, len(s.Joints()))
	for i, j := range s.Joints() {
		out[i] = FromSpec(j)
	}
	return out
}

// SetNormalizedTarget maps t from [-1, 1] (clamped) linearly onto the joint
// limits and enables the controller
func (c *Controller) SetNormalizedTarget(t float64) {
	if math.IsNaN(t) {
		t = 0
	}
	t = math.Max(-1, math.Min(1, t))
	c.normalized = t
	switch t {
	case -1:
		c.target = c.limits.Min
	case 1:
		c.target = c.limits.Max
	default:
		v := c.limits.Min + (t+1)/2*(c.limits.Max-c.limits.Min)
		c.target = math.Max(c.limits.Min, math.Min(c.limits.Max, v))
	}
	c.enabled = true
}

// Disable stops torque application; the joint moves under physics alone
func (c *Controller) Disable() {
	c.enabled = false
	c.lastTorque = 0
}

// Rearm clears the target back to the rest angle and disables the controller
// until the next SetNormalizedTarget
func (c *Controller) Rearm() {
	c.target = math.Max(c.limits.Min, math.Min(c.limits.Max, 0))
	c.normalized = 0
	if span := c.limits.Max - c.limits.Min; span > 0 {
		c.normalized = 2*(c.target-c.limits.Min)/span - 1
	}
	c.enabled = false
	c.lastTorque = 0
}

// SetGains replaces the PD gains; negative or non-finite values are ignored
func (c *Controller) SetGains(g skeleton.Gains) {
	if ok(g.Kp) && ok(g.Kd) {
		c.kp, c.kd = g.Kp, g.Kd
	}
}

func ok(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

// Step applies kp*err - kd*omega about the primary axis, scaled by the
// child's mass, to the child and the opposite torque to the parent. A
// missing joint or body counts as a fault and the tick is skipped.
func (c *Controller) Step(dt float64) {
	if !c.enabled {
		return
	}
	if c.joint == nil || c.joint.Child == nil || c.joint.Parent == nil {
		c.fault("missing joint or body")
		return
	}
	child := c.joint.Child
	axis := c.joint.PrimaryAxisWorld()
	current := c.joint.Angle(0)
	omega := r3.Dot(child.AngularVelocity, axis)

	torque := Torque(c.kp, c.kd, c.target, current, omega)
	if math.IsNaN(torque) || math.IsInf(torque, 0) {
		c.fault("non-finite torque")
		return
	}
	c.lastTorque = torque
	applied := r3.Scale(torque*child.Mass, axis)
	child.AddTorque(applied)
	c.joint.Parent.AddTorque(r3.Scale(-1, applied))
}

func (c *Controller) fault(reason string) {
	c.faults++
	c.lastTorque = 0
	if c.faults == 1 {
		c.logger.Debug("actuator fault, skipping torque", zap.String("reason", reason))
	}
}

func (c *Controller) Name() string {
	return c.name
}

// Target is the target angle in radians
func (c *Controller) Target() float64 {
	return c.target
}

func (c *Controller) Normalized() float64 {
	return c.normalized
}

// Angle is the current signed angle of the primary axis, 0 when the joint is missing
func (c *Controller) Angle() float64 {
	if c.joint == nil || c.joint.Child == nil || c.joint.Parent == nil {
		return 0
	}
	return c.joint.Angle(0)
}

// AngularVelocity is the child's angular velocity about the primary axis
func (c *Controller) AngularVelocity() float64 {
	if c.joint == nil || c.joint.Child == nil || c.joint.Parent == nil {
		return 0
	}
	return r3.Dot(c.joint.Child.AngularVelocity, c.joint.PrimaryAxisWorld())
}

func (c *Controller) Enabled() bool {
	return c.enabled
}

func (c *Controller) Gains() skeleton.Gains {
	return skeleton.Gains{Kp: c.kp, Kd: c.kd}
}

func (c *Controller) Limits() r1.Interval {
	return c.limits
}

// Faults counts ticks skipped because of an actuator fault
func (c *Controller) Faults() int {
	return c.faults
}

// LastTorque is the unscaled torque of the latest successful Step
func (c *Controller) LastTorque() float64 {
	return c.lastTorque
}

// State is a copy of the controller's readable state
type State struct {
	Name       string  `json:"name"`
	Target     float64 `json:"target"`
	Normalized float64 `json:"normalized"`
	Angle      float64 `json:"angle"`
	Velocity   float64 `json:"velocity"`
	Enabled    bool    `json:"enabled"`
	Torque     float64 `json:"torque"`
	Faults     int     `json:"faults"`
}

func (c *Controller) State() State {
	return State{
		Name:       c.name,
		Target:     c.target,
		Normalized: c.normalized,
		Angle:      c.Angle(),
		Velocity:   c.AngularVelocity(),
		Enabled:    c.enabled,
		Torque:     c.lastTorque,
		Faults:     c.faults,
	}
}
