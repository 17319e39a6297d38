package physics

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// GroundPlane is a horizontal contact surface. Contacts are solved together
// with the joints as velocity constraints: one non-penetration row and two
// friction rows bounded by Friction times the normal impulse, so a resting
// load sticks until it exceeds the friction cone.
type GroundPlane struct {
	Height   float64 `mapstructure:"height" yaml:"height"`
	Friction float64 `mapstructure:"friction" yaml:"friction"`
	// Slop is the penetration left uncorrected so resting contacts stay quiet
	Slop float64 `mapstructure:"slop" yaml:"slop"`
}

func DefaultGround() *GroundPlane {
	return &GroundPlane{Height: 0, Friction: 0.8, Slop: 0.002}
}

type Config struct {
	Gravity        r3.Vec
	Iterations     int
	Baumgarte      float64
	LinearDamping  float64
	AngularDamping float64
	// Ground is nil for a world without contacts
	Ground *GroundPlane
}

func DefaultConfig() Config {
	return Config{
		Gravity:        r3.Vec{Y: -9.81},
		Iterations:     12,
		Baumgarte:      0.2,
		LinearDamping:  0,
		AngularDamping: 0.05,
		Ground:         DefaultGround(),
	}
}

// World integrates bodies and joints with a fixed step semi-implicit Euler
// scheme and a sequential impulse joint solver.
type World struct {
	cfg      Config
	bodies   []*Body
	joints   []*Joint
	contacts []contact
	time     float64
}

func NewWorld(cfg Config) *World {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 12
	}
	if cfg.Baumgarte <= 0 {
		cfg.Baumgarte = 0.2
	}
	return &World{
		cfg:    cfg,
		bodies: make([]*Body, 0),
		joints: make([]*Joint, 0),
	}
}

func (w *World) AddBody(b *Body) {
	w.bodies = append(w.bodies, b)
}

func (w *World) AddJoint(j *Joint) {
	w.joints = append(w.joints, j)
}

func (w *World) Bodies() []*Body {
	return w.bodies
}

func (w *World) Joints() []*Joint {
	return w.joints
}

// Time is the simulated time since the world was created
func (w *World) Time() float64 {
	return w.time
}

func (w *World) Config() Config {
	return w.cfg
}

// Step advances the world by dt. Forces and torques added since the previous
// step are consumed.
func (w *World) Step(dt float64) {
	if dt <= 0 {
		return
	}
	linDamp := math.Max(0, 1-w.cfg.LinearDamping*dt)
	angDamp := math.Max(0, 1-w.cfg.AngularDamping*dt)
	for _, b := range w.bodies {
		acc := r3.Add(w.cfg.Gravity, r3.Scale(b.invMass, b.force))
		b.LinearVelocity = r3.Scale(linDamp, r3.Add(b.LinearVelocity, r3.Scale(dt, acc)))
		dw := r3.Scale(dt, b.applyInvInertia(b.torque))
		b.AngularVelocity = r3.Scale(angDamp, r3.Add(b.AngularVelocity, dw))
	}

	for _, j := range w.joints {
		j.prepare(dt, w.cfg.Baumgarte)
	}
	w.prepareContacts(dt)
	for it := 0; it < w.cfg.Iterations; it++ {
		for _, j := range w.joints {
			j.solve()
		}
		for i := range w.contacts {
			w.contacts[i].solve(w.cfg.Ground.Friction)
		}
	}

	for _, b := range w.bodies {
		b.Position = r3.Add(b.Position, r3.Scale(dt, b.LinearVelocity))
		b.Orientation = integrateOrientation(b.Orientation, b.AngularVelocity, dt)
		b.clearAccumulators()
	}
	w.time += dt
}

func integrateOrientation(q quat.Number, omega r3.Vec, dt float64) quat.Number {
	spin := quat.Mul(quat.Number{Imag: omega.X, Jmag: omega.Y, Kmag: omega.Z}, q)
	return Normalize(quat.Add(q, quat.Scale(0.5*dt, spin)))
}

// contact is one point of a body below the ground plane. rows[0] is the
// normal, rows[1] and rows[2] the friction directions.
type contact struct {
	body *Body
	r    r3.Vec
	push float64
	rows [3]contactRow
}

type contactRow struct {
	dir     r3.Vec
	effMass float64
	accum   float64
}

var contactDirs = [3]r3.Vec{Up, Right, Forward}

func (w *World) prepareContacts(dt float64) {
	w.contacts = w.contacts[:0]
	g := w.cfg.Ground
	if g == nil {
		return
	}
	for _, b := range w.bodies {
		if b.invMass == 0 {
			continue
		}
		for _, p := range contactPoints(b) {
			depth := g.Height - p.Y
			if depth <= 0 {
				continue
			}
			c := contact{
				body: b,
				r:    r3.Sub(p, b.Position),
				push: w.cfg.Baumgarte / dt * math.Max(depth-g.Slop, 0),
			}
			for i, dir := range contactDirs {
				rn := r3.Cross(c.r, dir)
				c.rows[i] = contactRow{dir: dir, effMass: 1 / (b.invMass + r3.Dot(rn, b.applyInvInertia(rn)))}
			}
			w.contacts = append(w.contacts, c)
		}
	}
}

// contactPoints are the world points of b tested against the ground
func contactPoints(b *Body) []r3.Vec {
	switch b.Shape.Kind {
	case SphereShape:
		return []r3.Vec{r3.Sub(b.Position, r3.Scale(b.Shape.Radius, Up))}
	case BoxShape:
		corners := b.Shape.corners()
		points := make([]r3.Vec, len(corners))
		for i, c := range corners {
			points[i] = b.ToWorld(c)
		}
		return points
	}
	return nil
}

func (c *contact) solve(friction float64) {
	b := c.body
	normal := &c.rows[0]
	vn := r3.Dot(b.velocityAtArm(c.r), normal.dir)
	lambda := normal.effMass * (c.push - vn)
	prev := normal.accum
	normal.accum = math.Max(prev+lambda, 0)
	b.applyImpulse(r3.Scale(normal.accum-prev, normal.dir), c.r)

	limit := friction * normal.accum
	for i := 1; i < len(c.rows); i++ {
		row := &c.rows[i]
		vt := r3.Dot(b.velocityAtArm(c.r), row.dir)
		prev := row.accum
		row.accum = math.Min(math.Max(prev-row.effMass*vt, -limit), limit)
		b.applyImpulse(r3.Scale(row.accum-prev, row.dir), c.r)
	}
}
