package skeleton

import (
	"errors"
	"fmt"
	"math"

	"github.com/zeu5/locomotion-rl/physics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/spatial/r3"
)

// SphereAnchorEpsilon pushes sphere anchors just outside the collider surface
const SphereAnchorEpsilon = 1e-3

// surfaceTolerance is how far a shared anchor may sit from the parent's
// surface; it covers the sphere epsilon on either side
const surfaceTolerance = 2 * SphereAnchorEpsilon

// AnchorLocal returns the point on shape's surface along the local direction d.
// Box anchors take the sign of each component of d, so a zero component
// lands on the middle of that axis.
func AnchorLocal(shape physics.Shape, d r3.Vec) r3.Vec {
	switch shape.Kind {
	case physics.BoxShape:
		h := shape.HalfExtents
		return r3.Vec{X: sign(d.X) * h.X, Y: sign(d.Y) * h.Y, Z: sign(d.Z) * h.Z}
	case physics.SphereShape:
		return r3.Scale(shape.Radius+SphereAnchorEpsilon, physics.Unit(d))
	}
	return r3.Vec{}
}

// OnSurface reports whether the local point p lies on shape's surface within tol
func OnSurface(shape physics.Shape, p r3.Vec, tol float64) bool {
	switch shape.Kind {
	case physics.BoxShape:
		h := shape.HalfExtents
		gx, gy, gz := math.Abs(p.X)-h.X, math.Abs(p.Y)-h.Y, math.Abs(p.Z)-h.Z
		if gx > tol || gy > tol || gz > tol {
			return false
		}
		return gx >= -tol || gy >= -tol || gz >= -tol
	case physics.SphereShape:
		return math.Abs(r3.Norm(p)-shape.Radius) <= SphereAnchorEpsilon+tol
	}
	return false
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// Builder creates body parts and joints inside a physics world and assembles
// them into a Skeleton
type Builder struct {
	world  *physics.World
	logger *zap.Logger

	// anchor consistency check, disabled when negative
	tolerance float64
	strict    bool

	parts  []*BodyPart
	joints []*JointSpec
	done   bool
}

type Option func(*Builder)

func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithAnchorTolerance logs a warning when the two anchors handed to
// ConnectJoint are further apart than tol
func WithAnchorTolerance(tol float64) Option {
	return func(b *Builder) {
		b.tolerance = tol
	}
}

// WithStrictAnchors turns an anchor mismatch into a ConfigurationError
func WithStrictAnchors() Option {
	return func(b *Builder) {
		b.strict = true
		if b.tolerance < 0 {
			b.tolerance = 1e-6
		}
	}
}

func NewBuilder(world *physics.World, opts ...Option) *Builder {
	b := &Builder{
		world:     world,
		logger:    zap.L().Named("skeleton"),
		tolerance: -1,
		parts:     make([]*BodyPart, 0),
		joints:    make([]*JointSpec, 0),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// CreateBodyPart allocates a rigid body with the given collision volume at
// local relative to parent (relative to the world when parent is nil) and
// adds it to the world
func (b *Builder) CreateBodyPart(name string, shape physics.Shape, mass float64, local physics.Pose, parent *BodyPart) (*BodyPart, error) {
	if b.done {
		return nil, configError(name, "", ErrSkeletonBuilt, "")
	}
	for _, p := range b.parts {
		if p.Name == name {
			return nil, configError(name, "name", ErrDuplicatePart, "declared twice")
		}
	}
	body, err := physics.NewBody(name, shape, mass)
	if err != nil {
		field := "shape"
		if errors.Is(err, physics.ErrNonPositiveMass) {
			field = "mass"
		}
		return nil, configError(name, field, err, "")
	}

	local = physics.NewPose(local.Position, local.Orientation)
	parentIndex := -1
	world := local
	if parent == nil {
		if len(b.parts) > 0 {
			return nil, configError(name, "parent", ErrMultipleRoots, "")
		}
	} else {
		if parent.owner != b {
			return nil, configError(name, "parent", ErrForeignBodyPart, "")
		}
		parentIndex = parent.Index
		world = parent.created.Compose(local)
	}
	body.SetPose(world.Position, world.Orientation)

	part := &BodyPart{
		Index:   len(b.parts),
		Name:    name,
		Parent:  parentIndex,
		Body:    body,
		created: world,
		owner:   b,
	}
	b.parts = append(b.parts, part)
	b.world.AddBody(body)
	return part, nil
}

// ResolveAnchor returns the world point on part's collision volume along
// worldDirection from its centre
func (b *Builder) ResolveAnchor(part *BodyPart, worldDirection r3.Vec) r3.Vec {
	return ResolveAnchor(part.Body, worldDirection)
}

// ResolveAnchor is the builder independent form of Builder.ResolveAnchor
func ResolveAnchor(body *physics.Body, worldDirection r3.Vec) r3.Vec {
	local := body.DirectionToLocal(worldDirection)
	return body.ToWorld(AnchorLocal(body.Shape, local))
}

// ConnectJoint joins child to parent at the given world anchors. Translation
// is locked; a hinge limits the primary axis and locks the other two, a
// spherical joint limits up to three axes and leaves the rest free. Limits
// are in degrees, axis is in the parent frame.
func (b *Builder) ConnectJoint(child, parent *BodyPart, anchorChild, anchorParent r3.Vec, kind physics.JointKind, axis r3.Vec, limits []Limit, gains Gains) (*JointSpec, error) {
	if b.done {
		return nil, configError(child.Name, "", ErrSkeletonBuilt, "")
	}
	if child.owner != b || parent.owner != b {
		return nil, configError(child.Name, "joint", ErrForeignBodyPart, "")
	}
	if child.Parent != parent.Index {
		return nil, configError(child.Name, "joint", ErrUnknownParent, "%q is not the parent", parent.Name)
	}
	for _, j := range b.joints {
		if j.ChildIndex == child.Index {
			return nil, configError(child.Name, "joint", ErrJointExists, "")
		}
	}
	if kind != physics.Hinge && kind != physics.Spherical {
		return nil, configError(child.Name, "joint.type", ErrUnknownJoint, "%d", kind)
	}
	if err := validateLimits(kind, limits); err != nil {
		return nil, configError(child.Name, "joint.limits", err, "")
	}
	if err := validateGains(gains); err != nil {
		return nil, configError(child.Name, "joint.gains", err, "")
	}

	if gap := r3.Norm(r3.Sub(anchorChild, anchorParent)); b.tolerance >= 0 && gap > b.tolerance {
		if b.strict {
			return nil, configError(child.Name, "joint.anchor", ErrAnchorMismatch, "gap %.6f", gap)
		}
		b.logger.Warn("joint anchors do not coincide, bodies will snap together",
			zap.String("child", child.Name),
			zap.String("parent", parent.Name),
			zap.Float64("gap", gap))
	}

	radians := make([]r1.Interval, len(limits))
	for i, l := range limits {
		radians[i] = l.Radians()
	}
	a, u, v := physics.Orthonormal(axis)
	var axes [3]physics.AngularAxis
	for i, dir := range []r3.Vec{a, u, v} {
		axes[i] = physics.AngularAxis{Axis: dir, Mode: physics.AxisFree}
		switch {
		case i < len(radians):
			axes[i].Mode = physics.AxisLimited
			axes[i].Limit = radians[i]
		case kind == physics.Hinge:
			axes[i].Mode = physics.AxisLocked
		}
	}

	joint := physics.NewJoint(
		fmt.Sprintf("%s-%s", parent.Name, child.Name),
		kind,
		parent.Body,
		child.Body,
		parent.Body.ToLocal(anchorParent),
		child.Body.ToLocal(anchorChild),
		axes,
	)
	spec := &JointSpec{
		Name:        child.Name,
		ParentIndex: parent.Index,
		ChildIndex:  child.Index,
		Kind:        kind,
		Limits:      radians,
		Gains:       gains,
		Joint:       joint,
	}
	b.joints = append(b.joints, spec)
	b.world.AddJoint(joint)

	b.logger.Debug("connected joint",
		zap.String("child", child.Name),
		zap.String("parent", parent.Name),
		zap.Stringer("kind", kind))
	return spec, nil
}

// Skeleton checks that every non-root part is jointed and freezes the
// builder
func (b *Builder) Skeleton(name string) (*Skeleton, error) {
	if b.done {
		return nil, &ConfigurationError{Err: ErrSkeletonBuilt}
	}
	if len(b.parts) == 0 {
		return nil, &ConfigurationError{Err: ErrNoRoot}
	}
	jointOf := make(map[int]*JointSpec)
	for _, j := range b.joints {
		jointOf[j.ChildIndex] = j
	}
	joints := make([]*JointSpec, 0, len(b.parts)-1)
	parents := make([]int, len(b.parts))
	byName := make(map[string]int)
	rootInv := b.parts[0].created.Inverse()
	for _, p := range b.parts {
		parents[p.Index] = p.Parent
		byName[p.Name] = p.Index
		p.rest = rootInv.Compose(p.created)
		if p.Parent < 0 {
			continue
		}
		j, ok := jointOf[p.Index]
		if !ok {
			return nil, configError(p.Name, "joint", ErrMissingJoint, "")
		}
		joints = append(joints, j)
	}
	b.done = true
	return &Skeleton{
		Name:    name,
		parts:   b.parts,
		parents: parents,
		joints:  joints,
		byName:  byName,
		home:    b.parts[0].created,
	}, nil
}

// Build validates cfg and creates the skeleton in world. Each child anchor
// is resolved on the child's surface along the joint direction (towards the
// parent centre by default) and the parent anchor is the same world point,
// which must lie on the parent's surface.
func Build(cfg Config, world *physics.World, opts ...Option) (*Skeleton, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := NewBuilder(world, opts...)
	byName := make(map[string]*BodyPart)
	for _, pc := range cfg.Parts {
		shape, _ := pc.ShapeValue()
		parent := byName[pc.Parent]
		part, err := b.CreateBodyPart(pc.Name, shape, pc.Mass, pc.LocalPose(), parent)
		if err != nil {
			return nil, err
		}
		byName[pc.Name] = part
		if parent == nil {
			continue
		}

		jc := pc.Joint
		kind, _ := jc.Kind()
		dir := r3.Sub(parent.Body.Position, part.Body.Position)
		if jc.Direction != nil {
			dir = *jc.Direction
		}
		if r3.Norm(dir) == 0 || !physics.IsFinite(dir) {
			return nil, configError(pc.Name, "joint.direction", nil, "anchor direction is degenerate")
		}
		anchor := b.ResolveAnchor(part, dir)
		if local := parent.Body.ToLocal(anchor); !OnSurface(parent.Body.Shape, local, surfaceTolerance) {
			return nil, configError(pc.Name, "offset", ErrAnchorOffSurface,
				"anchor %v is not on the surface of %q", local, parent.Name)
		}
		if _, err := b.ConnectJoint(part, parent, anchor, anchor, kind, jc.PrimaryAxis(), jc.Limits, jc.Gains); err != nil {
			return nil, err
		}
	}
	s, err := b.Skeleton(cfg.Name)
	if err != nil {
		return nil, err
	}
	b.logger.Info("built skeleton",
		zap.String("name", s.Name),
		zap.Int("parts", len(s.parts)),
		zap.Int("joints", len(s.joints)),
		zap.Float64("mass", s.Mass()))
	return s, nil
}
