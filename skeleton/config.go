package skeleton

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/zeu5/locomotion-rl/physics"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Limit is an angular range in degrees
type Limit struct {
	Min float64 `mapstructure:"min" yaml:"min"`
	Max float64 `mapstructure:"max" yaml:"max"`
}

// Radians converts the limit to an interval in radians
func (l Limit) Radians() r1.Interval {
	return r1.Interval{Min: l.Min * math.Pi / 180, Max: l.Max * math.Pi / 180}
}

// Gains are the default PD parameters of a joint
type Gains struct {
	Kp float64 `mapstructure:"kp" yaml:"kp"`
	Kd float64 `mapstructure:"kd" yaml:"kd"`
}

// JointConfig describes how a part attaches to its parent
type JointConfig struct {
	// Type is "hinge" or "spherical"
	Type string `mapstructure:"type" yaml:"type"`
	// Axis is the primary rotation axis in the parent frame, +X when omitted
	Axis r3.Vec `mapstructure:"axis" yaml:"axis"`
	// Direction is the world direction, from the child centre, used to
	// resolve the anchor on the child's surface. Defaults to the direction of
	// the parent centre.
	Direction *r3.Vec `mapstructure:"direction" yaml:"direction,omitempty"`
	// Limits in degrees: one for a hinge, up to three for a spherical joint
	// (primary axis first). Missing spherical axes are free.
	Limits []Limit `mapstructure:"limits" yaml:"limits"`
	Gains  Gains   `mapstructure:"gains" yaml:"gains"`
}

// PartConfig describes one body part. Offset and Rotation (Euler degrees)
// are relative to the parent, or to the world for the root.
type PartConfig struct {
	Name        string       `mapstructure:"name" yaml:"name"`
	Parent      string       `mapstructure:"parent" yaml:"parent,omitempty"`
	Shape       string       `mapstructure:"shape" yaml:"shape"`
	HalfExtents r3.Vec       `mapstructure:"half_extents" yaml:"half_extents,omitempty"`
	Radius      float64      `mapstructure:"radius" yaml:"radius,omitempty"`
	Mass        float64      `mapstructure:"mass" yaml:"mass"`
	Offset      r3.Vec       `mapstructure:"offset" yaml:"offset"`
	Rotation    r3.Vec       `mapstructure:"rotation" yaml:"rotation,omitempty"`
	Joint       *JointConfig `mapstructure:"joint" yaml:"joint,omitempty"`
}

// Config is the declarative description of a skeleton. Parts are created in
// declaration order so a parent must precede its children.
type Config struct {
	Name  string       `mapstructure:"name" yaml:"name"`
	Parts []PartConfig `mapstructure:"parts" yaml:"parts"`
}

// LoadConfig reads a YAML skeleton description
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading skeleton config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decoding skeleton config %s: %w", path, err)
	}
	return cfg, nil
}

// ShapeValue converts the collision volume description
func (p PartConfig) ShapeValue() (physics.Shape, error) {
	kind, err := physics.ParseShapeKind(p.Shape)
	if err != nil {
		return physics.Shape{}, err
	}
	switch kind {
	case physics.BoxShape:
		return physics.NewBox(p.HalfExtents), nil
	default:
		return physics.NewSphere(p.Radius), nil
	}
}

// LocalPose is the rest transform of the part relative to its parent
func (p PartConfig) LocalPose() physics.Pose {
	return physics.NewPose(p.Offset, physics.FromEulerDegrees(p.Rotation.X, p.Rotation.Y, p.Rotation.Z))
}

// Kind parses the joint type
func (j JointConfig) Kind() (physics.JointKind, error) {
	switch strings.ToLower(strings.TrimSpace(j.Type)) {
	case "hinge":
		return physics.Hinge, nil
	case "spherical":
		return physics.Spherical, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownJoint, j.Type)
}

// PrimaryAxis returns the configured axis or +X
func (j JointConfig) PrimaryAxis() r3.Vec {
	if r3.Norm(j.Axis) == 0 {
		return physics.Right
	}
	return physics.Unit(j.Axis)
}

// Validate checks the whole configuration without touching a world
func (c Config) Validate() error {
	if len(c.Parts) == 0 {
		return &ConfigurationError{Reason: "no parts", Err: ErrEmptyConfig}
	}
	seen := make(map[string]bool)
	roots := 0
	for _, p := range c.Parts {
		if p.Name == "" {
			return configError(p.Name, "name", nil, "empty part name")
		}
		if seen[p.Name] {
			return configError(p.Name, "name", ErrDuplicatePart, "declared twice")
		}
		shape, err := p.ShapeValue()
		if err != nil {
			return configError(p.Name, "shape", err, "")
		}
		if err := shape.Validate(); err != nil {
			return configError(p.Name, "shape", err, "")
		}
		if !(p.Mass > 0) || math.IsInf(p.Mass, 0) {
			return configError(p.Name, "mass", physics.ErrNonPositiveMass, "got %v", p.Mass)
		}

		if p.Parent == "" {
			roots++
			if roots > 1 {
				return configError(p.Name, "parent", ErrMultipleRoots, "")
			}
		} else {
			if !seen[p.Parent] {
				return configError(p.Name, "parent", ErrUnknownParent, "parent %q", p.Parent)
			}
			if p.Joint == nil {
				return configError(p.Name, "joint", ErrMissingJoint, "")
			}
			if err := p.Joint.validate(p.Name); err != nil {
				return err
			}
		}
		seen[p.Name] = true
	}
	if roots == 0 {
		return &ConfigurationError{Err: ErrNoRoot}
	}
	return nil
}

func (j JointConfig) validate(part string) error {
	kind, err := j.Kind()
	if err != nil {
		return configError(part, "joint.type", err, "")
	}
	if err := validateLimits(kind, j.Limits); err != nil {
		return configError(part, "joint.limits", err, "")
	}
	if err := validateGains(j.Gains); err != nil {
		return configError(part, "joint.gains", err, "")
	}
	return nil
}

// validateLimits accepts ordered limits inside (-180, 180] degrees
func validateLimits(kind physics.JointKind, limits []Limit) error {
	switch kind {
	case physics.Hinge:
		if len(limits) != 1 {
			return fmt.Errorf("%w: hinge needs exactly one limit, got %d", ErrInvalidLimit, len(limits))
		}
	case physics.Spherical:
		if len(limits) == 0 || len(limits) > 3 {
			return fmt.Errorf("%w: spherical joint needs one to three limits, got %d", ErrInvalidLimit, len(limits))
		}
	}
	for i, l := range limits {
		if math.IsNaN(l.Min) || math.IsNaN(l.Max) {
			return fmt.Errorf("%w: axis %d is not a number", ErrInvalidLimit, i)
		}
		if l.Min > l.Max {
			return fmt.Errorf("%w: axis %d min %v > max %v", ErrInvalidLimit, i, l.Min, l.Max)
		}
		if l.Min <= -180 || l.Max > 180 {
			return fmt.Errorf("%w: axis %d range [%v, %v] outside (-180, 180]", ErrInvalidLimit, i, l.Min, l.Max)
		}
	}
	return nil
}

func validateGains(g Gains) error {
	for _, v := range []float64{g.Kp, g.Kd} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: kp=%v kd=%v", ErrInvalidGains, g.Kp, g.Kd)
		}
	}
	return nil
}
