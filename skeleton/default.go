package skeleton

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// CrawlerConfig is the built-in four legged crawler: a flat torso with a
// spherical hip and a hinged knee on each corner. Legs stand straight down
// at rest and every limit is symmetric, so a zero action holds the rest pose.
func CrawlerConfig() Config {
	up := r3.Vec{Y: 1}
	cfg := Config{
		Name: "crawler",
		Parts: []PartConfig{
			{
				Name:        "torso",
				Shape:       "box",
				HalfExtents: r3.Vec{X: 0.5, Y: 0.1, Z: 0.3},
				Mass:        4,
				Offset:      r3.Vec{Y: 0.9},
			},
		},
	}
	corners := []struct {
		name string
		x, z float64
	}{
		{"front_left", -0.4, 0.2},
		{"front_right", 0.4, 0.2},
		{"back_left", -0.4, -0.2},
		{"back_right", 0.4, -0.2},
	}
	for _, c := range corners {
		dir := up
		upper := fmt.Sprintf("%s_thigh", c.name)
		cfg.Parts = append(cfg.Parts,
			PartConfig{
				Name:        upper,
				Parent:      "torso",
				Shape:       "box",
				HalfExtents: r3.Vec{X: 0.05, Y: 0.2, Z: 0.05},
				Mass:        0.6,
				Offset:      r3.Vec{X: c.x, Y: -0.3, Z: c.z},
				Joint: &JointConfig{
					Type:      "spherical",
					Axis:      r3.Vec{X: 1},
					Direction: &dir,
					Limits:    []Limit{{Min: -40, Max: 40}, {Min: -20, Max: 20}, {Min: -10, Max: 10}},
					Gains:     Gains{Kp: 20, Kd: 1},
				},
			},
			PartConfig{
				Name:        fmt.Sprintf("%s_shin", c.name),
				Parent:      upper,
				Shape:       "box",
				HalfExtents: r3.Vec{X: 0.05, Y: 0.2, Z: 0.05},
				Mass:        0.4,
				Offset:      r3.Vec{Y: -0.4},
				Joint: &JointConfig{
					Type:      "hinge",
					Axis:      r3.Vec{X: 1},
					Direction: &dir,
					Limits:    []Limit{{Min: -30, Max: 30}},
					Gains:     Gains{Kp: 20, Kd: 1},
				},
			},
		)
	}
	return cfg
}
