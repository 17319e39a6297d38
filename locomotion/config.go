package locomotion

import (
	"fmt"
	"math"
)

// Config holds the reward shaping weights and termination thresholds of the
// locomotion task
type Config struct {
	// SpawnOffset lifts the root above the spawn point to avoid starting in
	// ground contact
	SpawnOffset float64 `mapstructure:"spawn_offset" yaml:"spawn_offset"`

	TargetVelocity   float64 `mapstructure:"target_velocity" yaml:"target_velocity"`
	VelocityWeight   float64 `mapstructure:"velocity_weight" yaml:"velocity_weight"`
	UprightWeight    float64 `mapstructure:"upright_weight" yaml:"upright_weight"`
	UprightThreshold float64 `mapstructure:"upright_threshold" yaml:"upright_threshold"`
	EnergyWeight     float64 `mapstructure:"energy_weight" yaml:"energy_weight"`

	FallThreshold float64 `mapstructure:"fall_threshold" yaml:"fall_threshold"`
	MinHeight     float64 `mapstructure:"min_height" yaml:"min_height"`
	MaxSteps      int     `mapstructure:"max_steps" yaml:"max_steps"`
	// MaxDuration is in simulated seconds
	MaxDuration float64 `mapstructure:"max_duration" yaml:"max_duration"`
}

func DefaultConfig() Config {
	return Config{
		SpawnOffset:      0.05,
		TargetVelocity:   1,
		VelocityWeight:   1,
		UprightWeight:    0.5,
		UprightThreshold: 0.8,
		EnergyWeight:     0.01,
		FallThreshold:    0.3,
		MinHeight:        0.3,
		MaxSteps:         1000,
		MaxDuration:      20,
	}
}

func (c Config) Validate() error {
	if !(c.TargetVelocity > 0) || math.IsInf(c.TargetVelocity, 0) {
		return fmt.Errorf("target velocity must be positive, got %v", c.TargetVelocity)
	}
	weights := map[string]float64{
		"velocity_weight": c.VelocityWeight,
		"upright_weight":  c.UprightWeight,
		"energy_weight":   c.EnergyWeight,
	}
	for name, w := range weights {
		if !(w >= 0) || math.IsInf(w, 0) {
			return fmt.Errorf("%s must be a finite non-negative number, got %v", name, w)
		}
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("max steps must be at least 1, got %d", c.MaxSteps)
	}
	if !(c.MaxDuration > 0) {
		return fmt.Errorf("max duration must be positive, got %v", c.MaxDuration)
	}
	if math.IsNaN(c.FallThreshold) || math.IsNaN(c.MinHeight) || math.IsNaN(c.SpawnOffset) {
		return fmt.Errorf("thresholds must be numbers")
	}
	return nil
}
