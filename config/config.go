package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zeu5/locomotion-rl/locomotion"
	"github.com/zeu5/locomotion-rl/navigation"
	"github.com/zeu5/locomotion-rl/types"
)

// EnvPrefix prefixes the environment overrides, e.g. LOCO_EXPERIMENT_EPISODES
const EnvPrefix = "LOCO"

type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	// LogFile enables a rotated JSON log next to the console output
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type ExperimentConfig struct {
	Runs         int    `mapstructure:"runs" yaml:"runs"`
	Episodes     int    `mapstructure:"episodes" yaml:"episodes"`
	Horizon      int    `mapstructure:"horizon" yaml:"horizon"`
	SavePath     string `mapstructure:"save" yaml:"save"`
	RecordTraces bool   `mapstructure:"record_traces" yaml:"record_traces"`
	ShowProgress bool   `mapstructure:"show_progress" yaml:"show_progress"`
	// HousekeepingEvery runs memory housekeeping every n global episodes, 0
	// disables it
	HousekeepingEvery int64 `mapstructure:"housekeeping_every" yaml:"housekeeping_every"`
}

// SpawnConfig describes the jittered placement around the origin
type SpawnConfig struct {
	Radius   float64 `mapstructure:"radius" yaml:"radius"`
	YawRange float64 `mapstructure:"yaw_range" yaml:"yaw_range"`
	Seed     uint64  `mapstructure:"seed" yaml:"seed"`
}

// RedisConfig enables the shared episode counter when Addr is set
type RedisConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	Key  string `mapstructure:"key" yaml:"key"`
}

// DebugConfig enables the debug view server when Addr is set
type DebugConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type PolicyConfig struct {
	// Checkpoint is a linear policy file; empty uses a random policy
	Checkpoint string `mapstructure:"checkpoint" yaml:"checkpoint"`
	// Remote is the address of a policy server, preferred over Checkpoint
	Remote  string        `mapstructure:"remote" yaml:"remote"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Seed    uint64        `mapstructure:"seed" yaml:"seed"`
}

type Config struct {
	Logger     LoggerConfig           `mapstructure:"logger" yaml:"logger"`
	Simulation types.SimulationConfig `mapstructure:"simulation" yaml:"simulation"`
	// Skeleton is the skeleton file; empty uses the built-in crawler
	Skeleton   string            `mapstructure:"skeleton" yaml:"skeleton"`
	Locomotion locomotion.Config `mapstructure:"locomotion" yaml:"locomotion"`
	Navigation navigation.Config `mapstructure:"navigation" yaml:"navigation"`
	Spawn      SpawnConfig       `mapstructure:"spawn" yaml:"spawn"`
	Experiment ExperimentConfig  `mapstructure:"experiment" yaml:"experiment"`
	Policy     PolicyConfig      `mapstructure:"policy" yaml:"policy"`
	Redis      RedisConfig       `mapstructure:"redis" yaml:"redis"`
	Debug      DebugConfig       `mapstructure:"debug" yaml:"debug"`
}

// SetDefaults registers every key so that environment overrides apply to it
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "locomotion")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", false)

	sim := types.DefaultSimulationConfig()
	v.SetDefault("simulation.physics_step", sim.PhysicsStep)
	v.SetDefault("simulation.decision_period", sim.DecisionPeriod)

	v.SetDefault("skeleton", "")

	loco := locomotion.DefaultConfig()
	v.SetDefault("locomotion.spawn_offset", loco.SpawnOffset)
	v.SetDefault("locomotion.target_velocity", loco.TargetVelocity)
	v.SetDefault("locomotion.velocity_weight", loco.VelocityWeight)
	v.SetDefault("locomotion.upright_weight", loco.UprightWeight)
	v.SetDefault("locomotion.upright_threshold", loco.UprightThreshold)
	v.SetDefault("locomotion.energy_weight", loco.EnergyWeight)
	v.SetDefault("locomotion.fall_threshold", loco.FallThreshold)
	v.SetDefault("locomotion.min_height", loco.MinHeight)
	v.SetDefault("locomotion.max_steps", loco.MaxSteps)
	v.SetDefault("locomotion.max_duration", loco.MaxDuration)

	nav := navigation.DefaultConfig()
	obstacles := make([]map[string]interface{}, 0, len(nav.Arena.Obstacles))
	for _, o := range nav.Arena.Obstacles {
		obstacles = append(obstacles, map[string]interface{}{"x": o.X, "z": o.Z, "radius": o.Radius})
	}
	v.SetDefault("navigation.arena.half_size", nav.Arena.HalfSize)
	v.SetDefault("navigation.arena.obstacles", obstacles)
	v.SetDefault("navigation.goal_x", nav.GoalX)
	v.SetDefault("navigation.goal_z", nav.GoalZ)
	v.SetDefault("navigation.goal_radius", nav.GoalRadius)
	v.SetDefault("navigation.rays", nav.Rays)
	v.SetDefault("navigation.fov", nav.FOV)
	v.SetDefault("navigation.max_range", nav.MaxRange)
	v.SetDefault("navigation.agent_radius", nav.AgentRadius)
	v.SetDefault("navigation.max_speed", nav.MaxSpeed)
	v.SetDefault("navigation.max_turn_rate", nav.MaxTurnRate)
	v.SetDefault("navigation.progress_weight", nav.ProgressWeight)
	v.SetDefault("navigation.step_cost", nav.StepCost)
	v.SetDefault("navigation.goal_bonus", nav.GoalBonus)
	v.SetDefault("navigation.collision_penalty", nav.CollisionPenalty)
	v.SetDefault("navigation.max_steps", nav.MaxSteps)

	v.SetDefault("spawn.radius", 0.5)
	v.SetDefault("spawn.yaw_range", math.Pi)
	v.SetDefault("spawn.seed", 1)

	v.SetDefault("experiment.runs", 1)
	v.SetDefault("experiment.episodes", 100)
	v.SetDefault("experiment.horizon", 1000)
	v.SetDefault("experiment.save", "results")
	v.SetDefault("experiment.record_traces", false)
	v.SetDefault("experiment.show_progress", true)
	v.SetDefault("experiment.housekeeping_every", 100)

	v.SetDefault("policy.checkpoint", "")
	v.SetDefault("policy.remote", "")
	v.SetDefault("policy.timeout", "1s")
	v.SetDefault("policy.seed", 0)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.key", "locomotion:episodes")

	v.SetDefault("debug.addr", "")
}

// New returns a viper instance with the defaults and LOCO_ environment
// overrides in place
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional YAML file at path over the defaults
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return NewConfigFromViper(v)
}

func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default is the configuration with no file and no environment
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if err := c.Locomotion.Validate(); err != nil {
		return fmt.Errorf("locomotion: %w", err)
	}
	if err := c.Navigation.Validate(); err != nil {
		return fmt.Errorf("navigation: %w", err)
	}
	if err := c.Experiment.Validate(); err != nil {
		return fmt.Errorf("experiment: %w", err)
	}
	if c.Policy.Timeout <= 0 {
		return errors.New("policy: timeout must be positive")
	}
	if c.Spawn.Radius < 0 || c.Spawn.YawRange < 0 {
		return errors.New("spawn: radius and yaw range must not be negative")
	}
	return nil
}

func (e ExperimentConfig) Validate() error {
	if e.Runs < 1 {
		return fmt.Errorf("runs must be at least 1, got %d", e.Runs)
	}
	if e.Episodes < 1 {
		return fmt.Errorf("episodes must be at least 1, got %d", e.Episodes)
	}
	if e.Horizon < 1 {
		return fmt.Errorf("horizon must be at least 1, got %d", e.Horizon)
	}
	if e.HousekeepingEvery < 0 {
		return fmt.Errorf("housekeeping interval must not be negative")
	}
	return nil
}
