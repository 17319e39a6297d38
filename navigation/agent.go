package navigation

import (
	"fmt"
	"math"

	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/types"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

type Config struct {
	Arena Arena `mapstructure:"arena" yaml:"arena"`
	// Goal position on the ground plane
	GoalX      float64 `mapstructure:"goal_x" yaml:"goal_x"`
	GoalZ      float64 `mapstructure:"goal_z" yaml:"goal_z"`
	GoalRadius float64 `mapstructure:"goal_radius" yaml:"goal_radius"`

	Rays int `mapstructure:"rays" yaml:"rays"`
	// FOV is the angle covered by the rays in degrees
	FOV      float64 `mapstructure:"fov" yaml:"fov"`
	MaxRange float64 `mapstructure:"max_range" yaml:"max_range"`

	AgentRadius float64 `mapstructure:"agent_radius" yaml:"agent_radius"`
	MaxSpeed    float64 `mapstructure:"max_speed" yaml:"max_speed"`
	// MaxTurnRate in radians per second
	MaxTurnRate float64 `mapstructure:"max_turn_rate" yaml:"max_turn_rate"`

	ProgressWeight   float64 `mapstructure:"progress_weight" yaml:"progress_weight"`
	StepCost         float64 `mapstructure:"step_cost" yaml:"step_cost"`
	GoalBonus        float64 `mapstructure:"goal_bonus" yaml:"goal_bonus"`
	CollisionPenalty float64 `mapstructure:"collision_penalty" yaml:"collision_penalty"`
	MaxSteps         int     `mapstructure:"max_steps" yaml:"max_steps"`
}

func DefaultConfig() Config {
	return Config{
		Arena: Arena{
			HalfSize: 10,
			Obstacles: []Obstacle{
				{X: 3, Z: 4, Radius: 1},
				{X: -4, Z: 2, Radius: 1.5},
			},
		},
		GoalX:            0,
		GoalZ:            8,
		GoalRadius:       0.5,
		Rays:             9,
		FOV:              120,
		MaxRange:         10,
		AgentRadius:      0.25,
		MaxSpeed:         2,
		MaxTurnRate:      math.Pi,
		ProgressWeight:   1,
		StepCost:         0.01,
		GoalBonus:        10,
		CollisionPenalty: 5,
		MaxSteps:         1000,
	}
}

func (c Config) Validate() error {
	if c.Rays < 1 {
		return fmt.Errorf("at least one ray is needed, got %d", c.Rays)
	}
	if c.FOV < 0 || c.FOV > 360 {
		return fmt.Errorf("fov must be within [0, 360], got %v", c.FOV)
	}
	if !(c.MaxRange > 0) || !(c.AgentRadius > 0) || !(c.GoalRadius > 0) || !(c.MaxSpeed > 0) {
		return fmt.Errorf("ranges, radii and speed must be positive")
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("max steps must be at least 1, got %d", c.MaxSteps)
	}
	for i, o := range c.Arena.Obstacles {
		if !(o.Radius > 0) {
			return fmt.Errorf("obstacle %d: radius must be positive", i)
		}
	}
	return nil
}

// WorldConfig is a flat world without gravity, damping or contacts; the
// agent's body is moved kinematically
func WorldConfig() physics.Config {
	cfg := physics.DefaultConfig()
	cfg.Gravity = r3.Vec{}
	cfg.Ground = nil
	cfg.AngularDamping = 0
	cfg.LinearDamping = 0
	return cfg
}

// Agent steers a disc on the ground plane towards a goal, sensing
// obstacles with a fan of rays. Action is [turn, throttle].
type Agent struct {
	name   string
	cfg    Config
	body   *physics.Body
	logger *zap.Logger

	turn, throttle float64
	prevDistance   float64
	reached        bool
	collided       bool
}

var _ types.Task = &Agent{}

// NewAgent creates the agent's body and adds it to world
func NewAgent(name string, world *physics.World, cfg Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("navigation agent %s: %w", name, err)
	}
	body, err := physics.NewBody(name, physics.NewSphere(cfg.AgentRadius), 1)
	if err != nil {
		return nil, err
	}
	body.SetPose(r3.Vec{Y: cfg.AgentRadius}, physics.Identity)
	world.AddBody(body)
	return &Agent{
		name:   name,
		cfg:    cfg,
		body:   body,
		logger: zap.L().Named("navigation").With(zap.String("agent", name)),
	}, nil
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) Body() *physics.Body {
	return a.body
}

func (a *Agent) Bodies() []*physics.Body {
	return []*physics.Body{a.body}
}

func (a *Agent) goal() r2.Vec {
	return r2.Vec{X: a.cfg.GoalX, Y: a.cfg.GoalZ}
}

func (a *Agent) position() r2.Vec {
	return planar(a.body.Position)
}

func (a *Agent) heading() r2.Vec {
	return r2.Unit(planar(a.body.Forward()))
}

// Distance to the goal centre
func (a *Agent) Distance() float64 {
	return r2.Norm(r2.Sub(a.goal(), a.position()))
}

func (a *Agent) Reset(spawn physics.Pose) {
	p := spawn.Position
	p.Y = a.cfg.AgentRadius
	// only the heading of the spawn orientation is kept
	fwd := planar(physics.Rotate(spawn.Orientation, physics.Forward))
	yaw := 0.0
	if r2.Norm(fwd) > 0 {
		yaw = math.Atan2(fwd.X, fwd.Y)
	}
	a.body.SetPose(p, physics.AxisAngle(physics.Up, yaw))
	a.body.ZeroVelocity()
	a.turn, a.throttle = 0, 0
	a.reached, a.collided = false, false
	a.prevDistance = a.Distance()
}

func (a *Agent) ObservationSize() int {
	return a.cfg.Rays + 3
}

func (a *Agent) ActionSize() int {
	return 2
}

// rayAngles spreads the rays evenly over the field of view, from +FOV/2 to -FOV/2
func (a *Agent) rayAngles() []float64 {
	out := make([]float64, a.cfg.Rays)
	if a.cfg.Rays == 1 {
		return out
	}
	half := a.cfg.FOV / 2 * math.Pi / 180
	inc := 2 * half / float64(a.cfg.Rays-1)
	for i := range out {
		out[i] = half - float64(i)*inc
	}
	return out
}

// Depths are the normalized log distances seen by each ray, 1 when nothing
// is in range
func (a *Agent) Depths() []float64 {
	maxLog := math.Log(1 + a.cfg.MaxRange)
	origin := a.position()
	heading := a.heading()
	out := make([]float64, a.cfg.Rays)
	for i, ang := range a.rayAngles() {
		d := a.cfg.Arena.Cast(origin, turn(heading, ang), a.cfg.MaxRange)
		if math.IsInf(d, 1) {
			out[i] = 1
			continue
		}
		out[i] = math.Log(1+d) / maxLog
	}
	return out
}

// CollectObservations returns the ray depths, the goal direction in the
// agent frame and the goal distance over the arena size
func (a *Agent) CollectObservations() []float64 {
	obs := a.Depths()
	toGoal := r3.Sub(r3.Vec{X: a.cfg.GoalX, Y: a.body.Position.Y, Z: a.cfg.GoalZ}, a.body.Position)
	local := physics.Unit(a.body.DirectionToLocal(toGoal))
	scale := 2 * a.cfg.Arena.HalfSize
	if scale <= 0 {
		scale = a.cfg.MaxRange
	}
	return append(obs, local.X, local.Z, a.Distance()/scale)
}

func (a *Agent) ApplyAction(action []float64) {
	a.turn, a.throttle = action[0], action[1]
}

func (a *Agent) Deactivate() {
	a.turn, a.throttle = 0, 0
}

// Actuate sets the body velocities from the current command
func (a *Agent) Actuate(float64) {
	a.body.LinearVelocity = r3.Scale(a.throttle*a.cfg.MaxSpeed, a.body.Forward())
	a.body.AngularVelocity = r3.Scale(a.turn*a.cfg.MaxTurnRate, physics.Up)
}

// ComputeReward pays for progress towards the goal, adds the goal bonus or
// collision penalty on the tick they happen
func (a *Agent) ComputeReward([]float64) float64 {
	d := a.Distance()
	reward := a.cfg.ProgressWeight*(a.prevDistance-d) - a.cfg.StepCost
	a.prevDistance = d
	if d <= a.cfg.GoalRadius {
		a.reached = true
		reward += a.cfg.GoalBonus
		a.logger.Debug("goal reached", zap.Float64("distance", d))
	} else if a.cfg.Arena.Collides(a.position(), a.cfg.AgentRadius) {
		a.collided = true
		reward -= a.cfg.CollisionPenalty
		a.logger.Debug("collided", zap.Float64("x", a.body.Position.X), zap.Float64("z", a.body.Position.Z))
	}
	return reward
}

func (a *Agent) CheckTermination(ctx *types.EpisodeContext) types.TerminationReason {
	switch {
	case a.reached || a.Distance() <= a.cfg.GoalRadius:
		return types.Success
	case a.collided || a.cfg.Arena.Collides(a.position(), a.cfg.AgentRadius):
		return types.Collided
	case ctx.Step >= a.cfg.MaxSteps:
		return types.Timeout
	}
	return types.NotTerminated
}
