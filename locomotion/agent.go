package locomotion

import (
	"fmt"
	"math"

	"github.com/zeu5/locomotion-rl/actuator"
	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/skeleton"
	"github.com/zeu5/locomotion-rl/types"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// EnergyPenalty is -w times the squared norm of the action
func EnergyPenalty(w float64, action []float64) float64 {
	sum := 0.0
	for _, a := range action {
		sum += a * a
	}
	return -w * sum
}

// Reward is the per tick shaping reward: clamped forward velocity, distance
// of the uprightness from the threshold and the energy penalty
func Reward(cfg Config, forward, upright float64, action []float64) float64 {
	v := math.Max(-cfg.TargetVelocity, math.Min(cfg.TargetVelocity, forward)) / cfg.TargetVelocity
	return cfg.VelocityWeight*v +
		cfg.UprightWeight*(upright-cfg.UprightThreshold) +
		EnergyPenalty(cfg.EnergyWeight, action)
}

// Agent is the locomotion task of one skeleton: action component i drives
// the controller of joint i
type Agent struct {
	name        string
	skel        *skeleton.Skeleton
	controllers []*actuator.Controller
	cfg         Config
	logger      *zap.Logger

	anomalies int
}

var _ types.Task = &Agent{}

type AgentOption func(*Agent)

func WithLogger(l *zap.Logger) AgentOption {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAgent(name string, skel *skeleton.Skeleton, cfg Config, opts ...AgentOption) (*Agent, error) {
	if skel == nil {
		return nil, fmt.Errorf("agent %s: nil skeleton", name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	a := &Agent{
		name:        name,
		skel:        skel,
		controllers: actuator.ForSkeleton(skel),
		cfg:         cfg,
		logger:      zap.L().Named("locomotion"),
	}
	for _, o := range opts {
		o(a)
	}
	a.logger = a.logger.With(zap.String("agent", name))
	return a, nil
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) Skeleton() *skeleton.Skeleton {
	return a.skel
}

func (a *Agent) Controllers() []*actuator.Controller {
	return a.controllers
}

func (a *Agent) Config() Config {
	return a.cfg
}

// Bodies lists the rigid bodies of the skeleton in part order
func (a *Agent) Bodies() []*physics.Body {
	out := make([]*physics.Body, len(a.skel.Parts()))
	for i, p := range a.skel.Parts() {
		out[i] = p.Body
	}
	return out
}

// Anomalies counts episodes ended because the root state became non-finite
func (a *Agent) Anomalies() int {
	return a.anomalies
}

// Reset places the skeleton in its rest pose over the spawn point, lifted by
// SpawnOffset, with every body at rest and every controller re-armed
func (a *Agent) Reset(spawn physics.Pose) {
	root := physics.NewPose(spawn.Position, spawn.Orientation).Compose(a.skel.Home())
	root.Position = r3.Add(root.Position, r3.Scale(a.cfg.SpawnOffset, physics.Up))
	a.skel.ResetPose(root)
	for _, c := range a.controllers {
		c.Rearm()
	}
}

func (a *Agent) ObservationSize() int {
	return 4 + 2*len(a.controllers)
}

func (a *Agent) ActionSize() int {
	return len(a.controllers)
}

// Uprightness is the alignment of the root's up axis with world up
func (a *Agent) Uprightness() float64 {
	return r3.Dot(a.skel.Root().Body.Up(), physics.Up)
}

// ForwardVelocity is the root velocity along the root's forward axis
func (a *Agent) ForwardVelocity() float64 {
	root := a.skel.Root().Body
	return r3.Dot(root.LinearVelocity, root.Forward())
}

// CollectObservations returns uprightness, the root velocity in the root
// frame, then angle and angular velocity of every joint
func (a *Agent) CollectObservations() []float64 {
	root := a.skel.Root().Body
	obs := make([]float64, 0, a.ObservationSize())
	v := root.DirectionToLocal(root.LinearVelocity)
	obs = append(obs, a.Uprightness(), v.X, v.Y, v.Z)
	for _, c := range a.controllers {
		obs = append(obs, c.Angle(), c.AngularVelocity())
	}
	return obs
}

func (a *Agent) ApplyAction(action []float64) {
	for i, c := range a.controllers {
		if i < len(action) {
			c.SetNormalizedTarget(action[i])
		}
	}
}

func (a *Agent) Deactivate() {
	for _, c := range a.controllers {
		c.Disable()
	}
}

func (a *Agent) Actuate(dt float64) {
	for _, c := range a.controllers {
		c.Step(dt)
	}
}

func (a *Agent) ComputeReward(action []float64) float64 {
	if !a.rootFinite() {
		return 0
	}
	return Reward(a.cfg, a.ForwardVelocity(), a.Uprightness(), action)
}

func (a *Agent) CheckTermination(ctx *types.EpisodeContext) types.TerminationReason {
	root := a.skel.Root().Body
	if !a.rootFinite() {
		a.anomalies++
		a.logger.Warn("non-finite root state, ending episode as a fall",
			zap.Int("episode", ctx.Episode),
			zap.Int("step", ctx.Step))
		return types.Fell
	}
	if a.Uprightness() < a.cfg.FallThreshold || root.Position.Y < a.cfg.MinHeight {
		return types.Fell
	}
	if ctx.Step >= a.cfg.MaxSteps || ctx.Elapsed >= a.cfg.MaxDuration {
		return types.Timeout
	}
	return types.NotTerminated
}

func (a *Agent) rootFinite() bool {
	root := a.skel.Root().Body
	q := root.Orientation
	for _, v := range []float64{q.Real, q.Imag, q.Jmag, q.Kmag} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return physics.IsFinite(root.Position) &&
		physics.IsFinite(root.LinearVelocity) &&
		physics.IsFinite(root.AngularVelocity)
}
