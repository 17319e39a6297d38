package types

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"go.uber.org/zap"
)

// EpisodeCounter is the monotonic episode counter shared by every agent of a
// simulation, possibly across processes
type EpisodeCounter interface {
	// Next increments the counter and returns the new value
	Next(ctx context.Context) (int64, error)
	Value(ctx context.Context) (int64, error)
}

// LocalCounter is an in-process EpisodeCounter
type LocalCounter struct {
	n atomic.Int64
}

var _ EpisodeCounter = &LocalCounter{}

func (c *LocalCounter) Next(_ context.Context) (int64, error) {
	return c.n.Add(1), nil
}

func (c *LocalCounter) Value(_ context.Context) (int64, error) {
	return c.n.Load(), nil
}

// SimulationContext owns the shared episode counter and runs housekeeping
// every HousekeepingEvery episodes
type SimulationContext struct {
	Counter           EpisodeCounter
	HousekeepingEvery int64
	Housekeeping      func()

	logger *zap.Logger
}

func NewSimulationContext(counter EpisodeCounter, housekeepingEvery int64) *SimulationContext {
	if counter == nil {
		counter = &LocalCounter{}
	}
	return &SimulationContext{
		Counter:           counter,
		HousekeepingEvery: housekeepingEvery,
		Housekeeping:      debug.FreeOSMemory,
		logger:            zap.L().Named("simulation"),
	}
}

// EpisodeStarted bumps the counter. A counter failure is logged and skips
// housekeeping for that episode.
func (s *SimulationContext) EpisodeStarted(ctx context.Context) (int64, bool) {
	n, err := s.Counter.Next(ctx)
	if err != nil {
		s.logger.Warn("episode counter unavailable", zap.Error(err))
		return 0, false
	}
	if s.HousekeepingEvery > 0 && n%s.HousekeepingEvery == 0 && s.Housekeeping != nil {
		s.logger.Debug("housekeeping", zap.Int64("episode", n))
		s.Housekeeping()
	}
	return n, true
}

// Stepper advances the physics by a fixed step
type Stepper interface {
	Step(dt float64)
}

type SimulationConfig struct {
	// PhysicsStep is the fixed integration step in seconds
	PhysicsStep float64 `mapstructure:"physics_step" yaml:"physics_step"`
	// DecisionPeriod is the number of physics steps per decision tick
	DecisionPeriod int `mapstructure:"decision_period" yaml:"decision_period"`
}

func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{PhysicsStep: 0.005, DecisionPeriod: 4}
}

func (c SimulationConfig) Validate() error {
	if !(c.PhysicsStep > 0) {
		return fmt.Errorf("physics step must be positive, got %v", c.PhysicsStep)
	}
	if c.DecisionPeriod < 1 {
		return fmt.Errorf("decision period must be at least 1, got %d", c.DecisionPeriod)
	}
	return nil
}

// TickDuration is the simulated time of one decision tick
func (c SimulationConfig) TickDuration() float64 {
	return c.PhysicsStep * float64(c.DecisionPeriod)
}

// Simulation advances every driver in lockstep over one shared world: all
// drivers decide, the world takes DecisionPeriod physics steps with the
// actuators running before each one, then all drivers evaluate.
type Simulation struct {
	world   Stepper
	cfg     SimulationConfig
	sctx    *SimulationContext
	drivers []*Driver
	ticks   int
	after   []func(*Simulation)
}

func NewSimulation(world Stepper, sctx *SimulationContext, cfg SimulationConfig) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sctx == nil {
		sctx = NewSimulationContext(nil, 0)
	}
	return &Simulation{
		world:   world,
		cfg:     cfg,
		sctx:    sctx,
		drivers: make([]*Driver, 0),
		after:   make([]func(*Simulation), 0),
	}, nil
}

func (s *Simulation) AddDriver(d *Driver) {
	s.drivers = append(s.drivers, d)
}

func (s *Simulation) Drivers() []*Driver {
	return s.drivers
}

func (s *Simulation) Config() SimulationConfig {
	return s.cfg
}

func (s *Simulation) Context() *SimulationContext {
	return s.sctx
}

// Ticks counts completed decision ticks
func (s *Simulation) Ticks() int {
	return s.ticks
}

// AfterTick registers a hook run at the end of every tick, on the
// simulation goroutine
func (s *Simulation) AfterTick(fn func(*Simulation)) {
	s.after = append(s.after, fn)
}

// Tick runs one decision tick. The only error returned is the cancellation
// of ctx.
func (s *Simulation) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range s.drivers {
		d.prepare(ctx, s.sctx)
	}
	for _, d := range s.drivers {
		if err := d.decide(ctx); err != nil {
			return err
		}
	}
	dt := s.cfg.PhysicsStep
	for k := 0; k < s.cfg.DecisionPeriod; k++ {
		for _, d := range s.drivers {
			d.checkForcedReset(ctx, s.sctx)
		}
		for _, d := range s.drivers {
			d.actuate(dt)
		}
		s.world.Step(dt)
	}
	for _, d := range s.drivers {
		d.evaluate(s.cfg.TickDuration())
	}
	s.ticks++
	for _, fn := range s.after {
		fn(s)
	}
	return nil
}

// RunEpisode ticks until d terminates or maxTicks ticks have run. It
// returns the finished episode, or nil when the budget ran out.
func (s *Simulation) RunEpisode(ctx context.Context, d *Driver, maxTicks int) (*EpisodeContext, error) {
	if d.State() == Terminated {
		d.RequestReset()
	}
	for i := 0; i < maxTicks; i++ {
		if err := s.Tick(ctx); err != nil {
			return nil, err
		}
		if ep := d.Episode(); ep != nil && ep.Terminated() {
			return ep, nil
		}
	}
	return nil, nil
}
