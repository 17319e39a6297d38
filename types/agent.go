package types

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zeu5/locomotion-rl/physics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// EpisodeObserver is notified when a driver's episode ends
type EpisodeObserver interface {
	EpisodeEnded(driver string, ctx *EpisodeContext)
}

type DriverConfig struct {
	Name      string
	Task      Task
	Policy    Policy
	Placement Placement
	Logger    *zap.Logger
	// RecordTrace keeps every decision tick in the episode trace
	RecordTrace bool
}

// Driver runs one agent through Begin -> Active -> Terminated. It is driven
// by a Simulation; SetActive, RequestReset and ForceReset may be called from
// other goroutines.
type Driver struct {
	id          string
	name        string
	task        Task
	policy      Policy
	placement   Placement
	logger      *zap.Logger
	recordTrace bool
	observers   []EpisodeObserver

	active         atomic.Bool
	resetRequested atomic.Bool
	forceReset     atomic.Bool

	ctx      *EpisodeContext
	episodes int

	// current decision tick
	decided      bool
	skipReward   bool
	observation  []float64
	action       []float64
	policyErrors int
}

func NewDriver(cfg DriverConfig) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.L().Named("driver")
	}
	policy := cfg.Policy
	if policy == nil {
		policy = NewZeroPolicy(cfg.Task.ActionSize())
	}
	d := &Driver{
		id:          uuid.NewString(),
		name:        cfg.Name,
		task:        cfg.Task,
		policy:      policy,
		placement:   cfg.Placement,
		logger:      logger.With(zap.String("agent", cfg.Name)),
		recordTrace: cfg.RecordTrace,
		observers:   make([]EpisodeObserver, 0),
	}
	d.active.Store(true)
	return d
}

func (d *Driver) ID() string {
	return d.id
}

func (d *Driver) Name() string {
	return d.name
}

func (d *Driver) Task() Task {
	return d.task
}

func (d *Driver) Policy() Policy {
	return d.policy
}

func (d *Driver) AddObserver(o EpisodeObserver) {
	d.observers = append(d.observers, o)
}

// SetActive toggles the activity flag. While inactive every actuator is
// released and no reward accumulates, but the episode keeps running.
func (d *Driver) SetActive(active bool) {
	d.active.Store(active)
}

func (d *Driver) Active() bool {
	return d.active.Load()
}

// RequestReset moves a terminated episode back to Begin on the next tick
func (d *Driver) RequestReset() {
	d.resetRequested.Store(true)
}

// ForceReset interrupts the episode wherever it is. The rest pose is
// restored before the next physics step runs.
func (d *Driver) ForceReset() {
	d.forceReset.Store(true)
}

// Episode is the current episode, nil before the first tick
func (d *Driver) Episode() *EpisodeContext {
	return d.ctx
}

func (d *Driver) State() EpisodeState {
	if d.ctx == nil {
		return Begin
	}
	return d.ctx.State
}

// Episodes counts the episodes begun so far
func (d *Driver) Episodes() int {
	return d.episodes
}

func (d *Driver) PolicyErrors() int {
	return d.policyErrors
}

// LastObservation returns a copy of the latest observation
func (d *Driver) LastObservation() []float64 {
	return append([]float64(nil), d.observation...)
}

// LastAction returns a copy of the latest applied action
func (d *Driver) LastAction() []float64 {
	return append([]float64(nil), d.action...)
}

func (d *Driver) begin(ctx context.Context, sctx *SimulationContext) {
	episode := d.episodes
	spawn := physics.NewPose(r3.Vec{}, physics.Identity)
	if d.placement != nil {
		spawn = d.placement.Spawn(episode)
	}
	d.task.Reset(spawn)
	if l, ok := d.policy.(EpisodeListener); ok {
		l.BeginEpisode(episode)
	}

	d.ctx = NewEpisodeContext(episode, d.name, spawn)
	d.ctx.State = Active
	d.episodes++
	d.decided = false
	d.action = nil
	d.observation = nil
	d.resetRequested.Store(false)
	d.forceReset.Store(false)

	if sctx != nil {
		if n, ok := sctx.EpisodeStarted(ctx); ok {
			d.ctx.Report.AddEntry(float64(n), "global_episode", "driver.begin")
		}
	}
	d.logger.Debug("episode begin", zap.Int("episode", episode))
}

// prepare runs Begin when the episode is new, a reset was requested after
// termination, or a forced reset is pending
func (d *Driver) prepare(ctx context.Context, sctx *SimulationContext) {
	if d.checkForcedReset(ctx, sctx) {
		return
	}
	switch {
	case d.ctx == nil, d.ctx.State == Begin:
		d.begin(ctx, sctx)
	case d.ctx.State == Terminated && d.resetRequested.Load():
		d.begin(ctx, sctx)
	}
}

func (d *Driver) checkForcedReset(ctx context.Context, sctx *SimulationContext) bool {
	if !d.forceReset.Load() {
		return false
	}
	if d.ctx != nil && d.ctx.State == Active {
		d.terminate(Interrupted)
	}
	d.begin(ctx, sctx)
	return true
}

// decide collects the observation and forwards the policy's action. Only
// cancellation of ctx is returned; policy failures are logged and the
// previous action is kept, both as actuator targets and for the reward.
func (d *Driver) decide(ctx context.Context) error {
	if d.ctx == nil || d.ctx.State != Active {
		return nil
	}
	d.ctx.Report.setEpisodeStep(d.ctx.Step)
	d.observation = sanitize(d.task.CollectObservations())
	d.decided = true

	if !d.active.Load() {
		d.task.Deactivate()
		d.skipReward = true
		d.action = make([]float64, d.task.ActionSize())
		return nil
	}
	d.skipReward = false

	action, err := d.policy.Act(ctx, d.observation)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		d.policyErrors++
		d.ctx.Report.AddEntry(1, "policy_error", "driver.decide")
		d.logger.Warn("policy failed, keeping previous targets", zap.Error(err))
		if d.action == nil {
			d.action = make([]float64, d.task.ActionSize())
		}
		return nil
	}
	d.action = d.conform(action)
	d.task.ApplyAction(d.action)
	return nil
}

func (d *Driver) actuate(dt float64) {
	if d.ctx == nil || d.ctx.State != Active || !d.decided {
		return
	}
	d.task.Actuate(dt)
}

func (d *Driver) evaluate(elapsed float64) {
	if d.ctx == nil || d.ctx.State != Active || !d.decided {
		return
	}
	d.decided = false
	d.ctx.Step++
	d.ctx.Elapsed += elapsed

	reward := 0.0
	if !d.skipReward {
		reward = d.task.ComputeReward(d.action)
		d.ctx.Reward += reward
	}
	if d.recordTrace {
		d.ctx.Trace.Append(Step{
			Index:       d.ctx.Step - 1,
			Observation: d.observation,
			Action:      d.action,
			Reward:      reward,
			Active:      !d.skipReward,
		})
	}

	if reason := d.task.CheckTermination(d.ctx); reason != NotTerminated {
		d.terminate(reason)
	}
}

func (d *Driver) terminate(reason TerminationReason) {
	d.ctx.State = Terminated
	d.ctx.Reason = reason
	d.ctx.Trace.Reason = reason
	d.ctx.Report.AddEntry(d.ctx.Reward, "episode_reward", "driver.terminate")
	d.ctx.Report.AddLog(reason.String(), "termination")
	d.logger.Debug("episode terminated",
		zap.Int("episode", d.ctx.Episode),
		zap.Stringer("reason", reason),
		zap.Int("steps", d.ctx.Step),
		zap.Float64("reward", d.ctx.Reward))
	for _, o := range d.observers {
		o.EpisodeEnded(d.name, d.ctx)
	}
}

// conform pads or truncates the action to the task's size and clamps every
// component to [-1, 1]
func (d *Driver) conform(action []float64) []float64 {
	size := d.task.ActionSize()
	if len(action) != size {
		d.logger.Debug("action length mismatch",
			zap.Int("got", len(action)),
			zap.Int("want", size))
	}
	out := make([]float64, size)
	for i := 0; i < size && i < len(action); i++ {
		a := action[i]
		if math.IsNaN(a) {
			a = 0
		}
		out[i] = math.Max(-1, math.Min(1, a))
	}
	return out
}

// sanitize replaces non-finite observation components with zero
func sanitize(obs []float64) []float64 {
	for i, v := range obs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			obs[i] = 0
		}
	}
	return obs
}
