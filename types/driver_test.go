package types

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/locomotion-rl/physics"
	"gonum.org/v1/gonum/spatial/r3"
)

type fakeTask struct {
	actSize  int
	obs      []float64
	reward   float64
	endAfter int
	reason   TerminationReason

	resets      []physics.Pose
	applied     [][]float64
	deactivated int
	actuated    int
	rewarded    int
	rewardedFor [][]float64
}

var _ Task = &fakeTask{}

func newFakeTask(actSize, endAfter int) *fakeTask {
	return &fakeTask{
		actSize:  actSize,
		obs:      []float64{0.5, -0.5},
		reward:   1,
		endAfter: endAfter,
		reason:   Timeout,
	}
}

func (f *fakeTask) Reset(spawn physics.Pose)       { f.resets = append(f.resets, spawn) }
func (f *fakeTask) ObservationSize() int           { return len(f.obs) }
func (f *fakeTask) ActionSize() int                { return f.actSize }
func (f *fakeTask) CollectObservations() []float64 { return append([]float64(nil), f.obs...) }
func (f *fakeTask) ApplyAction(a []float64)        { f.applied = append(f.applied, a) }
func (f *fakeTask) Deactivate()                    { f.deactivated++ }
func (f *fakeTask) Actuate(float64)                { f.actuated++ }

func (f *fakeTask) ComputeReward(a []float64) float64 {
	f.rewarded++
	f.rewardedFor = append(f.rewardedFor, a)
	return f.reward
}

func (f *fakeTask) CheckTermination(ctx *EpisodeContext) TerminationReason {
	if f.endAfter > 0 && ctx.Step >= f.endAfter {
		return f.reason
	}
	return NotTerminated
}

type fakeWorld struct {
	steps  int
	onStep func(n int)
}

func (w *fakeWorld) Step(float64) {
	w.steps++
	if w.onStep != nil {
		w.onStep(w.steps)
	}
}

type endings struct {
	reasons []TerminationReason
}

func (e *endings) EpisodeEnded(_ string, ctx *EpisodeContext) {
	e.reasons = append(e.reasons, ctx.Reason)
}

type fixedPlacement struct{ y float64 }

func (p fixedPlacement) Spawn(episode int) physics.Pose {
	return physics.NewPose(r3.Vec{X: float64(episode), Y: p.y}, physics.Identity)
}

func newTestSimulation(t *testing.T, task *fakeTask, policy Policy) (*Simulation, *Driver, *fakeWorld) {
	t.Helper()
	world := &fakeWorld{}
	sim, err := NewSimulation(world, nil, DefaultSimulationConfig())
	require.NoError(t, err)
	d := NewDriver(DriverConfig{
		Name:        "test",
		Task:        task,
		Policy:      policy,
		Placement:   fixedPlacement{y: 1},
		RecordTrace: true,
	})
	sim.AddDriver(d)
	return sim, d, world
}

func TestSimulationConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultSimulationConfig().Validate())
	assert.InDelta(t, 0.02, DefaultSimulationConfig().TickDuration(), 1e-12)
	assert.Error(t, SimulationConfig{PhysicsStep: 0, DecisionPeriod: 4}.Validate())
	assert.Error(t, SimulationConfig{PhysicsStep: math.NaN(), DecisionPeriod: 4}.Validate())
	assert.Error(t, SimulationConfig{PhysicsStep: 0.01, DecisionPeriod: 0}.Validate())

	_, err := NewSimulation(&fakeWorld{}, nil, SimulationConfig{})
	assert.Error(t, err)
}

func TestDriverLifecycle(t *testing.T) {
	task := newFakeTask(2, 3)
	policy := PolicyFunc(func(_ context.Context, _ []float64) ([]float64, error) {
		return []float64{0.25, -0.75}, nil
	})
	sim, d, world := newTestSimulation(t, task, policy)
	ends := &endings{}
	d.AddObserver(ends)

	assert.Equal(t, Begin, d.State())
	require.NoError(t, sim.Tick(context.Background()))

	assert.Equal(t, Active, d.State())
	require.Len(t, task.resets, 1)
	assert.Equal(t, 1.0, task.resets[0].Position.Y)
	assert.Equal(t, 4, world.steps)
	assert.Equal(t, 4, task.actuated)
	assert.Equal(t, []float64{0.25, -0.75}, task.applied[0])
	assert.Equal(t, 1, d.Episode().Step)
	assert.InDelta(t, 0.02, d.Episode().Elapsed, 1e-12)

	ep, err := sim.RunEpisode(context.Background(), d, 10)
	require.NoError(t, err)
	require.NotNil(t, ep)
	assert.Equal(t, Terminated, ep.State)
	assert.Equal(t, Timeout, ep.Reason)
	assert.Equal(t, 3, ep.Step)
	assert.InDelta(t, 3.0, ep.Reward, 1e-12)
	assert.Equal(t, 3, ep.Trace.Len())
	assert.Equal(t, Timeout, ep.Trace.Reason)
	assert.Equal(t, []TerminationReason{Timeout}, ends.reasons)

	// terminated episodes collect no reward while waiting for a reset
	rewarded := task.rewarded
	require.NoError(t, sim.Tick(context.Background()))
	assert.Equal(t, rewarded, task.rewarded)
	assert.Equal(t, Terminated, d.State())

	d.RequestReset()
	require.NoError(t, sim.Tick(context.Background()))
	assert.Equal(t, Active, d.State())
	assert.Equal(t, 2, d.Episodes())
	assert.Equal(t, 1, d.Episode().Episode)
	assert.Equal(t, 1, d.Episode().Step)
	assert.Equal(t, 1.0, task.resets[1].Position.X)
}

func TestInactiveDriverSkipsReward(t *testing.T) {
	task := newFakeTask(2, 0)
	sim, d, _ := newTestSimulation(t, task, nil)

	d.SetActive(false)
	assert.False(t, d.Active())
	for i := 0; i < 3; i++ {
		require.NoError(t, sim.Tick(context.Background()))
	}
	assert.Equal(t, 3, d.Episode().Step)
	assert.Equal(t, 3, task.deactivated)
	assert.Empty(t, task.applied)
	assert.Equal(t, 0, task.rewarded)
	assert.Equal(t, 0.0, d.Episode().Reward)
	last, ok := d.Episode().Trace.Last()
	require.True(t, ok)
	assert.False(t, last.Active)

	d.SetActive(true)
	require.NoError(t, sim.Tick(context.Background()))
	assert.Equal(t, 1, task.rewarded)
	assert.Len(t, task.applied, 1)
}

func TestForceResetInterruptsMidTick(t *testing.T) {
	task := newFakeTask(2, 0)
	sim, d, world := newTestSimulation(t, task, nil)
	ends := &endings{}
	d.AddObserver(ends)

	require.NoError(t, sim.Tick(context.Background()))
	require.Equal(t, 4, task.actuated)

	world.onStep = func(n int) {
		if n == 6 {
			d.ForceReset()
		}
	}
	require.NoError(t, sim.Tick(context.Background()))

	assert.Equal(t, []TerminationReason{Interrupted}, ends.reasons)
	assert.Equal(t, 2, d.Episodes())
	assert.Len(t, task.resets, 2)
	// the new episode is not actuated until its first decision
	assert.Equal(t, 6, task.actuated)
	assert.Equal(t, Active, d.State())
	assert.Equal(t, 0, d.Episode().Step)

	world.onStep = nil
	require.NoError(t, sim.Tick(context.Background()))
	assert.Equal(t, 1, d.Episode().Step)
	assert.Equal(t, 10, task.actuated)
}

func TestForceResetBeforeTick(t *testing.T) {
	task := newFakeTask(2, 0)
	sim, d, _ := newTestSimulation(t, task, nil)
	ends := &endings{}
	d.AddObserver(ends)

	for i := 0; i < 5; i++ {
		require.NoError(t, sim.Tick(context.Background()))
	}
	d.ForceReset()
	require.NoError(t, sim.Tick(context.Background()))

	assert.Equal(t, []TerminationReason{Interrupted}, ends.reasons)
	assert.Equal(t, 1, d.Episode().Step)
	assert.Equal(t, 1, d.Episode().Episode)
}

func TestActionIsConformed(t *testing.T) {
	task := newFakeTask(3, 0)
	var next []float64
	policy := PolicyFunc(func(_ context.Context, _ []float64) ([]float64, error) {
		return next, nil
	})
	sim, _, _ := newTestSimulation(t, task, policy)

	next = []float64{2, math.NaN()}
	require.NoError(t, sim.Tick(context.Background()))
	next = []float64{0.5, -3, 0.1, 9}
	require.NoError(t, sim.Tick(context.Background()))
	next = []float64{math.Inf(-1), math.Inf(1), -1}
	require.NoError(t, sim.Tick(context.Background()))

	require.Len(t, task.applied, 3)
	assert.Equal(t, []float64{1, 0, 0}, task.applied[0])
	assert.Equal(t, []float64{0.5, -1, 0.1}, task.applied[1])
	assert.Equal(t, []float64{-1, 1, -1}, task.applied[2])
}

func TestObservationIsSanitized(t *testing.T) {
	task := newFakeTask(1, 0)
	task.obs = []float64{math.NaN(), 2, math.Inf(1)}
	var seen []float64
	policy := PolicyFunc(func(_ context.Context, obs []float64) ([]float64, error) {
		seen = append([]float64(nil), obs...)
		return []float64{0}, nil
	})
	sim, d, _ := newTestSimulation(t, task, policy)

	require.NoError(t, sim.Tick(context.Background()))
	assert.Equal(t, []float64{0, 2, 0}, seen)
	assert.Equal(t, []float64{0, 2, 0}, d.LastObservation())
}

func TestPolicyErrorKeepsTargets(t *testing.T) {
	task := newFakeTask(2, 0)
	fail := false
	policy := PolicyFunc(func(_ context.Context, _ []float64) ([]float64, error) {
		if fail {
			return nil, errors.New("trainer unavailable")
		}
		return []float64{0.5, 0.5}, nil
	})
	sim, d, _ := newTestSimulation(t, task, policy)

	require.NoError(t, sim.Tick(context.Background()))
	fail = true
	require.NoError(t, sim.Tick(context.Background()))
	require.NoError(t, sim.Tick(context.Background()))

	assert.Len(t, task.applied, 1)
	assert.Equal(t, 2, d.PolicyErrors())
	assert.Equal(t, 2, d.Episode().Report.Count("policy_error"))
	assert.Equal(t, 3, d.Episode().Step)

	// the energy term keeps charging the held action
	assert.Equal(t, []float64{0.5, 0.5}, d.LastAction())
	require.Len(t, task.rewardedFor, 3)
	for _, a := range task.rewardedFor {
		assert.Equal(t, []float64{0.5, 0.5}, a)
	}
}

func TestPolicyErrorBeforeFirstActionHoldsZero(t *testing.T) {
	task := newFakeTask(2, 0)
	policy := PolicyFunc(func(_ context.Context, _ []float64) ([]float64, error) {
		return nil, errors.New("trainer unavailable")
	})
	sim, d, _ := newTestSimulation(t, task, policy)

	require.NoError(t, sim.Tick(context.Background()))
	assert.Empty(t, task.applied)
	assert.Equal(t, []float64{0, 0}, d.LastAction())
	assert.Equal(t, 1, d.PolicyErrors())
}

func TestPolicyCancellationStopsTick(t *testing.T) {
	task := newFakeTask(2, 0)
	ctx, cancel := context.WithCancel(context.Background())
	policy := PolicyFunc(func(ctx context.Context, _ []float64) ([]float64, error) {
		cancel()
		return nil, ctx.Err()
	})
	sim, d, world := newTestSimulation(t, task, policy)

	err := sim.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, world.steps)
	assert.Equal(t, 0, d.PolicyErrors())

	assert.ErrorIs(t, sim.Tick(ctx), context.Canceled)
}

func TestRunEpisodeBudget(t *testing.T) {
	task := newFakeTask(2, 0)
	sim, d, _ := newTestSimulation(t, task, nil)

	ep, err := sim.RunEpisode(context.Background(), d, 7)
	require.NoError(t, err)
	assert.Nil(t, ep)
	assert.Equal(t, 7, sim.Ticks())
	assert.Equal(t, 7, d.Episode().Step)
}

func TestAfterTickHooks(t *testing.T) {
	task := newFakeTask(2, 0)
	sim, _, _ := newTestSimulation(t, task, nil)
	calls := 0
	sim.AfterTick(func(s *Simulation) {
		calls++
		assert.Equal(t, calls, s.Ticks())
	})
	for i := 0; i < 3; i++ {
		require.NoError(t, sim.Tick(context.Background()))
	}
	assert.Equal(t, 3, calls)
}

func TestLockstepDrivers(t *testing.T) {
	world := &fakeWorld{}
	counter := &LocalCounter{}
	sim, err := NewSimulation(world, NewSimulationContext(counter, 0), DefaultSimulationConfig())
	require.NoError(t, err)

	short := newFakeTask(1, 2)
	long := newFakeTask(1, 0)
	a := NewDriver(DriverConfig{Name: "a", Task: short})
	b := NewDriver(DriverConfig{Name: "b", Task: long})
	sim.AddDriver(a)
	sim.AddDriver(b)
	assert.NotEqual(t, a.ID(), b.ID())

	for i := 0; i < 3; i++ {
		require.NoError(t, sim.Tick(context.Background()))
	}
	// one shared world step sequence for both drivers
	assert.Equal(t, 12, world.steps)
	assert.Equal(t, Terminated, a.State())
	assert.Equal(t, 3, b.Episode().Step)

	n, err := counter.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSimulationContextHousekeeping(t *testing.T) {
	sctx := NewSimulationContext(nil, 2)
	runs := 0
	sctx.Housekeeping = func() { runs++ }

	for i := 1; i <= 5; i++ {
		n, ok := sctx.EpisodeStarted(context.Background())
		require.True(t, ok)
		assert.Equal(t, int64(i), n)
	}
	assert.Equal(t, 2, runs)
}

type failingCounter struct{}

func (failingCounter) Next(context.Context) (int64, error)  { return 0, errors.New("down") }
func (failingCounter) Value(context.Context) (int64, error) { return 0, errors.New("down") }

func TestSimulationContextCounterFailure(t *testing.T) {
	sctx := NewSimulationContext(failingCounter{}, 1)
	runs := 0
	sctx.Housekeeping = func() { runs++ }
	_, ok := sctx.EpisodeStarted(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 0, runs)
}

func TestRandomPolicy(t *testing.T) {
	p := NewSeededRandomPolicy(5, 42)
	q := NewSeededRandomPolicy(5, 42)
	for i := 0; i < 50; i++ {
		a, err := p.Act(context.Background(), nil)
		require.NoError(t, err)
		b, err := q.Act(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		require.Len(t, a, 5)
		for _, v := range a {
			assert.GreaterOrEqual(t, v, -1.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Act(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTerminationReasonText(t *testing.T) {
	for _, r := range Reasons() {
		b, err := r.MarshalText()
		require.NoError(t, err)
		var back TerminationReason
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, r, back)
	}
	var r TerminationReason
	assert.Error(t, r.UnmarshalText([]byte("exploded")))
}
