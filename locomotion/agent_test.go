package locomotion

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/skeleton"
	"github.com/zeu5/locomotion-rl/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r3"
)

func freeFallWorld() physics.Config {
	cfg := physics.DefaultConfig()
	cfg.Ground = nil
	return cfg
}

func newCrawler(t *testing.T, world physics.Config, cfg Config) *Environment {
	t.Helper()
	env, err := NewEnvironment("crawler", skeleton.CrawlerConfig(), world, cfg)
	require.NoError(t, err)
	return env
}

func newDriver(t *testing.T, env *Environment, policy types.Policy) (*types.Simulation, *types.Driver) {
	t.Helper()
	sim, d, err := env.Driver(nil, types.DefaultSimulationConfig(), types.DriverConfig{Policy: policy})
	require.NoError(t, err)
	return sim, d
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	broken := []func(*Config){
		func(c *Config) { c.TargetVelocity = 0 },
		func(c *Config) { c.EnergyWeight = -1 },
		func(c *Config) { c.UprightWeight = math.NaN() },
		func(c *Config) { c.MaxSteps = 0 },
		func(c *Config) { c.MaxDuration = 0 },
		func(c *Config) { c.MinHeight = math.NaN() },
	}
	for i, b := range broken {
		cfg := DefaultConfig()
		b(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}

	_, err := NewAgent("x", nil, DefaultConfig())
	assert.Error(t, err)
}

func TestEnergyPenaltyNeverPositive(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		action := make([]float64, 1+rnd.Intn(12))
		for j := range action {
			action[j] = rnd.NormFloat64() * 3
		}
		w := rnd.Float64() * 2
		assert.LessOrEqual(t, EnergyPenalty(w, action), 0.0)
	}
	assert.Equal(t, 0.0, EnergyPenalty(1, nil))
}

func TestReward(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 1+0.5*0.2-0.01, Reward(cfg, 2, 1, []float64{1, 0}), 1e-12)
	assert.InDelta(t, -1+0.5*(0.5-0.8), Reward(cfg, -5, 0.5, []float64{0, 0}), 1e-12)
	assert.InDelta(t, 0.5+0.5*0.2, Reward(cfg, 0.5, 1, nil), 1e-12)
}

func TestResetLiftsToRestPose(t *testing.T) {
	env := newCrawler(t, physics.DefaultConfig(), DefaultConfig())
	a := env.Agent
	assert.Equal(t, 8, a.ActionSize())
	assert.Equal(t, 20, a.ObservationSize())
	assert.Len(t, a.Bodies(), 9)

	for _, b := range a.Bodies() {
		b.Position = r3.Add(b.Position, r3.Vec{X: 2, Y: -0.7})
		b.LinearVelocity = r3.Vec{Y: -3}
		b.Orientation = physics.AxisAngle(physics.Forward, 2)
	}
	a.ApplyAction([]float64{1, 1, 1, 1, 1, 1, 1, 1})

	a.Reset(physics.NewPose(r3.Vec{X: 1, Z: -1}, physics.AxisAngle(physics.Up, 0.5)))

	root := env.Skeleton.Root().Body
	assert.InDelta(t, 1, root.Position.X, 1e-9)
	assert.InDelta(t, 0.9+DefaultConfig().SpawnOffset, root.Position.Y, 1e-9)
	assert.InDelta(t, -1, root.Position.Z, 1e-9)
	assert.InDelta(t, 1, a.Uprightness(), 1e-9)
	for _, b := range a.Bodies() {
		assert.Equal(t, r3.Vec{}, b.LinearVelocity, b.Name)
		// nothing starts in ground contact
		assert.Greater(t, b.Position.Y-b.Shape.HalfExtents.Y, 0.0, b.Name)
	}
	for _, c := range a.Controllers() {
		assert.False(t, c.Enabled(), c.Name())
		assert.Equal(t, 0.0, c.Target(), c.Name())
	}

	obs := a.CollectObservations()
	require.Len(t, obs, 20)
	assert.InDelta(t, 1, obs[0], 1e-9)
	for _, v := range obs[1:] {
		assert.InDelta(t, 0, v, 1e-9)
	}
}

func TestObservationUsesRootFrame(t *testing.T) {
	env := newCrawler(t, freeFallWorld(), DefaultConfig())
	a := env.Agent
	a.Reset(physics.NewPose(r3.Vec{}, physics.AxisAngle(physics.Up, math.Pi/2)))

	// facing +X after a quarter turn about Y
	root := env.Skeleton.Root().Body
	root.LinearVelocity = r3.Vec{X: 1.5}
	obs := a.CollectObservations()
	assert.InDelta(t, 1.5, obs[3], 1e-9)
	assert.InDelta(t, 0, obs[1], 1e-9)
	assert.InDelta(t, 1.5, a.ForwardVelocity(), 1e-9)
}

func TestNonFiniteRootEndsAsFall(t *testing.T) {
	env := newCrawler(t, freeFallWorld(), DefaultConfig())
	a := env.Agent
	a.Reset(physics.NewPose(r3.Vec{}, physics.Identity))
	env.Skeleton.Root().Body.LinearVelocity = r3.Vec{Z: math.NaN()}

	assert.Equal(t, 0.0, a.ComputeReward([]float64{0}))
	ctx := types.NewEpisodeContext(0, "crawler", physics.NewPose(r3.Vec{}, physics.Identity))
	assert.Equal(t, types.Fell, a.CheckTermination(ctx))
	assert.Equal(t, 1, a.Anomalies())
}

func TestFreeFallWithoutActuationFalls(t *testing.T) {
	env := newCrawler(t, freeFallWorld(), DefaultConfig())
	sim, d := newDriver(t, env, nil)
	d.SetActive(false)

	ep, err := sim.RunEpisode(context.Background(), d, 50)
	require.NoError(t, err)
	require.NotNil(t, ep, "no termination within one simulated second")
	assert.Equal(t, types.Fell, ep.Reason)
	assert.LessOrEqual(t, ep.Elapsed, 1.0+1e-9)
	assert.Equal(t, 0.0, ep.Reward)
	for _, c := range env.Agent.Controllers() {
		assert.False(t, c.Enabled())
	}

	// still level, so only the height check can have ended it
	assert.Greater(t, env.Agent.Uprightness(), 0.9)
	assert.Less(t, env.Skeleton.Root().Body.Position.Y, DefaultConfig().MinHeight)
}

func TestHeldRestPoseStaysUpright(t *testing.T) {
	gains := []skeleton.Gains{{Kp: 20, Kd: 1}, {Kp: 60, Kd: 8}, {Kp: 200, Kd: 1}}
	for _, g := range gains {
		env := newCrawler(t, physics.DefaultConfig(), DefaultConfig())
		for _, c := range env.Agent.Controllers() {
			c.SetGains(g)
		}
		sim, d := newDriver(t, env, types.NewZeroPolicy(8))

		ticks := int(math.Round(5 / types.DefaultSimulationConfig().TickDuration()))
		for i := 0; i < ticks; i++ {
			require.NoError(t, sim.Tick(context.Background()))
			require.Greater(t, env.Agent.Uprightness(), 0.9, "gains %+v tick %d", g, i)
		}
		assert.Equal(t, types.Active, d.State(), "gains %+v", g)
		assert.InDelta(t, 5, d.Episode().Elapsed, 1e-6)
		assert.InDelta(t, 0.9, env.Skeleton.Root().Body.Position.Y, 0.02, "gains %+v", g)
		for _, c := range env.Agent.Controllers() {
			assert.True(t, c.Enabled())
			assert.Equal(t, 0, c.Faults())
			assert.InDelta(t, 0, c.Angle(), 0.05, c.Name())
		}
	}
}

func TestStandingEpisodeTimesOut(t *testing.T) {
	env := newCrawler(t, physics.DefaultConfig(), DefaultConfig())
	sim, d := newDriver(t, env, types.NewZeroPolicy(8))

	ep, err := sim.RunEpisode(context.Background(), d, 1100)
	require.NoError(t, err)
	require.NotNil(t, ep)
	assert.Equal(t, types.Timeout, ep.Reason)
	assert.InDelta(t, DefaultConfig().MaxDuration, ep.Elapsed, 0.03)
	assert.Greater(t, env.Agent.Uprightness(), 0.9)
}

func TestEpisodeEndsWithinMaxSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSteps = 30
	env := newCrawler(t, physics.DefaultConfig(), cfg)
	sim, d := newDriver(t, env, types.NewSeededRandomPolicy(8, 3))

	for episode := 0; episode < 3; episode++ {
		ep, err := sim.RunEpisode(context.Background(), d, cfg.MaxSteps)
		require.NoError(t, err)
		require.NotNil(t, ep)
		assert.LessOrEqual(t, ep.Step, cfg.MaxSteps)
		assert.Contains(t, []types.TerminationReason{types.Fell, types.Timeout}, ep.Reason)
	}
	assert.Equal(t, 3, d.Episodes())
}

func TestTimeoutOnDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHeight = -1e9
	cfg.MaxDuration = 0.09
	env := newCrawler(t, freeFallWorld(), cfg)
	sim, d := newDriver(t, env, nil)

	ep, err := sim.RunEpisode(context.Background(), d, 20)
	require.NoError(t, err)
	require.NotNil(t, ep)
	assert.Equal(t, types.Timeout, ep.Reason)
	assert.Equal(t, 5, ep.Step)
}

func TestInactiveTicksAccumulateNoReward(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHeight = -1e9
	env := newCrawler(t, freeFallWorld(), cfg)
	sim, d := newDriver(t, env, types.NewZeroPolicy(8))

	require.NoError(t, sim.Tick(context.Background()))
	active := d.Episode().Reward
	assert.NotEqual(t, 0.0, active)

	d.SetActive(false)
	for i := 0; i < 5; i++ {
		require.NoError(t, sim.Tick(context.Background()))
	}
	assert.Equal(t, active, d.Episode().Reward)
	assert.Equal(t, 6, d.Episode().Step)
	for _, c := range env.Agent.Controllers() {
		assert.False(t, c.Enabled())
	}
}
