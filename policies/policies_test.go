package policies

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/types"
	"go.uber.org/goleak"
)

func testCheckpoint() Checkpoint {
	return Checkpoint{
		Name:    "tiny",
		Weights: [][]float64{{1, 0, -1}, {0.5, 0.5, 0}},
		Bias:    []float64{0, -0.25},
	}
}

func TestLinearAct(t *testing.T) {
	l, err := NewLinear(testCheckpoint())
	require.NoError(t, err)
	obsSize, actSize := l.Sizes()
	assert.Equal(t, 3, obsSize)
	assert.Equal(t, 2, actSize)

	a, err := l.Act(context.Background(), []float64{0.2, 0.4, 0.1})
	require.NoError(t, err)
	assert.InDelta(t, math.Tanh(0.1), a[0], 1e-12)
	assert.InDelta(t, math.Tanh(0.3-0.25), a[1], 1e-12)

	big, err := l.Act(context.Background(), []float64{100, 0, -100})
	require.NoError(t, err)
	assert.LessOrEqual(t, big[0], 1.0)

	_, err = l.Act(context.Background(), []float64{1})
	assert.ErrorIs(t, err, ErrObservationSize)
}

func TestNewLinearRejects(t *testing.T) {
	cases := map[string]Checkpoint{
		"empty":    {Name: "e"},
		"ragged":   {Weights: [][]float64{{1, 2}, {3}}},
		"bias":     {Weights: [][]float64{{1}}, Bias: []float64{1, 2}},
		"nan":      {Weights: [][]float64{{math.NaN()}}},
		"inf bias": {Weights: [][]float64{{1}}, Bias: []float64{math.Inf(1)}},
	}
	for name, cp := range cases {
		_, err := NewLinear(cp)
		assert.Error(t, err, name)
	}
}

func TestLoadLinear(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLinear(testCheckpoint())
	require.NoError(t, err)

	for _, name := range []string{"policy.json", "policy.yaml"} {
		p := filepath.Join(dir, name)
		require.NoError(t, l.Save(p))
		loaded, err := LoadLinear(p)
		require.NoError(t, err, name)
		assert.Equal(t, testCheckpoint(), loaded.Checkpoint(), name)
	}

	handWritten := filepath.Join(dir, "walker.yml")
	require.NoError(t, os.WriteFile(handWritten, []byte("weights:\n  - [1, 2]\n"), 0644))
	loaded, err := LoadLinear(handWritten)
	require.NoError(t, err)
	assert.Equal(t, "walker", loaded.Name())
	assert.Equal(t, []float64{0}, loaded.Checkpoint().Bias)

	_, err = LoadLinear(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

type constant struct {
	value  float64
	begins []int
}

func (c *constant) Act(context.Context, []float64) ([]float64, error) {
	return []float64{c.value}, nil
}

func (c *constant) BeginEpisode(episode int) {
	c.begins = append(c.begins, episode)
}

func TestSwappableTakesEffectAtEpisodeBegin(t *testing.T) {
	first := &constant{value: 1}
	second := &constant{value: 2}
	s := NewSwappable(first)

	s.BeginEpisode(0)
	s.Stage(second)
	assert.True(t, s.Pending())

	a, err := s.Act(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, a, "staged policy must wait for the next episode")

	s.BeginEpisode(1)
	a, err = s.Act(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, a)
	assert.False(t, s.Pending())
	assert.Equal(t, 1, s.Swaps())
	assert.Equal(t, []int{0}, first.begins)
	assert.Equal(t, []int{1}, second.begins)

	_, err = NewSwappable(nil).Act(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoPolicy)
}

type actionTask struct {
	applied [][]float64
}

func (a *actionTask) Reset(physics.Pose)              {}
func (a *actionTask) ObservationSize() int            { return 1 }
func (a *actionTask) ActionSize() int                 { return 1 }
func (a *actionTask) CollectObservations() []float64  { return []float64{0} }
func (a *actionTask) ApplyAction(act []float64)       { a.applied = append(a.applied, act) }
func (a *actionTask) Deactivate()                     {}
func (a *actionTask) Actuate(float64)                 {}
func (a *actionTask) ComputeReward([]float64) float64 { return 0 }

func (a *actionTask) CheckTermination(*types.EpisodeContext) types.TerminationReason {
	if len(a.applied) >= 3 {
		return types.Timeout
	}
	return types.NotTerminated
}

type stepper struct{}

func (stepper) Step(float64) {}

func TestSwappableWithDriver(t *testing.T) {
	task := &actionTask{}
	s := NewSwappable(&constant{value: 0.1})
	sim, err := types.NewSimulation(stepper{}, nil, types.DefaultSimulationConfig())
	require.NoError(t, err)
	d := types.NewDriver(types.DriverConfig{Name: "swap", Task: task, Policy: s})
	sim.AddDriver(d)

	require.NoError(t, sim.Tick(context.Background()))
	s.Stage(&constant{value: 0.9})
	_, err = sim.RunEpisode(context.Background(), d, 10)
	require.NoError(t, err)
	_, err = sim.RunEpisode(context.Background(), d, 1)
	require.NoError(t, err)

	require.Len(t, task.applied, 4)
	assert.Equal(t, []float64{0.1}, task.applied[2])
	assert.Equal(t, []float64{0.9}, task.applied[3])
}

func TestRemoteAgainstServer(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, err := NewLinear(testCheckpoint())
	require.NoError(t, err)
	srv := NewServer("", l)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	remote := NewRemote(ts.URL, time.Second)
	defer remote.Close()

	obs := []float64{0.2, 0.4, 0.1}
	want, err := l.Act(context.Background(), obs)
	require.NoError(t, err)
	got, err := remote.Act(context.Background(), obs)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)
	assert.Equal(t, 1, srv.Requests())

	_, err = remote.Act(context.Background(), []float64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), ErrObservationSize.Error())

	resp, err := http.Post(ts.URL+"/act", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	http.DefaultClient.CloseIdleConnections()

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
	http.DefaultClient.CloseIdleConnections()
}

func TestRemoteHonoursContext(t *testing.T) {
	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(block)

	remote := NewRemote(strings.TrimPrefix(ts.URL, "http://"), 10*time.Second)
	defer remote.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := remote.Act(ctx, []float64{0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestServerRunStopsWithContext(t *testing.T) {
	srv := NewServer("127.0.0.1:0", &constant{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
