package types

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSetup(endAfter int) SetupFunc {
	return func() (*Simulation, *Driver, error) {
		sim, err := NewSimulation(&fakeWorld{}, nil, DefaultSimulationConfig())
		if err != nil {
			return nil, nil, err
		}
		d := NewDriver(DriverConfig{Name: "fake", Task: newFakeTask(2, endAfter), RecordTrace: true})
		sim.AddDriver(d)
		return sim, d, nil
	}
}

func countLines(t *testing.T, p string) int {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		if strings.TrimSpace(s.Text()) != "" {
			n++
		}
	}
	require.NoError(t, s.Err())
	return n
}

func TestComparisonRun(t *testing.T) {
	dir := t.TempDir()
	c := NewComparison(&ComparisonConfig{
		Runs:         2,
		Episodes:     3,
		Horizon:      50,
		RecordPath:   dir,
		RecordTraces: true,
	})

	type call struct {
		run   int
		names []string
		ds    []DataSet
	}
	calls := make([]call, 0)
	c.AddAnalysis("reward", NewRewardAnalyzer(), func(run int, names []string, ds []DataSet) {
		calls = append(calls, call{run: run, names: names, ds: ds})
	})
	c.AddAnalysis("terminations", NewTerminationAnalyzer(), NoopComparator())
	c.AddExperiment(NewExperiment("short", fakeSetup(2)))
	c.AddExperiment(NewExperiment("long", fakeSetup(5)))

	results, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, run := range results {
		require.Len(t, run, 2)
		assert.Equal(t, 3, run[0].Episodes)
		assert.Equal(t, 0, run[0].Cut)
		assert.Equal(t, 3, run[0].Reasons[Timeout])
		assert.Equal(t, 6, run[0].TotalSteps)
		assert.InDelta(t, 2.0, run[0].MeanReward(), 1e-12)
		assert.InDelta(t, 5.0, run[1].MeanReward(), 1e-12)
	}

	require.Len(t, calls, 2)
	assert.Equal(t, []string{"short", "long"}, calls[1].names)
	// analyzers are reset between experiments
	assert.Equal(t, []float64{2, 2, 2}, calls[0].ds[0])
	assert.Equal(t, []float64{5, 5, 5}, calls[0].ds[1])

	bs, err := os.ReadFile(filepath.Join(dir, "comparison_config.json"))
	require.NoError(t, err)
	recorded := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(bs, &recorded))
	assert.Equal(t, c.RunID, recorded["run_id"])
	assert.Equal(t, float64(3), recorded["episodes"])

	assert.Equal(t, 3, countLines(t, filepath.Join(dir, "traces", "short_0.jsonl")))
	assert.Equal(t, 3, countLines(t, filepath.Join(dir, "traces", "long_1.jsonl")))

	first, err := os.ReadFile(filepath.Join(dir, "traces", "short_0.jsonl"))
	require.NoError(t, err)
	line := strings.SplitN(string(first), "\n", 2)[0]
	var trace Trace
	require.NoError(t, json.Unmarshal([]byte(line), &trace))
	assert.Equal(t, 2, trace.Len())
	assert.Equal(t, Timeout, trace.Reason)
}

func TestExperimentHorizonCut(t *testing.T) {
	e := NewExperiment("endless", fakeSetup(0))
	analyzer := NewLengthAnalyzer()
	res, err := e.Run(&experimentRunConfig{
		Episodes:  2,
		Horizon:   3,
		Analyzers: []Analyzer{analyzer},
		Context:   context.Background(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Episodes)
	assert.Equal(t, 2, res.Cut)
	assert.Equal(t, 0.0, res.MeanReward())
	assert.Empty(t, analyzer.DataSet())
}

func TestExperimentSetupError(t *testing.T) {
	e := NewExperiment("broken", func() (*Simulation, *Driver, error) {
		return nil, nil, assert.AnError
	})
	_, err := e.Run(&experimentRunConfig{Episodes: 1, Horizon: 1, Context: context.Background()})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestExperimentStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExperiment("cancelled", fakeSetup(2))
	res, err := e.Run(&experimentRunConfig{Episodes: 5, Horizon: 10, Context: ctx})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Episodes)
}

func TestProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	p := newProgress(2, time.Hour, buf)
	p.Line(0).Update("Exp:a")
	p.Line(1).Update("Exp:b")

	p.Start(context.Background())
	p.Stop()
	p.Stop()

	out := buf.String()
	assert.Contains(t, out, "Exp:a")
	assert.Contains(t, out, "Exp:b")
	assert.Equal(t, "Exp:b", p.Line(1).String())
}
