package types

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zeu5/locomotion-rl/util"
	"go.uber.org/zap"
)

// SetupFunc builds a fresh simulation and the driver to measure. It is
// called once per run so runs do not share state.
type SetupFunc func() (*Simulation, *Driver, error)

type experimentRunConfig struct {
	RunID      string
	CurrentRun int
	Episodes   int
	Horizon    int // decision ticks allowed per episode before it is cut short
	Analyzers  []Analyzer
	Context    context.Context

	RecordTraces bool
	RecordPath   string

	Status *StatusLine
	Logger *zap.Logger
}

// ExperimentResult summarises one run of an experiment
type ExperimentResult struct {
	Episodes     int
	Cut          int // episodes that hit the horizon
	Reasons      map[TerminationReason]int
	TotalReward  float64
	TotalSteps   int
	PolicyErrors int
}

// Experiment runs one agent configuration for a number of episodes and
// feeds every finished episode to the analyzers
type Experiment struct {
	Name  string
	setup SetupFunc
}

// NewExperiment creates a new experiment instance
func NewExperiment(name string, setup SetupFunc) *Experiment {
	return &Experiment{
		Name:  name,
		setup: setup,
	}
}

func (e *Experiment) recordTrace(rConfig *experimentRunConfig, trace *Trace) error {
	tracesFile := path.Join(rConfig.RecordPath, "traces", e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".jsonl")
	bs, err := json.Marshal(trace)
	if err != nil {
		return err
	}
	return util.AppendToFile(tracesFile, string(bs))
}

// Run the experiment for the configured number of episodes
func (e *Experiment) Run(rConfig *experimentRunConfig) (*ExperimentResult, error) {
	logger := rConfig.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger = logger.Named("experiment").With(zap.String("experiment", e.Name), zap.Int("run", rConfig.CurrentRun))

	sim, driver, err := e.setup()
	if err != nil {
		return nil, fmt.Errorf("setting up experiment %s: %w", e.Name, err)
	}
	if rConfig.RecordTraces {
		tracesFolder := path.Join(rConfig.RecordPath, "traces")
		if err := os.MkdirAll(tracesFolder, os.ModePerm); err != nil {
			return nil, err
		}
	}

	result := &ExperimentResult{Reasons: make(map[TerminationReason]int)}
	for result.Episodes < rConfig.Episodes {
		ep, err := sim.RunEpisode(rConfig.Context, driver, rConfig.Horizon)
		if err != nil {
			return result, err
		}
		result.Episodes++
		if ep == nil {
			// horizon reached without a terminal condition
			result.Cut++
			driver.ForceReset()
			logger.Warn("episode cut at horizon", zap.Int("horizon", rConfig.Horizon))
			continue
		}

		result.Reasons[ep.Reason]++
		result.TotalReward += ep.Reward
		result.TotalSteps += ep.Step

		if rConfig.RecordTraces {
			if err := e.recordTrace(rConfig, ep.Trace); err != nil {
				logger.Warn("recording trace", zap.Error(err))
			}
		}
		for _, a := range rConfig.Analyzers {
			a.Analyze(rConfig.CurrentRun, result.Episodes, e.Name, ep)
		}
		if rConfig.Status != nil {
			rConfig.Status.Update(e.status(result, rConfig.Episodes))
		}
	}
	result.PolicyErrors = driver.PolicyErrors()
	logger.Info("experiment run complete",
		zap.Int("episodes", result.Episodes),
		zap.Int("cut", result.Cut),
		zap.Float64("mean_reward", result.MeanReward()),
		zap.Int("policy_errors", result.PolicyErrors))
	return result, nil
}

func (e *Experiment) status(r *ExperimentResult, total int) string {
	s := fmt.Sprintf("Exp:%s, Eps:%d/%d, Steps:%d, MeanR:%8.3f", e.Name, r.Episodes, total, r.TotalSteps, r.MeanReward())
	for _, reason := range Reasons() {
		if n := r.Reasons[reason]; n > 0 {
			s = fmt.Sprintf("%s, %s:%d", s, reason, n)
		}
	}
	return s
}

// MeanReward is the average episode reward over finished episodes
func (r *ExperimentResult) MeanReward() float64 {
	finished := r.Episodes - r.Cut
	if finished == 0 {
		return 0
	}
	return r.TotalReward / float64(finished)
}

// Generic Dataset that contains information after processing the episodes
type DataSet interface{}

// Analyzer compresses the information in the finished episodes to a DataSet
type Analyzer interface {
	// run, episode number, experiment name, finished episode
	Analyze(int, int, string, *EpisodeContext)
	// Resulting dataset
	DataSet() DataSet
	// Reset the analyzer
	Reset()
}

// Comparator differentiates between different datasets with associated names
// run, experiment names, datasets
type Comparator func(int, []string, []DataSet)

func NoopComparator() Comparator {
	return func(_ int, _ []string, _ []DataSet) {}
}

// ComparisonConfig contains the configuration for the comparison
type ComparisonConfig struct {
	Runs     int // number of runs
	Episodes int // number of episodes
	Horizon  int // decision ticks per episode

	RecordPath   string // path to store the results
	RecordTraces bool
	// ShowProgress prints a live status line per experiment
	ShowProgress bool
}

// Comparison contains the different experiments to compare
// The finished episodes are analyzed and the datasets compared
type Comparison struct {
	RunID       string
	Experiments []*Experiment
	analyzers   map[string]Analyzer
	comparators map[string]Comparator
	cConfig     *ComparisonConfig
	logger      *zap.Logger
}

// NewComparison creates a comparison instance
func NewComparison(config *ComparisonConfig) *Comparison {
	if config.Horizon <= 0 {
		config.Horizon = 1000
	}
	return &Comparison{
		RunID:       uuid.NewString(),
		Experiments: make([]*Experiment, 0),
		analyzers:   make(map[string]Analyzer),
		comparators: make(map[string]Comparator),
		cConfig:     config,
		logger:      zap.L().Named("comparison"),
	}
}

// AddAnalysis adds an analyzer and comparator to the comparison
func (c *Comparison) AddAnalysis(name string, analyzer Analyzer, comparator Comparator) {
	c.analyzers[name] = analyzer
	c.comparators[name] = comparator
}

// Add experiments to compare
func (c *Comparison) AddExperiment(e *Experiment) {
	c.Experiments = append(c.Experiments, e)
}

// record the configuration of the comparison
func (c *Comparison) recordConfig() error {
	cfg := c.cConfig
	if err := os.MkdirAll(cfg.RecordPath, 0777); err != nil {
		return err
	}

	out := make(map[string]interface{})
	out["run_id"] = c.RunID
	out["runs"] = cfg.Runs
	out["episodes"] = cfg.Episodes
	out["horizon"] = cfg.Horizon
	out["record_traces"] = cfg.RecordTraces

	experiments := make([]string, 0)
	for _, e := range c.Experiments {
		experiments = append(experiments, e.Name)
	}
	out["experiments"] = experiments

	analyzers := make([]string, 0)
	for name := range c.analyzers {
		analyzers = append(analyzers, name)
	}
	out["analyzers"] = analyzers

	bs, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(path.Join(cfg.RecordPath, "comparison_config.json"), bs, 0644)
}

// Run the comparison. Results are indexed by run, then experiment.
func (c *Comparison) Run(ctx context.Context) ([][]*ExperimentResult, error) {
	if c.cConfig.RecordPath != "" {
		if err := c.recordConfig(); err != nil {
			return nil, fmt.Errorf("recording comparison config: %w", err)
		}
	}

	progress := NewProgress(len(c.Experiments), time.Second)
	if c.cConfig.ShowProgress && len(c.Experiments) > 0 {
		progress.Start(ctx)
		defer progress.Stop()
	}

	results := make([][]*ExperimentResult, 0, c.cConfig.Runs)
	for run := 0; run < c.cConfig.Runs; run++ {
		c.logger.Info("starting run", zap.Int("run", run+1), zap.String("run_id", c.RunID))
		datasets := make(map[string][]DataSet)
		for name := range c.analyzers {
			datasets[name] = make([]DataSet, len(c.Experiments))
		}

		names := make([]string, len(c.Experiments))
		runResults := make([]*ExperimentResult, len(c.Experiments))
		for i, e := range c.Experiments {
			res, err := e.Run(c.prepareRunConfig(ctx, run, progress.Line(i)))
			if err != nil {
				return results, fmt.Errorf("run %d of %s: %w", run, e.Name, err)
			}
			runResults[i] = res
			for name, a := range c.analyzers {
				datasets[name][i] = a.DataSet()
				a.Reset()
			}
			names[i] = e.Name
		}
		results = append(results, runResults)
		for name, comp := range c.comparators {
			comp(run, names, datasets[name])
		}
	}
	return results, nil
}

// prepare the run configuration for the experiment
func (c *Comparison) prepareRunConfig(ctx context.Context, run int, status *StatusLine) *experimentRunConfig {
	rCfg := &experimentRunConfig{
		RunID:        c.RunID,
		CurrentRun:   run,
		Episodes:     c.cConfig.Episodes,
		Horizon:      c.cConfig.Horizon,
		Analyzers:    make([]Analyzer, 0),
		RecordTraces: c.cConfig.RecordTraces && c.cConfig.RecordPath != "",
		RecordPath:   c.cConfig.RecordPath,
		Context:      ctx,
		Status:       status,
		Logger:       c.logger,
	}
	for _, a := range c.analyzers {
		rCfg.Analyzers = append(rCfg.Analyzers, a)
	}
	return rCfg
}
