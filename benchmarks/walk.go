package benchmarks

import (
	"context"
	"io"
	"path"

	"github.com/spf13/cobra"
	"github.com/zeu5/locomotion-rl/arena"
	"github.com/zeu5/locomotion-rl/config"
	"github.com/zeu5/locomotion-rl/locomotion"
	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/types"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	debugAddr string
	redisAddr string
)

// Walk compares the configured policy against the random and zero action
// baselines on the locomotion task
func Walk(ctx context.Context, cfg *config.Config, out io.Writer) error {
	skelCfg, err := skeletonConfig(cfg)
	if err != nil {
		return err
	}
	if err := skelCfg.Validate(); err != nil {
		return err
	}
	jointCount := len(skelCfg.Parts) - 1

	h, err := newHarness(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	placement := arena.Jittered{
		Center:   r3.Vec{},
		Radius:   cfg.Spawn.Radius,
		YawRange: cfg.Spawn.YawRange,
		Seed:     cfg.Spawn.Seed,
	}
	setup := func(name string, policy func() types.Policy) types.SetupFunc {
		return func() (*types.Simulation, *types.Driver, error) {
			env, err := locomotion.NewEnvironment(name, skelCfg, physics.DefaultConfig(), cfg.Locomotion)
			if err != nil {
				return nil, nil, err
			}
			sim, d, err := env.Driver(h.sctx, cfg.Simulation, types.DriverConfig{
				Policy:      policy(),
				Placement:   placement,
				RecordTrace: cfg.Experiment.RecordTraces,
			})
			if err != nil {
				return nil, nil, err
			}
			h.attach(sim)
			return sim, d, nil
		}
	}

	stop, err := startProfiling(cfg.Experiment.SavePath)
	if err != nil {
		return err
	}
	defer stop()

	obsSize := 4 + 2*jointCount
	configured, closePolicy, err := configuredPolicy(ctx, cfg, obsSize, jointCount)
	if err != nil {
		return err
	}
	defer closePolicy()

	c := newComparison(cfg)
	if configured != nil {
		c.AddExperiment(types.NewExperiment("policy", setup("policy", func() types.Policy { return configured })))
	}
	c.AddExperiment(types.NewExperiment("random", setup("random", func() types.Policy {
		return types.NewSeededRandomPolicy(jointCount, cfg.Policy.Seed)
	})))
	c.AddExperiment(types.NewExperiment("zero", setup("zero", func() types.Policy {
		return types.NewZeroPolicy(jointCount)
	})))

	if err := recordParameters(cfg, "task: locomotion", "skeleton: "+skelCfg.Name); err != nil {
		return err
	}
	return runComparison(ctx, c, out)
}

// newComparison sets up the comparison with the analyses shared by every
// command
func newComparison(cfg *config.Config) *types.Comparison {
	saveFile := cfg.Experiment.SavePath
	c := types.NewComparison(&types.ComparisonConfig{
		Runs:         cfg.Experiment.Runs,
		Episodes:     cfg.Experiment.Episodes,
		Horizon:      cfg.Experiment.Horizon,
		RecordPath:   saveFile,
		RecordTraces: cfg.Experiment.RecordTraces,
		ShowProgress: cfg.Experiment.ShowProgress,
	})
	c.AddAnalysis("reward", types.NewRewardAnalyzer(), types.RewardPlotter(path.Join(saveFile, "plots")))
	c.AddAnalysis("length", types.NewLengthAnalyzer(), types.LengthPlotter(path.Join(saveFile, "plots")))
	c.AddAnalysis("termination", types.NewTerminationAnalyzer(), types.TerminationComparator())
	if cfg.Experiment.RecordTraces {
		c.AddAnalysis("failures", types.NewFailureRecorder(path.Join(saveFile, "failures"), types.Fell, types.Collided), types.NoopComparator())
	}
	return c
}

func runComparison(ctx context.Context, c *types.Comparison, out io.Writer) error {
	results, err := c.Run(ctx)
	names := make([]string, len(c.Experiments))
	for i, e := range c.Experiments {
		names[i] = e.Name
	}
	printResults(out, names, results)
	if ctx.Err() != nil {
		// interrupted, the finished runs are already recorded
		return nil
	}
	return err
}

func WalkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Train or evaluate a skeleton on the locomotion task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if debugAddr != "" {
				cfg.Debug.Addr = debugAddr
			}
			if redisAddr != "" {
				cfg.Redis.Addr = redisAddr
			}
			ctx, cancel := interruptContext()
			defer cancel()
			return Walk(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&debugAddr, "debug-server", "", "Serve the debug view on this address")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "Share the episode counter through this redis server")
	return cmd
}
