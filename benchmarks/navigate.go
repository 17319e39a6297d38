package benchmarks

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/zeu5/locomotion-rl/arena"
	"github.com/zeu5/locomotion-rl/config"
	"github.com/zeu5/locomotion-rl/navigation"
	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/types"
	"gonum.org/v1/gonum/spatial/r3"
)

// Navigate compares the configured policy against the random baseline on
// the navigation task
func Navigate(ctx context.Context, cfg *config.Config, out io.Writer) error {
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
			world := physics.NewWorld(navigation.WorldConfig())
			agent, err := navigation.NewAgent(name, world, cfg.Navigation)
			if err != nil {
				return nil, nil, err
			}
			sim, err := types.NewSimulation(world, h.sctx, cfg.Simulation)
			if err != nil {
				return nil, nil, err
			}
			d := types.NewDriver(types.DriverConfig{
				Name:        name,
				Task:        agent,
				Policy:      policy(),
				Placement:   placement,
				RecordTrace: cfg.Experiment.RecordTraces,
			})
			sim.AddDriver(d)
			h.attach(sim)
			return sim, d, nil
		}
	}

	stop, err := startProfiling(cfg.Experiment.SavePath)
	if err != nil {
		return err
	}
	defer stop()

	obsSize, actSize := cfg.Navigation.Rays+3, 2
	configured, closePolicy, err := configuredPolicy(ctx, cfg, obsSize, actSize)
	if err != nil {
		return err
	}
	defer closePolicy()

	c := newComparison(cfg)
	if configured != nil {
		c.AddExperiment(types.NewExperiment("policy", setup("policy", func() types.Policy { return configured })))
	}
	c.AddExperiment(types.NewExperiment("random", setup("random", func() types.Policy {
		return types.NewSeededRandomPolicy(actSize, cfg.Policy.Seed)
	})))

	if err := recordParameters(cfg, "task: navigation"); err != nil {
		return err
	}
	return runComparison(ctx, c, out)
}

func NavigateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "navigate",
		Short: "Run the goal seeking navigation task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := interruptContext()
			defer cancel()
			return Navigate(ctx, cfg, cmd.OutOrStdout())
		},
	}
}
