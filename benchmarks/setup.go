package benchmarks

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/zeu5/locomotion-rl/config"
	"github.com/zeu5/locomotion-rl/debugview"
	"github.com/zeu5/locomotion-rl/policies"
	"github.com/zeu5/locomotion-rl/redisstore"
	"github.com/zeu5/locomotion-rl/skeleton"
	"github.com/zeu5/locomotion-rl/types"
	"github.com/zeu5/locomotion-rl/util"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// harness holds what every experiment of a command shares: the episode
// counter and the optional debug view
type harness struct {
	sctx    *types.SimulationContext
	board   *debugview.Board
	metrics *debugview.Metrics
	closers []func()
}

func newHarness(ctx context.Context, cfg *config.Config) (*harness, error) {
	h := &harness{}
	var counter types.EpisodeCounter
	if cfg.Redis.Addr != "" {
		c := redisstore.New(cfg.Redis.Addr, redisstore.WithKey(cfg.Redis.Key))
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return nil, err
		}
		h.closers = append(h.closers, func() { c.Close() })
		counter = c
	}
	h.sctx = types.NewSimulationContext(counter, cfg.Experiment.HousekeepingEvery)

	if cfg.Debug.Addr != "" {
		h.board = debugview.NewBoard()
		h.metrics = debugview.NewMetrics()
		server := debugview.NewServer(cfg.Debug.Addr, h.board, h.metrics)
		serverCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := server.Run(serverCtx); err != nil {
				zap.L().Warn("debug view stopped", zap.Error(err))
			}
		}()
		h.closers = append(h.closers, func() {
			cancel()
			<-done
		})
	}
	return h, nil
}

// attach wires a freshly set up simulation to the debug view
func (h *harness) attach(sim *types.Simulation) {
	if h.board != nil {
		h.board.Attach(sim)
	}
	if h.metrics != nil {
		h.metrics.Attach(sim)
	}
}

func (h *harness) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i]()
	}
}

func skeletonConfig(cfg *config.Config) (skeleton.Config, error) {
	if cfg.Skeleton == "" {
		return skeleton.CrawlerConfig(), nil
	}
	return skeleton.LoadConfig(cfg.Skeleton)
}

// configuredPolicy returns the policy named by the configuration, or nil
// when none is configured. A checkpoint is reloaded on SIGHUP and takes
// effect at the next episode.
func configuredPolicy(ctx context.Context, cfg *config.Config, obsSize, actSize int) (types.Policy, func(), error) {
	switch {
	case cfg.Policy.Remote != "":
		remote := policies.NewRemote(cfg.Policy.Remote, cfg.Policy.Timeout)
		return remote, remote.Close, nil
	case cfg.Policy.Checkpoint != "":
		linear, err := loadCheckpoint(cfg.Policy.Checkpoint, obsSize, actSize)
		if err != nil {
			return nil, nil, err
		}
		swappable := policies.NewSwappable(linear)
		stop := reloadOnHangup(ctx, cfg.Policy.Checkpoint, obsSize, actSize, swappable)
		return swappable, stop, nil
	}
	return nil, func() {}, nil
}

func loadCheckpoint(file string, obsSize, actSize int) (*policies.Linear, error) {
	linear, err := policies.LoadLinear(file)
	if err != nil {
		return nil, err
	}
	if o, a := linear.Sizes(); o != obsSize || a != actSize {
		return nil, fmt.Errorf("checkpoint %s maps %d observations to %d actions, the task needs %d to %d", file, o, a, obsSize, actSize)
	}
	return linear, nil
}

func reloadOnHangup(ctx context.Context, file string, obsSize, actSize int, target *policies.Swappable) func() {
	logger := zap.L().Named("checkpoint")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				linear, err := loadCheckpoint(file, obsSize, actSize)
				if err != nil {
					logger.Warn("reloading checkpoint", zap.Error(err))
					continue
				}
				target.Stage(linear)
				logger.Info("checkpoint staged", zap.String("file", file))
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// recordParameters writes the effective configuration to config.txt in the
// save folder
func recordParameters(cfg *config.Config, extra ...string) error {
	bs, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	lines := append([]string{string(bs)}, extra...)
	return util.WriteToFile(path.Join(cfg.Experiment.SavePath, "config.txt"), lines...)
}

func printResults(out io.Writer, names []string, results [][]*types.ExperimentResult) {
	for run, runResults := range results {
		for i, r := range runResults {
			if r == nil {
				continue
			}
			line := fmt.Sprintf("run %d %-8s episodes=%d cut=%d mean_reward=%.3f", run, names[i], r.Episodes, r.Cut, r.MeanReward())
			for _, reason := range types.Reasons() {
				if n := r.Reasons[reason]; n > 0 {
					line = fmt.Sprintf("%s %s=%d", line, reason, n)
				}
			}
			fmt.Fprintln(out, line)
		}
	}
}
