package benchmarks

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zeu5/locomotion-rl/config"
	"github.com/zeu5/locomotion-rl/observability"
)

var (
	episodes   int
	horizon    int
	saveFile   string
	runs       int
	configFile string
)

func GetRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "locomotion",
		Short:         "Episodic locomotion and navigation experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCommand.PersistentFlags().IntVarP(&episodes, "episodes", "e", 100, "Number of episodes to run")
	rootCommand.PersistentFlags().IntVar(&horizon, "horizon", 1000, "Decision ticks allowed per episode")
	rootCommand.PersistentFlags().StringVarP(&saveFile, "save", "s", "results", "Save the result data in the specified folder")
	rootCommand.PersistentFlags().IntVar(&runs, "runs", 1, "Number of experiment runs")
	rootCommand.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	rootCommand.PersistentFlags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile to this file in the save folder")
	rootCommand.PersistentFlags().StringVar(&memprofile, "memprofile", "", "Write a heap profile to this file in the save folder")
	// adding the subcommands here
	rootCommand.AddCommand(WalkCommand())
	rootCommand.AddCommand(NavigateCommand())
	rootCommand.AddCommand(ValidateCommand())
	rootCommand.AddCommand(ServePolicyCommand())
	rootCommand.AddCommand(CounterCommand())
	return rootCommand
}

// loadConfig reads the configuration file and environment, then applies the
// flags given explicitly on the command line, and sets up logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("episodes") {
		v.Set("experiment.episodes", episodes)
	}
	if flags.Changed("horizon") {
		v.Set("experiment.horizon", horizon)
	}
	if flags.Changed("save") {
		v.Set("experiment.save", saveFile)
	}
	if flags.Changed("runs") {
		v.Set("experiment.runs", runs)
	}
	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return nil, err
	}
	observability.InitializeLogger(cfg.Logger)
	return cfg, nil
}

// interruptContext is cancelled on SIGINT or SIGTERM, or when the returned
// cancel function is called
func interruptContext() (context.Context, context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	doneCh := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
		case <-doneCh:
		}
		signal.Stop(sigCh)
		cancel()
	}()
	return ctx, func() { close(doneCh) }
}
