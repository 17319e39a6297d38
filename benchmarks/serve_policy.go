package benchmarks

import (
	"github.com/spf13/cobra"
	"github.com/zeu5/locomotion-rl/policies"
	"go.uber.org/zap"
)

var policyAddr string

// ServePolicyCommand exposes a linear checkpoint over http for remote drivers
func ServePolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-policy [checkpoint]",
		Short: "Serve a linear policy checkpoint on POST /act",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			file := cfg.Policy.Checkpoint
			if len(args) == 1 {
				file = args[0]
			}
			linear, err := policies.LoadLinear(file)
			if err != nil {
				return err
			}
			obs, act := linear.Sizes()
			zap.L().Info("loaded checkpoint",
				zap.String("name", linear.Name()),
				zap.Int("observations", obs),
				zap.Int("actions", act))

			ctx, cancel := interruptContext()
			defer cancel()
			return policies.NewServer(policyAddr, linear).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&policyAddr, "addr", "127.0.0.1:8090", "Address to listen on")
	return cmd
}
