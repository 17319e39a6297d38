package benchmarks

import (
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"
	"github.com/zeu5/locomotion-rl/observability"
	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/skeleton"
)

var (
	strictAnchors   bool
	anchorTolerance float64
)

// Validate builds the skeleton described by cfg and prints its joints
func Validate(cfg skeleton.Config, out io.Writer, opts ...skeleton.Option) error {
	world := physics.NewWorld(physics.DefaultConfig())
	skel, err := skeleton.Build(cfg, world, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "skeleton %s: %d parts, %d joints, mass %.3f kg, root at height %.3f\n",
		skel.Name, len(skel.Parts()), len(skel.Joints()), skel.Mass(), skel.Home().Position.Y)
	for _, j := range skel.Joints() {
		limit := j.PrimaryLimit()
		fmt.Fprintf(out, "  %-16s %-10s %s -> %s  [%.1f, %.1f] deg  kp=%g kd=%g\n",
			j.Name, j.Kind,
			skel.Parts()[j.ParentIndex].Name, skel.Parts()[j.ChildIndex].Name,
			limit.Min*180/math.Pi, limit.Max*180/math.Pi,
			j.Gains.Kp, j.Gains.Kd)
	}
	return nil
}

func ValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [skeleton.yaml]",
		Short: "Build a skeleton description and report its joints",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Skeleton = args[0]
			}
			skelCfg, err := skeletonConfig(cfg)
			if err != nil {
				return err
			}
			opts := []skeleton.Option{skeleton.WithLogger(observability.GetLogger())}
			if strictAnchors {
				opts = append(opts, skeleton.WithStrictAnchors())
			}
			if cmd.Flags().Changed("anchor-tolerance") {
				opts = append(opts, skeleton.WithAnchorTolerance(anchorTolerance))
			}
			return Validate(skelCfg, cmd.OutOrStdout(), opts...)
		},
	}
	cmd.Flags().BoolVar(&strictAnchors, "strict", false, "Fail when the two anchors of a joint do not coincide")
	cmd.Flags().Float64Var(&anchorTolerance, "anchor-tolerance", 0, "Warn when the two anchors of a joint are further apart than this")
	return cmd
}
