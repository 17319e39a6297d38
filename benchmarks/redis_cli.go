package benchmarks

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zeu5/locomotion-rl/redisstore"
)

var resetCounter bool

// CounterCommand prints the shared episode counter kept in redis
func CounterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redis-counter",
		Short: "Show or reset the shared episode counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return errors.New("no redis address configured (redis.addr or LOCO_REDIS_ADDR)")
			}
			counter := redisstore.New(cfg.Redis.Addr, redisstore.WithKey(cfg.Redis.Key))
			defer counter.Close()

			ctx, cancel := interruptContext()
			defer cancel()

			if resetCounter {
				if err := counter.Reset(ctx); err != nil {
					return err
				}
			}
			n, err := counter.Value(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", counter.Key(), n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&resetCounter, "reset", false, "Reset the counter before printing it")
	return cmd
}
