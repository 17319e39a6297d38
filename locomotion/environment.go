package locomotion

import (
	"fmt"

	"github.com/zeu5/locomotion-rl/physics"
	"github.com/zeu5/locomotion-rl/skeleton"
	"github.com/zeu5/locomotion-rl/types"
)

// Environment is a world holding one skeleton and its locomotion agent
type Environment struct {
	World    *physics.World
	Skeleton *skeleton.Skeleton
	Agent    *Agent
}

func NewEnvironment(name string, skelCfg skeleton.Config, worldCfg physics.Config, cfg Config, opts ...skeleton.Option) (*Environment, error) {
	world := physics.NewWorld(worldCfg)
	skel, err := skeleton.Build(skelCfg, world, opts...)
	if err != nil {
		return nil, fmt.Errorf("building skeleton for %s: %w", name, err)
	}
	agent, err := NewAgent(name, skel, cfg)
	if err != nil {
		return nil, err
	}
	return &Environment{World: world, Skeleton: skel, Agent: agent}, nil
}

// Driver wraps the agent in a driver registered on a new simulation over the
// environment's world
func (e *Environment) Driver(sctx *types.SimulationContext, simCfg types.SimulationConfig, dCfg types.DriverConfig) (*types.Simulation, *types.Driver, error) {
	sim, err := types.NewSimulation(e.World, sctx, simCfg)
	if err != nil {
		return nil, nil, err
	}
	dCfg.Task = e.Agent
	if dCfg.Name == "" {
		dCfg.Name = e.Agent.Name()
	}
	d := types.NewDriver(dCfg)
	sim.AddDriver(d)
	return sim, d, nil
}
