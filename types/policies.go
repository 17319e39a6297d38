package types

import (
	"context"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Policy maps an observation vector to an action vector once per decision
// tick. Act may block on an external process.
type Policy interface {
	Act(ctx context.Context, observation []float64) ([]float64, error)
}

// EpisodeListener is implemented by policies that react to a new episode
// starting, for instance to swap in a new checkpoint
type EpisodeListener interface {
	BeginEpisode(episode int)
}

// PolicyFunc adapts a function to the Policy interface
type PolicyFunc func(ctx context.Context, observation []float64) ([]float64, error)

func (f PolicyFunc) Act(ctx context.Context, observation []float64) ([]float64, error) {
	return f(ctx, observation)
}

// ZeroPolicy always returns the rest action
type ZeroPolicy struct {
	size int
}

var _ Policy = &ZeroPolicy{}

func NewZeroPolicy(actionSize int) *ZeroPolicy {
	return &ZeroPolicy{size: actionSize}
}

func (z *ZeroPolicy) Act(_ context.Context, _ []float64) ([]float64, error) {
	return make([]float64, z.size), nil
}

// RandomPolicy samples every action component uniformly from [-1, 1]
type RandomPolicy struct {
	size int
	dist distuv.Uniform
}

var _ Policy = &RandomPolicy{}

func NewRandomPolicy(actionSize int) *RandomPolicy {
	return NewSeededRandomPolicy(actionSize, uint64(time.Now().UnixNano()))
}

func NewSeededRandomPolicy(actionSize int, seed uint64) *RandomPolicy {
	return &RandomPolicy{
		size: actionSize,
		dist: distuv.Uniform{Min: -1, Max: 1, Src: rand.NewSource(seed)},
	}
}

func (r *RandomPolicy) Act(ctx context.Context, _ []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, r.size)
	for i := range out {
		out[i] = r.dist.Rand()
	}
	return out, nil
}
