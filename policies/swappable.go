package policies

import (
	"context"
	"errors"
	"sync"

	"github.com/zeu5/locomotion-rl/types"
	"go.uber.org/zap"
)

var ErrNoPolicy = errors.New("no policy loaded")

// Swappable holds the policy in use and a staged replacement. Stage may be
// called from any goroutine; the staged policy takes over when the next
// episode begins, never in the middle of one.
type Swappable struct {
	mu      sync.Mutex
	current types.Policy
	staged  types.Policy
	swaps   int
	logger  *zap.Logger
}

var _ types.Policy = &Swappable{}
var _ types.EpisodeListener = &Swappable{}

func NewSwappable(initial types.Policy) *Swappable {
	return &Swappable{
		current: initial,
		logger:  zap.L().Named("policies"),
	}
}

// Stage queues p for the next episode, replacing any earlier staged policy
func (s *Swappable) Stage(p types.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = p
}

func (s *Swappable) BeginEpisode(episode int) {
	s.mu.Lock()
	if s.staged != nil {
		s.current = s.staged
		s.staged = nil
		s.swaps++
		s.logger.Info("swapped policy", zap.Int("episode", episode), zap.Int("swaps", s.swaps))
	}
	current := s.current
	s.mu.Unlock()

	if l, ok := current.(types.EpisodeListener); ok {
		l.BeginEpisode(episode)
	}
}

func (s *Swappable) Act(ctx context.Context, observation []float64) ([]float64, error) {
	p := s.Current()
	if p == nil {
		return nil, ErrNoPolicy
	}
	return p.Act(ctx, observation)
}

func (s *Swappable) Current() types.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Pending reports whether a staged policy is waiting for the next episode
func (s *Swappable) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged != nil
}

func (s *Swappable) Swaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swaps
}
