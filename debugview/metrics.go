package debugview

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeu5/locomotion-rl/types"
)

// Metrics counts ended episodes per driver and termination reason. It is an
// EpisodeObserver; the tick gauge is refreshed through Attach.
type Metrics struct {
	registry *prometheus.Registry

	episodes *prometheus.CounterVec
	reward   *prometheus.HistogramVec
	length   *prometheus.HistogramVec
	ticks    prometheus.Gauge
}

var _ types.EpisodeObserver = &Metrics{}

// NewMetrics registers the collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		episodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locomotion_episodes_total",
				Help: "Total number of ended episodes",
			},
			[]string{"driver", "reason"},
		),
		reward: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "locomotion_episode_reward",
				Help:    "Cumulative reward of ended episodes",
				Buckets: []float64{-100, -10, -1, 0, 1, 10, 100, 1000},
			},
			[]string{"driver"},
		),
		length: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "locomotion_episode_steps",
				Help:    "Decision ticks taken by ended episodes",
				Buckets: prometheus.ExponentialBuckets(10, 2, 10),
			},
			[]string{"driver"},
		),
		ticks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "locomotion_simulation_ticks",
			Help: "Decision ticks run by the simulation",
		}),
	}
	m.registry.MustRegister(m.episodes, m.reward, m.length, m.ticks)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Attach observes every driver of sim and tracks its tick count. Drivers
// added later are not observed.
func (m *Metrics) Attach(sim *types.Simulation) {
	for _, d := range sim.Drivers() {
		d.AddObserver(m)
	}
	sim.AfterTick(func(s *types.Simulation) {
		m.ticks.Set(float64(s.Ticks()))
	})
}

func (m *Metrics) EpisodeEnded(driver string, ctx *types.EpisodeContext) {
	m.episodes.WithLabelValues(driver, ctx.Reason.String()).Inc()
	m.reward.WithLabelValues(driver).Observe(ctx.Reward)
	m.length.WithLabelValues(driver).Observe(float64(ctx.Step))
}
