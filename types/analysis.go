package types

import (
	"os"
	"path"
	"strconv"

	"github.com/zeu5/locomotion-rl/util"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// RewardAnalyzer collects the total reward of every finished episode
type RewardAnalyzer struct {
	rewards []float64
}

var _ Analyzer = &RewardAnalyzer{}

func NewRewardAnalyzer() *RewardAnalyzer {
	return &RewardAnalyzer{rewards: make([]float64, 0)}
}

func (r *RewardAnalyzer) Analyze(_ int, _ int, _ string, ep *EpisodeContext) {
	r.rewards = append(r.rewards, ep.Reward)
}

func (r *RewardAnalyzer) DataSet() DataSet {
	return append([]float64(nil), r.rewards...)
}

func (r *RewardAnalyzer) Reset() {
	r.rewards = make([]float64, 0)
}

// LengthAnalyzer collects the number of decision ticks of every finished episode
type LengthAnalyzer struct {
	lengths []float64
}

var _ Analyzer = &LengthAnalyzer{}

func NewLengthAnalyzer() *LengthAnalyzer {
	return &LengthAnalyzer{lengths: make([]float64, 0)}
}

func (l *LengthAnalyzer) Analyze(_ int, _ int, _ string, ep *EpisodeContext) {
	l.lengths = append(l.lengths, float64(ep.Step))
}

func (l *LengthAnalyzer) DataSet() DataSet {
	return append([]float64(nil), l.lengths...)
}

func (l *LengthAnalyzer) Reset() {
	l.lengths = make([]float64, 0)
}

// TerminationAnalyzer counts finished episodes by termination reason
type TerminationAnalyzer struct {
	counts map[TerminationReason]int
}

var _ Analyzer = &TerminationAnalyzer{}

func NewTerminationAnalyzer() *TerminationAnalyzer {
	return &TerminationAnalyzer{counts: make(map[TerminationReason]int)}
}

func (t *TerminationAnalyzer) Analyze(_ int, _ int, _ string, ep *EpisodeContext) {
	t.counts[ep.Reason]++
}

func (t *TerminationAnalyzer) DataSet() DataSet {
	out := make(map[TerminationReason]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

func (t *TerminationAnalyzer) Reset() {
	t.counts = make(map[TerminationReason]int)
}

// FailureRecorder saves the trace of every episode ending with one of the
// given reasons, so falls can be replayed offline. The DataSet is the
// episode number of the first failure per reason.
type FailureRecorder struct {
	savePath string
	reasons  map[TerminationReason]bool
	first    map[TerminationReason]int
	logger   *zap.Logger
}

var _ Analyzer = &FailureRecorder{}

func NewFailureRecorder(savePath string, reasons ...TerminationReason) *FailureRecorder {
	if len(reasons) == 0 {
		reasons = []TerminationReason{Fell}
	}
	set := make(map[TerminationReason]bool)
	for _, r := range reasons {
		set[r] = true
	}
	os.MkdirAll(savePath, 0777)
	return &FailureRecorder{
		savePath: savePath,
		reasons:  set,
		first:    make(map[TerminationReason]int),
		logger:   zap.L().Named("analysis"),
	}
}

func (f *FailureRecorder) Analyze(run int, episode int, name string, ep *EpisodeContext) {
	if !f.reasons[ep.Reason] {
		return
	}
	if _, ok := f.first[ep.Reason]; !ok {
		f.first[ep.Reason] = episode
	}
	base := path.Join(f.savePath, strconv.Itoa(run)+"_"+name+"_"+ep.Reason.String()+"_"+strconv.Itoa(episode))
	if err := ep.Trace.Record(base + ".json"); err != nil {
		f.logger.Warn("recording failed episode", zap.String("path", base), zap.Error(err))
	}
	if ep.Report != nil {
		if err := util.WriteToFile(base+"_report.txt", ep.Report.Lines()...); err != nil {
			f.logger.Warn("recording episode report", zap.String("path", base), zap.Error(err))
		}
	}
}

func (f *FailureRecorder) DataSet() DataSet {
	out := make(map[TerminationReason]int, len(f.first))
	for k, v := range f.first {
		out[k] = v
	}
	return out
}

func (f *FailureRecorder) Reset() {
	f.first = make(map[TerminationReason]int)
}

// SeriesPlotter draws one line per experiment from []float64 datasets and
// saves it as <plotPath>/<run>_<name>.png
func SeriesPlotter(plotPath, name, yLabel string) Comparator {
	logger := zap.L().Named("analysis")
	if _, err := os.Stat(plotPath); err != nil {
		os.MkdirAll(plotPath, os.ModePerm)
	}
	return func(run int, names []string, ds []DataSet) {
		p := plot.New()
		p.Title.Text = "Comparison"
		p.X.Label.Text = "Episode"
		p.Y.Label.Text = yLabel
		for i := 0; i < len(names); i++ {
			series, ok := ds[i].([]float64)
			if !ok || len(series) == 0 {
				continue
			}
			points := make(plotter.XYs, len(series))
			for j, v := range series {
				points[j] = plotter.XY{X: float64(j), Y: v}
			}
			line, err := plotter.NewLine(points)
			if err != nil {
				continue
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(names[i], line)

			mean, std := stat.MeanStdDev(series, nil)
			logger.Info("series summary",
				zap.String("series", name),
				zap.String("experiment", names[i]),
				zap.Float64("mean", mean),
				zap.Float64("std", std))
		}
		out := path.Join(plotPath, strconv.Itoa(run)+"_"+name+".png")
		if err := p.Save(8*vg.Inch, 8*vg.Inch, out); err != nil {
			logger.Warn("saving plot", zap.String("path", out), zap.Error(err))
		}
	}
}

// RewardPlotter plots episode rewards
func RewardPlotter(plotPath string) Comparator {
	return SeriesPlotter(plotPath, "reward", "Episode reward")
}

// LengthPlotter plots episode lengths
func LengthPlotter(plotPath string) Comparator {
	return SeriesPlotter(plotPath, "length", "Decision ticks")
}

// TerminationComparator logs the termination counts of every experiment
func TerminationComparator() Comparator {
	logger := zap.L().Named("analysis")
	return func(run int, names []string, ds []DataSet) {
		for i, name := range names {
			counts, ok := ds[i].(map[TerminationReason]int)
			if !ok {
				continue
			}
			fields := []zap.Field{zap.Int("run", run), zap.String("experiment", name)}
			for _, r := range Reasons() {
				fields = append(fields, zap.Int(r.String(), counts[r]))
			}
			logger.Info("terminations", fields...)
		}
	}
}
