package types

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zeu5/locomotion-rl/physics"
)

// EpisodeContext is the per episode state owned by a driver
type EpisodeContext struct {
	Episode int
	// Step counts decision ticks since Begin
	Step int
	// Elapsed is the simulated time since Begin in seconds
	Elapsed float64
	Reward  float64
	State   EpisodeState
	Reason  TerminationReason
	Spawn   physics.Pose

	Trace  *Trace
	Report *EpisodeReport
}

func NewEpisodeContext(episode int, name string, spawn physics.Pose) *EpisodeContext {
	return &EpisodeContext{
		Episode: episode,
		State:   Begin,
		Spawn:   spawn,
		Trace:   NewTrace(),
		Report:  NewEpisodeReport(episode, name),
	}
}

// Terminated reports whether the episode has ended
func (e *EpisodeContext) Terminated() bool {
	return e.State == Terminated
}

// EpisodeReport is a timeline of notable values recorded by the driver
// during an episode, e.g. policy errors and the final reward
type EpisodeReport struct {
	Episode int
	Driver  string

	step    int
	next    int
	started time.Time
	lock    *sync.Mutex

	Timeline []*ReportEntry
	Values   map[string][]*ReportEntry
	Logs     map[string]string
}

func NewEpisodeReport(episode int, driver string) *EpisodeReport {
	return &EpisodeReport{
		Episode:  episode,
		Driver:   driver,
		started:  time.Now(),
		lock:     new(sync.Mutex),
		Timeline: make([]*ReportEntry, 0),
		Values:   make(map[string][]*ReportEntry),
		Logs:     make(map[string]string),
	}
}

func (e *EpisodeReport) setEpisodeStep(step int) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.step = step
}

// AddEntry appends a value of the given kind, stamped with the current
// decision tick
func (e *EpisodeReport) AddEntry(value float64, kind string, caller string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	entry := &ReportEntry{
		Index:  e.next,
		Wall:   time.Since(e.started),
		Step:   e.step,
		Kind:   kind,
		Caller: caller,
		Value:  value,
	}
	e.next++
	e.Timeline = append(e.Timeline, entry)
	e.Values[kind] = append(e.Values[kind], entry)
}

func (e *EpisodeReport) AddLog(value string, key string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.Logs[key] = value
}

// Count returns the number of entries of the given kind
func (e *EpisodeReport) Count(kind string) int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.Values[kind])
}

// Lines renders the timeline followed by the logs, sorted by key
func (e *EpisodeReport) Lines() []string {
	e.lock.Lock()
	defer e.lock.Unlock()
	out := make([]string, 0, len(e.Timeline)+len(e.Logs)+1)
	out = append(out, fmt.Sprintf("episode %d of %s, %d entries", e.Episode, e.Driver, len(e.Timeline)))
	for _, entry := range e.Timeline {
		out = append(out, entry.String())
	}
	keys := make([]string, 0, len(e.Logs))
	for k := range e.Logs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %s", k, e.Logs[k]))
	}
	return out
}

type ReportEntry struct {
	Index int
	// Wall is the wall clock time since the report was created
	Wall   time.Duration
	Step   int
	Kind   string
	Caller string
	Value  float64
}

func (en *ReportEntry) String() string {
	return fmt.Sprintf("[ %6d | %5dms | %4d ] %16s : %10.4f (%s)", en.Index, en.Wall.Milliseconds(), en.Step, en.Kind, en.Value, en.Caller)
}
