package types

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
)

// StatusLine holds the latest progress text of one experiment. Updates
// come from the run loop while the printer reads it.
type StatusLine struct {
	mu   sync.Mutex
	text string
}

func (l *StatusLine) Update(text string) {
	l.mu.Lock()
	l.text = text
	l.mu.Unlock()
}

func (l *StatusLine) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}

// Progress redraws a fixed set of status lines in place
type Progress struct {
	lines    []*StatusLine
	interval time.Duration

	live   *uilive.Writer
	rows   []io.Writer
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProgress creates n status lines, redrawn to stdout every interval
func NewProgress(n int, interval time.Duration) *Progress {
	return newProgress(n, interval, nil)
}

func newProgress(n int, interval time.Duration, out io.Writer) *Progress {
	live := uilive.New()
	if out != nil {
		live.Out = out
	}
	if interval <= 0 {
		interval = time.Second
	}
	p := &Progress{
		lines:    make([]*StatusLine, n),
		interval: interval,
		live:     live,
		rows:     make([]io.Writer, n),
	}
	for i := range p.lines {
		p.lines[i] = &StatusLine{}
		if i == 0 {
			p.rows[i] = live
		} else {
			p.rows[i] = live.Newline()
		}
	}
	return p
}

// Line returns the i-th status line
func (p *Progress) Line(i int) *StatusLine {
	return p.lines[i]
}

// Start redraws until ctx is done or Stop is called
func (p *Progress) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.draw()
				return
			case <-ticker.C:
				p.draw()
			}
		}
	}()
}

// Stop draws a final frame and waits for the redraw loop to exit
func (p *Progress) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Progress) draw() {
	for i, line := range p.lines {
		if text := line.String(); text != "" {
			fmt.Fprintln(p.rows[i], text)
		}
	}
	p.live.Flush()
}
