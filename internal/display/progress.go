// Package display owns everything the CLI prints to the terminal besides the
// report itself. All of it goes to stderr.
package display

import (
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm"

	"github.com/shpitdev/couch-xray/pkg/pipeline/batch"
)

// Bar is a pterm progress bar, one per batch. It satisfies batch.Progress.
type Bar struct {
	w io.Writer

	mu   sync.Mutex
	bar  *pterm.ProgressbarPrinter
	done int
}

var _ batch.Progress = (*Bar)(nil)

// NewBar returns a bar drawing to w, or to stderr when w is nil.
func NewBar(w io.Writer) *Bar {
	if w == nil {
		w = os.Stderr
	}
	return &Bar{w: w}
}

func (b *Bar) Start(title string, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if total <= 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.
		WithTitle(title).
		WithTotal(total).
		WithWriter(b.w).
		WithRemoveWhenDone(false).
		Start()
	if err != nil {
		return
	}
	b.bar = bar
	b.done = 0
}

func (b *Bar) Update(done, _ int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil || done <= b.done {
		return
	}
	b.bar.Add(done - b.done)
	b.done = done
}

func (b *Bar) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		return
	}
	_, _ = b.bar.Stop()
	b.bar = nil
}

// Nop discards progress. Used when stderr is not a terminal or output is
// machine-readable.
type Nop struct{}

func (Nop) Start(string, int) {}
func (Nop) Update(int, int)   {}
func (Nop) Stop()             {}

// NewProgress picks a Bar drawing to w, or Nop when disabled.
func NewProgress(enabled bool, w io.Writer) batch.Progress {
	if !enabled {
		return Nop{}
	}
	return NewBar(w)
}
