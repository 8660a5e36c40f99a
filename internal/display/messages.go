package display

import (
	"io"
	"os"

	"github.com/pterm/pterm"
)

// Printer writes status lines around a report.
type Printer struct {
	w io.Writer
}

// NewPrinter writes to w, or to stderr when w is nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stderr
	}
	return &Printer{w: w}
}

func (p *Printer) Info(msg string) {
	pterm.Info.WithWriter(p.w).Println(msg)
}

func (p *Printer) Warn(msg string) {
	pterm.Warning.WithWriter(p.w).Println(msg)
}

func (p *Printer) Error(msg string) {
	pterm.Error.WithWriter(p.w).Println(msg)
}
