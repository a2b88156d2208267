// Package progress prints human-readable build progress. It is presentational
// only; callers must not parse it.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

const (
	IconStart   = "⧗"
	IconSuccess = "✔"
	IconError   = "✘"
	IconSkip    = "•"
)

// Printer writes start, success, skip and failure lines.
type Printer struct {
	out   io.Writer
	errW  io.Writer
	color bool

	start   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

// New creates a printer writing progress to out and failures to errW.
// Colors are used only when out is a terminal and noColor is false.
func New(out, errW io.Writer, noColor bool) *Printer {
	color := !noColor && IsTerminal(out)
	mu := &sync.Mutex{}
	p := &Printer{
		out:   &syncWriter{mu: mu, w: out},
		errW:  &syncWriter{mu: mu, w: errW},
		color: color,
	}

	p.start = lipgloss.NewStyle().Bold(true)
	p.success = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	p.failure = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	p.muted = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	return p
}

// Discard returns a printer that writes nothing.
func Discard() *Printer {
	return New(io.Discard, io.Discard, true)
}

func (p *Printer) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Start announces a build.
func (p *Printer) Start(name string) {
	fmt.Fprintf(p.out, "%s Building %s...\n", p.render(p.start, IconStart), name)
}

// Step announces one step of a build.
func (p *Printer) Step(name string) {
	fmt.Fprintf(p.out, "  %s\n", p.render(p.muted, name))
}

// Success reports a finished build.
func (p *Printer) Success(name string, d time.Duration) {
	fmt.Fprintf(p.out, "%s %s %s\n",
		p.render(p.success, IconSuccess),
		name,
		p.render(p.muted, fmt.Sprintf("(%v)", d.Round(time.Millisecond))))
}

// Skipped reports a build that was not needed.
func (p *Printer) Skipped(name, reason string) {
	fmt.Fprintf(p.out, "%s %s %s\n",
		p.render(p.muted, IconSkip),
		name,
		p.render(p.muted, "("+reason+")"))
}

// Failure reports a failed build to the error stream.
func (p *Printer) Failure(name string, err error) {
	fmt.Fprintf(p.errW, "%s %s: %s\n",
		p.render(p.failure, IconError),
		name,
		p.render(p.failure, err.Error()))
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// syncWriter serializes lines from concurrent builds. Both streams of a
// printer share one mutex so lines never interleave.
type syncWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
