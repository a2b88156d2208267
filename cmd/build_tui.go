package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/assetbuild/pkg/build"
	"github.com/grovetools/assetbuild/pkg/progress"
)

// buildRow is one source directory in the status view.
type buildRow struct {
	name   string
	done   bool
	result build.Result
}

type buildTUIModel struct {
	rows     []buildRow
	spinner  spinner.Model
	finished int
	quitting bool

	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

// jobResultMsg carries one finished build from the pool.
type jobResultMsg build.JobResult

// poolClosedMsg is sent when the pool has no more results.
type poolClosedMsg struct{}

func newBuildTUIModel(dirs []string) buildTUIModel {
	rows := make([]buildRow, len(dirs))
	for i, dir := range dirs {
		rows[i] = buildRow{name: filepath.Base(dir)}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))

	return buildTUIModel{
		rows:    rows,
		spinner: s,
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func (m buildTUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m buildTUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case jobResultMsg:
		if msg.Index >= 0 && msg.Index < len(m.rows) && !m.rows[msg.Index].done {
			m.rows[msg.Index].done = true
			m.rows[msg.Index].result = msg.Result
			m.finished++
		}
		if m.finished == len(m.rows) {
			return m, tea.Quit
		}
		return m, nil

	case poolClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m buildTUIModel) View() string {
	var b strings.Builder
	failed := 0
	for _, row := range m.rows {
		if !row.done {
			fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), row.name)
			continue
		}
		res := row.result
		switch res.Status {
		case build.StatusFailed:
			failed++
			fmt.Fprintf(&b, "%s %s %s\n", m.failure.Render(progress.IconError), row.name,
				m.failure.Render(fmt.Sprintf("%s: %s", res.Failed, lastLine(res.Error))))
		case build.StatusBuilt:
			fmt.Fprintf(&b, "%s %s %s\n", m.success.Render(progress.IconSuccess), row.name,
				m.muted.Render(res.Duration.Round(time.Millisecond).String()))
		default:
			fmt.Fprintf(&b, "%s %s %s\n", m.muted.Render(progress.IconSkip), row.name,
				m.muted.Render(string(res.Status)))
		}
	}
	fmt.Fprintf(&b, "\n%s\n", m.muted.Render(fmt.Sprintf("%d/%d done, %d failed", m.finished, len(m.rows), failed)))
	return b.String()
}

// lastLine keeps the view to one line per directory.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// runBuildTUI shows a live status view while the pool runs. Quitting early
// cancels the remaining builds; their results are still collected.
func runBuildTUI(out io.Writer, dirs []string, results <-chan build.JobResult, cancel context.CancelFunc) ([]build.Result, error) {
	p := tea.NewProgram(newBuildTUIModel(dirs), tea.WithOutput(out))

	collected := make([]build.Result, len(dirs))
	var mu sync.Mutex
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		for r := range results {
			mu.Lock()
			collected[r.Index] = r.Result
			mu.Unlock()
			p.Send(jobResultMsg(r))
		}
		p.Send(poolClosedMsg{})
	}()

	final, err := p.Run()
	if fm, ok := final.(buildTUIModel); err != nil || (ok && fm.quitting) {
		cancel()
	}
	<-relayDone

	mu.Lock()
	defer mu.Unlock()
	return collected, err
}

// useBuildTUI reports whether build should show the live view: only on a
// terminal, and never with --json or --verbose.
func useBuildTUI(out io.Writer) bool {
	return !rootOpts.JSONOutput && !rootOpts.Verbose && progress.IsTerminal(out)
}
