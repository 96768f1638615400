// Package tui renders live walk and hashing progress on a terminal.
package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/jamesainslie/sfisum/pkg/sfisum/hasher"
	"github.com/jamesainslie/sfisum/pkg/sfisum/walker"
)

var (
	primaryColor = lipgloss.Color("39")
	mutedColor   = lipgloss.Color("245")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	labelStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	barFillStyle = lipgloss.NewStyle().Foreground(primaryColor)
	barEmpty     = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

const barWidth = 24

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// WalkMsg carries walker progress.
type WalkMsg walker.Progress

// HashMsg carries hasher progress for one pool.
type HashMsg hasher.Progress

// DoneMsg ends the view.
type DoneMsg struct{}

// Model is the progress view.
type Model struct {
	title   string
	spinner spinner.Model
	start   time.Time

	walk    walker.Progress
	hashing bool
	pools   [2]hasher.Progress
	done    bool
}

// NewModel creates a progress view with the given title.
func NewModel(title string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		title:   title,
		spinner: s,
		start:   time.Now(),
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles progress and spinner messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case WalkMsg:
		m.walk = walker.Progress(msg)
		return m, nil

	case HashMsg:
		p := hasher.Progress(msg)
		m.hashing = true
		if int(p.Pool) < len(m.pools) {
			m.pools[p.Pool] = p
		}
		return m, nil

	case DoneMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders one status line. It is empty once done so the line is
// cleared before the report is printed.
func (m Model) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("  ")

	if !m.hashing {
		b.WriteString(labelStyle.Render("walking "))
		fmt.Fprintf(&b, "%s files, %s",
			humanize.Comma(m.walk.Files),
			humanize.IBytes(uint64(max(m.walk.Bytes, 0))))
	} else {
		var done, total int64
		for _, p := range m.pools {
			done += p.Total - p.Remaining
			total += p.Total
		}
		b.WriteString(labelStyle.Render("hashing "))
		b.WriteString(renderBar(done, total))
		fmt.Fprintf(&b, " %s/%s", humanize.Comma(done), humanize.Comma(total))
		for _, p := range m.pools {
			if p.Total == 0 {
				continue
			}
			fmt.Fprintf(&b, "  %s %d/%d", labelStyle.Render(p.Pool.String()), p.Total-p.Remaining, p.Total)
		}
	}

	b.WriteString("  ")
	b.WriteString(labelStyle.Render(time.Since(m.start).Round(time.Second).String()))
	return b.String()
}

func renderBar(done, total int64) string {
	filled := 0
	if total > 0 {
		filled = int(done * barWidth / total)
	}
	filled = min(max(filled, 0), barWidth)
	return barFillStyle.Render(strings.Repeat("█", filled)) +
		barEmpty.Render(strings.Repeat("░", barWidth-filled))
}

// Progress runs a Model in the background. Its methods are safe to call
// from walker and hasher goroutines.
type Progress struct {
	program *tea.Program
	done    chan struct{}
}

// Start shows progress on out until Stop is called. Signals are left to the
// caller, and keyboard input is not read.
func Start(title string, out io.Writer) *Progress {
	p := &Progress{
		program: tea.NewProgram(NewModel(title),
			tea.WithOutput(out),
			tea.WithInput(nil),
			tea.WithoutSignalHandler()),
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
	return p
}

// Walk forwards walker progress.
func (p *Progress) Walk(pr walker.Progress) {
	p.program.Send(WalkMsg(pr))
}

// Hash forwards hasher progress.
func (p *Progress) Hash(pr hasher.Progress) {
	p.program.Send(HashMsg(pr))
}

// Stop clears the progress line and waits for the view to exit.
func (p *Progress) Stop() {
	p.program.Send(DoneMsg{})
	<-p.done
}
