// Package tui renders live calculation progress: one line per simulation
// object with its status, fed by engine observer events while the pass
// runs in the background.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

type objectState int

const (
	statePending objectState = iota
	stateActive
	stateDone
	stateFailed
)

type objectRow struct {
	name    string
	state   objectState
	elapsed time.Duration
	err     error
}

// Messages sent by the observer adapter.
type PassStartedMsg struct{ Objects []string }
type ObjectStartedMsg struct{ Name string }
type ObjectFinishedMsg struct {
	Name    string
	Elapsed time.Duration
	Err     error
}
type PassFinishedMsg struct {
	Elapsed  time.Duration
	Failures int
}

// RunDoneMsg ends the live view once the whole run, possibly several
// passes, has completed. Stabilization and driver passes each emit their
// own PassFinishedMsg; only this message quits.
type RunDoneMsg struct{}

type model struct {
	title    string
	rows     []objectRow
	idx      map[string]int
	finished bool
	elapsed  time.Duration
	failures int
	quitting bool
}

// NewModel creates the live-view model for one pass.
func NewModel(title string) tea.Model {
	return model{title: title, idx: make(map[string]int)}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case PassStartedMsg:
		m.rows = make([]objectRow, len(msg.Objects))
		m.idx = make(map[string]int, len(msg.Objects))
		for i, name := range msg.Objects {
			m.rows[i] = objectRow{name: name}
			m.idx[name] = i
		}
		m.finished = false
		return m, nil

	case ObjectStartedMsg:
		if i, ok := m.idx[msg.Name]; ok {
			m.rows[i].state = stateActive
		}
		return m, nil

	case ObjectFinishedMsg:
		if i, ok := m.idx[msg.Name]; ok {
			m.rows[i].elapsed = msg.Elapsed
			m.rows[i].err = msg.Err
			if msg.Err != nil {
				m.rows[i].state = stateFailed
			} else {
				m.rows[i].state = stateDone
			}
		}
		return m, nil

	case PassFinishedMsg:
		m.finished = true
		m.elapsed = msg.Elapsed
		m.failures = msg.Failures
		return m, nil

	case RunDoneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(m.title))
	b.WriteString("\n\n")

	for _, row := range m.rows {
		switch row.state {
		case statePending:
			fmt.Fprintf(&b, "  %s %s\n", pendingStyle.Render("·"), pendingStyle.Render(row.name))
		case stateActive:
			fmt.Fprintf(&b, "  %s %s\n", activeStyle.Render("▸"), row.name)
		case stateDone:
			fmt.Fprintf(&b, "  %s %s %s\n", doneStyle.Render("✓"), row.name,
				dimStyle.Render(row.elapsed.Round(time.Microsecond).String()))
		case stateFailed:
			fmt.Fprintf(&b, "  %s %s %s\n", failStyle.Render("✗"), row.name,
				failStyle.Render(row.err.Error()))
		}
	}

	b.WriteString("\n")
	if m.finished {
		if m.failures > 0 {
			b.WriteString(failStyle.Render(fmt.Sprintf("finished in %.2fs, %d failure(s)", m.elapsed.Seconds(), m.failures)))
		} else {
			b.WriteString(doneStyle.Render(fmt.Sprintf("finished in %.2fs", m.elapsed.Seconds())))
		}
	} else {
		b.WriteString(dimStyle.Render("calculating... press q to abort the view"))
	}
	b.WriteString("\n")
	return b.String()
}

// Observer bridges engine events into a running bubbletea program.
type Observer struct {
	p *tea.Program
}

func NewObserver(p *tea.Program) *Observer { return &Observer{p: p} }

func (o *Observer) PassStarted(objects []string) { o.p.Send(PassStartedMsg{Objects: objects}) }
func (o *Observer) ObjectStarted(name string)    { o.p.Send(ObjectStartedMsg{Name: name}) }
func (o *Observer) ObjectFinished(name string, elapsed time.Duration, err error) {
	o.p.Send(ObjectFinishedMsg{Name: name, Elapsed: elapsed, Err: err})
}
func (o *Observer) PassFinished(elapsed time.Duration, failures int) {
	o.p.Send(PassFinishedMsg{Elapsed: elapsed, Failures: failures})
}
