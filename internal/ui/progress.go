// Package ui renders translation progress in the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"classdex/internal/buildpipeline"
)

// visibleItems caps the per-input lines; older finished inputs scroll off.
const visibleItems = 12

type progressModel struct {
	title      string
	events     <-chan buildpipeline.Event
	spinner    spinner.Model
	prog       progress.Model
	items      []item
	index      map[string]int
	recent     []int
	counts     map[buildpipeline.Status]int
	stageLabel string
	width      int
	done       bool
}

type item struct {
	name   string
	status buildpipeline.Status
	stage  buildpipeline.Stage
}

type eventMsg buildpipeline.Event
type doneMsg struct{}

// NewProgressModel returns a model fed by events until the channel closes.
// Inputs announced later with a queued event are added as they arrive.
func NewProgressModel(title string, files []string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		index:   make(map[string]int, len(files)),
		counts:  map[buildpipeline.Status]int{},
		width:   80,
	}
	for _, f := range files {
		m.add(f)
	}
	return m
}

func (m *progressModel) add(name string) int {
	if idx, ok := m.index[name]; ok {
		return idx
	}
	m.items = append(m.items, item{name: name, status: buildpipeline.StatusQueued})
	m.index[name] = len(m.items) - 1
	m.counts[buildpipeline.StatusQueued]++
	return len(m.items) - 1
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(buildpipeline.Event(msg)), m.listen())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *progressModel) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) apply(ev buildpipeline.Event) tea.Cmd {
	if ev.File == "" {
		m.stageLabel = stageLabel(ev.Stage)
		return nil
	}
	idx := m.add(ev.File)
	it := &m.items[idx]
	m.counts[it.status]--
	it.status, it.stage = ev.Status, ev.Stage
	m.counts[it.status]++
	m.touch(idx)

	finished := 0
	for _, s := range []buildpipeline.Status{buildpipeline.StatusDone, buildpipeline.StatusCached, buildpipeline.StatusError} {
		finished += m.counts[s]
	}
	return m.prog.SetPercent(float64(finished) / float64(len(m.items)))
}

// touch moves idx to the end of the recently changed list.
func (m *progressModel) touch(idx int) {
	for i, r := range m.recent {
		if r == idx {
			m.recent = append(m.recent[:i], m.recent[i+1:]...)
			break
		}
	}
	m.recent = append(m.recent, idx)
	if len(m.recent) > visibleItems {
		m.recent = m.recent[len(m.recent)-visibleItems:]
	}
}

func (m *progressModel) View() string {
	header := m.title
	if m.stageLabel != "" {
		header = fmt.Sprintf("%s (%s)", header, m.stageLabel)
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7")).Render(header))
	b.WriteString("\n\n")

	nameWidth := max(m.width-16, 20)
	for _, idx := range m.recent {
		it := m.items[idx]
		label := statusLabel(it.stage, it.status)
		fmt.Fprintf(&b, "  %s %s\n", styleStatus(it.status).Render(fmt.Sprintf("%12s", label)), truncate(it.name, nameWidth))
	}
	fmt.Fprintf(&b, "\n  %d classes: %d translated, %d cached, %d failed\n",
		len(m.items), m.counts[buildpipeline.StatusDone], m.counts[buildpipeline.StatusCached], m.counts[buildpipeline.StatusError])
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func statusLabel(stage buildpipeline.Stage, status buildpipeline.Status) string {
	if status == buildpipeline.StatusWorking {
		return stageLabel(stage)
	}
	return string(status)
}

func stageLabel(stage buildpipeline.Stage) string {
	switch stage {
	case buildpipeline.StageDiscover:
		return "discovering"
	case buildpipeline.StageParse:
		return "parsing"
	case buildpipeline.StageTranslate:
		return "translating"
	case buildpipeline.StageWrite:
		return "writing"
	}
	return ""
}

func styleStatus(status buildpipeline.Status) lipgloss.Style {
	switch status {
	case buildpipeline.StatusDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case buildpipeline.StatusCached:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	case buildpipeline.StatusError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case buildpipeline.StatusWorking:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
