package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rmax-ai/rigbind/pkg/engine"
	"github.com/rmax-ai/rigbind/pkg/reports"
	"github.com/rmax-ai/rigbind/pkg/retarget"
	"github.com/rmax-ai/rigbind/pkg/scene"
	"github.com/rmax-ai/rigbind/pkg/store"
)

const (
	pollRate       = 2 * time.Second
	maxEvents      = 20
	viewportHeight = 12
	paneWidth      = 48
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(2*paneWidth + 4)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(paneWidth)

	focusedPaneStyle = paneStyle.BorderForeground(lipgloss.Color("205"))

	eventTimeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	eventTypeStyle = lipgloss.NewStyle().Width(20).Bold(true)
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	copyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	resetStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// HistoryStore is the part of the journal the TUI reads.
type HistoryStore interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
}

type side int

const (
	sideSource side = iota
	sideTarget
)

type tickMsg time.Time

type sceneMsg struct {
	scene  *scene.Scene
	events []*store.Event
	err    error
}

type opResultMsg struct {
	status string
	detail string
	err    error
}

// EditorFactory builds an editor for the current traversal options.
type EditorFactory func(opts retarget.Options) *engine.Editor

type model struct {
	scenePath string
	newEditor EditorFactory
	history   HistoryStore
	opts      retarget.Options
	kind      retarget.Kind

	spinner  spinner.Model
	viewport viewport.Model

	scene  *scene.Scene
	paths  []string
	picks  [2]int // index into paths per side, -1 for none
	focus  side
	events []*store.Event

	busy   bool
	status string
	err    error
	ready  bool
}

func newModel(scenePath string, newEditor EditorFactory, history HistoryStore, opts retarget.Options) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	vp := viewport.New(2*paneWidth+4, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)

	return model{
		scenePath: scenePath,
		newEditor: newEditor,
		history:   history,
		opts:      opts,
		kind:      retarget.Rotation,
		spinner:   s,
		viewport:  vp,
		picks:     [2]int{-1, -1},
	}
}

// pick preselects a root on one side by path.
func (m *model) pick(sd side, path string) {
	for i, p := range m.paths {
		if p == path {
			m.picks[sd] = i
			return
		}
	}
}

func (m model) picked(sd side) string {
	if i := m.picks[sd]; i >= 0 && i < len(m.paths) {
		return m.paths[i]
	}
	return ""
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.loadScene(),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.busy {
			return m, tick()
		}
		return m, tea.Batch(m.loadScene(), tick())

	case sceneMsg:
		m.ready = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.setScene(msg.scene)
		if msg.events != nil {
			m.events = msg.events
			if !m.busy && m.status == "" {
				m.updateHistoryContent()
			}
		}

	case opResultMsg:
		m.busy = false
		m.err = msg.err
		m.status = msg.status
		if msg.detail != "" {
			m.viewport.SetContent(msg.detail)
		}
		return m, m.loadScene()

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.focus = 1 - m.focus
	case "up", "k":
		m.move(-1)
	case "down", "j":
		m.move(1)
	case "x":
		m.picks[m.focus] = -1
	case "K":
		m.kind = retarget.Kinds()[(int(m.kind)+1)%len(retarget.Kinds())]
	case "i":
		m.opts.IncludeInactive = !m.opts.IncludeInactive
	case "h":
		m.status = ""
		m.updateHistoryContent()
	case "p", "c", "r":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.status = ""
		return m, m.operation(msg.String())
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) move(delta int) {
	if len(m.paths) == 0 {
		return
	}
	i := m.picks[m.focus] + delta
	if i < 0 {
		i = len(m.paths) - 1
	}
	if i >= len(m.paths) {
		i = 0
	}
	m.picks[m.focus] = i
}

// setScene swaps in a freshly loaded scene, keeping the picked roots by path.
func (m *model) setScene(s *scene.Scene) {
	prev := [2]string{m.picked(sideSource), m.picked(sideTarget)}
	m.scene = s
	m.paths = nil
	s.Walk(func(n *scene.Node) bool {
		m.paths = append(m.paths, n.Path())
		return true
	})
	for sd, p := range prev {
		m.picks[sd] = -1
		if p != "" {
			m.pick(side(sd), p)
		}
	}
}

func (m *model) updateHistoryContent() {
	var sb strings.Builder
	if len(m.events) == 0 {
		sb.WriteString(subtleStyle.Render("No operations recorded."))
	}
	for _, e := range m.events {
		var typeStr string
		switch e.EventType {
		case store.EventTypeOperationFailed:
			typeStr = failStyle.Render(string(e.EventType))
		case store.EventTypeConstraintsCopied:
			typeStr = copyStyle.Render(string(e.EventType))
		default:
			typeStr = resetStyle.Render(string(e.EventType))
		}
		fmt.Fprintf(&sb, "%s %s %s %s\n",
			eventTimeStyle.Render(e.TsEvent.Local().Format("15:04:05")),
			eventTypeStyle.Render(typeStr),
			e.Dimensions.Kind,
			e.Dimensions.TargetRoot,
		)
	}
	m.viewport.SetContent(sb.String())
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Loading scene...", m.spinner.View())
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderPane(sideSource, "Source"),
		m.renderPane(sideTarget, "Target"),
	)

	title := "Activity"
	if m.busy {
		title = m.spinner.View() + " Working"
	}
	header := headerStyle.Render(fmt.Sprintf("%s • kind: %s • include inactive: %t", title, m.kind, m.opts.IncludeInactive))

	var status string
	switch {
	case m.err != nil:
		status = errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	case m.status != "":
		status = okStyle.Render(m.status)
	default:
		status = subtleStyle.Render(m.scenePath)
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\ntab switch • ↑/↓ pick root • x clear • K kind • i inactive • p plan • c copy • r reset target • h history • q quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, panes, header, m.viewport.View(), footer)
}

func (m model) renderPane(sd side, title string) string {
	var root *scene.Node
	path := m.picked(sd)
	if m.scene != nil && path != "" {
		root = m.scene.Find(path)
	}
	d := retarget.Describe(root, m.opts)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(title) + "\n\n")
	if path == "" {
		path = subtleStyle.Render("(none)")
	}
	fmt.Fprintf(&sb, "Picked: %s\nRoot:   %s\nNodes:  %d", path, d.RootName, d.NodeCount)

	style := paneStyle
	if m.focus == sd {
		style = focusedPaneStyle
	}
	return style.Render(sb.String())
}

// Commands

func (m model) loadScene() tea.Cmd {
	path, history := m.scenePath, m.history
	return func() tea.Msg {
		s, err := scene.Load(path)
		if err != nil {
			return sceneMsg{err: err}
		}
		msg := sceneMsg{scene: s}
		if history != nil {
			events, err := history.QueryEvents(context.Background(), store.EventFilter{Scene: path, Limit: maxEvents})
			if err != nil {
				return sceneMsg{err: err}
			}
			if events == nil {
				events = []*store.Event{}
			}
			msg.events = events
		}
		return msg
	}
}

func (m model) operation(key string) tea.Cmd {
	ed := m.newEditor(m.opts)
	req := engine.CopyRequest{
		Scene: m.scenePath,
		From:  m.picked(sideSource),
		To:    m.picked(sideTarget),
		Kind:  m.kind,
	}
	return func() tea.Msg {
		ctx := context.Background()
		switch key {
		case "p":
			entries, err := ed.Plan(req)
			if err != nil {
				return opResultMsg{err: err}
			}
			var sb strings.Builder
			for _, row := range reports.PlanRows(entries) {
				fmt.Fprintf(&sb, "%3d  %-36s %-36s %s\n", row.Index, row.Source, row.Target, row.Action)
			}
			return opResultMsg{status: fmt.Sprintf("Plan: %d pairs", len(entries)), detail: sb.String()}
		case "c":
			res, err := ed.Copy(ctx, req)
			if err != nil {
				return opResultMsg{err: err}
			}
			return opResultMsg{status: fmt.Sprintf("Copied %s: %d pairs, %d newly bound", req.Kind, res.Pairs, res.Bound)}
		default:
			res, err := ed.Reset(ctx, engine.ResetRequest{Scene: req.Scene, Root: req.To, Kind: req.Kind})
			if err != nil {
				return opResultMsg{err: err}
			}
			return opResultMsg{status: fmt.Sprintf("Removed %d %s constraints", res.Removed, req.Kind)}
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
