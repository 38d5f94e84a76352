package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/scenebridge/internal/client"
	"github.com/mattjoyce/scenebridge/internal/events"
)

const (
	healthEvery    = 5 * time.Second
	reconnectAfter = 3 * time.Second
)

// Model is the BubbleTea model for the watch view.
type Model struct {
	client *client.Client

	width  int
	height int

	health    HealthState
	sessions  SessionState
	commands  map[string]*CommandStats
	ordered   []*CommandStats
	eventLog  []events.Event
	lastID    int64
	lastEvent time.Time
	pulse     Pulse

	theme Theme
	table table.Model

	hubEvents chan events.Event
	lastError string
}

// New builds a watch model that talks to the bridge through c.
func New(c *client.Client) Model {
	theme := NewDefaultTheme()
	return Model{
		client:    c,
		commands:  make(map[string]*CommandStats),
		hubEvents: make(chan events.Event, 100),
		theme:     theme,
		table:     newCommandTable(theme),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.client, 0, m.hubEvents),
		receiveNext(m.hubEvents),
		fetchHealth(m.client),
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if s := msg.String(); s == "q" || s == "ctrl+c" {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(commandColumns(msg.Width - 6))

	case tickMsg:
		m.pulse.Advance(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		m = m.observe(events.Event(msg))
		return m, receiveNext(m.hubEvents)

	case healthMsg:
		m.health = HealthState{
			Status:        msg.Status,
			Generation:    msg.Generation,
			UptimeSeconds: msg.UptimeSeconds,
			QueueDepth:    msg.QueueDepth,
			Commands:      msg.Commands,
			Connected:     true,
			LastCheck:     time.Now(),
		}
		m.lastError = ""
		return m, healthAfter(m.client, healthEvery)

	case streamClosedMsg:
		m.health.Connected = false
		m.lastError = "event stream closed, reconnecting..."
		return m, tea.Tick(reconnectAfter, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		// The pending receiveNext keeps reading the same channel.
		return m, subscribe(m.client, m.lastID, m.hubEvents)

	case errMsg:
		m.health.Connected = false
		m.lastError = msg.Error()
		return m, healthAfter(m.client, healthEvery)
	}

	return m, nil
}

// observe folds one event into every panel.
func (m Model) observe(e events.Event) Model {
	if e.ID > m.lastID {
		m.lastID = e.ID
	}
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}
	m.lastEvent = e.At
	m.pulse.Observe(e.At)

	if updateCommandStats(m.commands, e) {
		m.ordered = sortedStats(m.commands)
		m.table.SetRows(commandRows(m.ordered))
	}
	m.sessions.apply(e)
	if m.sessions.Generation > m.health.Generation {
		m.health.Generation = m.sessions.Generation
	}

	m.health.Connected = true
	m.lastError = ""
	return m
}

func (m Model) selected() *CommandStats {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.ordered) {
		return nil
	}
	return m.ordered[i]
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to bridge..."
	}

	parts := []string{
		renderHeader(m.health, m.pulse, m.lastEvent, m.client.BaseURL(), m.theme, m.width),
		renderCommands(m.table, m.selected(), m.theme, m.width),
		renderSessions(m.sessions, m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ! %s", m.lastError)))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit  [up/down] Select command"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
