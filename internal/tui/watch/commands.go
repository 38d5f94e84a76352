package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/scenebridge/internal/events"
)

// CommandStats aggregates the events seen for one command name.
type CommandStats struct {
	Name      string
	Queued    int
	Succeeded int
	Failed    int
	Discarded int
	LastMs    int64
	LastError string
	LastSeen  time.Time
}

// InFlight is queued but not yet finished.
func (s *CommandStats) InFlight() int {
	n := s.Queued - s.Succeeded - s.Failed - s.Discarded
	if n < 0 {
		return 0
	}
	return n
}

type commandPayload struct {
	CommandID  string `json:"commandId"`
	Command    string `json:"command"`
	DurationMs int64  `json:"durationMs"`
	ErrorKind  string `json:"errorKind"`
	Error      string `json:"error"`
}

// updateCommandStats folds a command.* event into stats. It reports whether
// the event was a command event.
func updateCommandStats(stats map[string]*CommandStats, e events.Event) bool {
	var p commandPayload
	if err := json.Unmarshal(e.Data, &p); err != nil || p.Command == "" {
		return false
	}
	s, ok := stats[p.Command]
	if !ok {
		s = &CommandStats{Name: p.Command}
		stats[p.Command] = s
	}
	s.LastSeen = e.At

	switch e.Type {
	case events.CommandQueued:
		s.Queued++
	case events.CommandSucceeded:
		s.Succeeded++
		s.LastMs = p.DurationMs
	case events.CommandFailed:
		s.Failed++
		s.LastMs = p.DurationMs
		s.LastError = p.Error
	case events.CommandDiscarded:
		s.Discarded++
	case events.CommandRejected:
		s.Failed++
		s.LastError = "unknown command"
	default:
		return false
	}
	return true
}

func sortedStats(stats map[string]*CommandStats) []*CommandStats {
	out := make([]*CommandStats, 0, len(stats))
	for _, s := range stats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func newCommandTable(theme Theme) table.Model {
	t := table.New(
		table.WithColumns(commandColumns(80)),
		table.WithHeight(8),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(theme.Header.GetForeground()).Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("#000000")).Background(theme.Highlight.GetForeground())
	t.SetStyles(styles)
	return t
}

func commandColumns(width int) []table.Column {
	nameW := max(width-52, 16)
	return []table.Column{
		{Title: "COMMAND", Width: nameW},
		{Title: "OK", Width: 6},
		{Title: "FAIL", Width: 6},
		{Title: "DROP", Width: 6},
		{Title: "LIVE", Width: 6},
		{Title: "LAST", Width: 8},
		{Title: "SEEN", Width: 10},
	}
}

func commandRows(stats []*CommandStats) []table.Row {
	rows := make([]table.Row, 0, len(stats))
	for _, s := range stats {
		seen := "-"
		if !s.LastSeen.IsZero() {
			seen = s.LastSeen.Local().Format("15:04:05")
		}
		rows = append(rows, table.Row{
			s.Name,
			fmt.Sprint(s.Succeeded),
			fmt.Sprint(s.Failed),
			fmt.Sprint(s.Discarded),
			fmt.Sprint(s.InFlight()),
			fmt.Sprintf("%dms", s.LastMs),
			seen,
		})
	}
	return rows
}

func renderCommands(t table.Model, selected *CommandStats, theme Theme, width int) string {
	innerWidth := width - 4
	parts := []string{theme.Title.Render("COMMANDS")}
	if len(t.Rows()) == 0 {
		parts = append(parts, theme.Dim.Render("  No commands yet"))
	} else {
		parts = append(parts, t.View())
	}
	if selected != nil && selected.LastError != "" {
		parts = append(parts, theme.StatusFailed.Render(fmt.Sprintf("  last error (%s): %s", selected.Name, selected.LastError)))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
