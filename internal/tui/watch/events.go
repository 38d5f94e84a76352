package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/scenebridge/internal/events"
)

const (
	maxEventLog   = 50
	visibleEvents = 10
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= visibleEvents {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch {
	case strings.HasSuffix(e.Type, ".succeeded"), e.Type == events.SessionStarted:
		typeStyle = theme.StatusOK
	case strings.HasSuffix(e.Type, ".failed"), strings.HasSuffix(e.Type, ".rejected"):
		typeStyle = theme.StatusFailed
	case strings.HasSuffix(e.Type, ".started"), strings.HasSuffix(e.Type, ".starting"):
		typeStyle = theme.StatusRunning
	case strings.HasPrefix(e.Type, "session."):
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-18s", e.Type)), describeEvent(e))
}

// describeEvent pulls the interesting fields out of a payload for one line.
func describeEvent(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if id, ok := data["commandId"].(string); ok {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", id))
	}
	if name, ok := data["command"].(string); ok {
		parts = append(parts, name)
	}
	if gen, ok := data["generation"].(float64); ok {
		parts = append(parts, fmt.Sprintf("gen=%d", int64(gen)))
	}
	if ms, ok := data["durationMs"].(float64); ok && ms > 0 {
		parts = append(parts, fmt.Sprintf("%dms", int64(ms)))
	}
	if kind, ok := data["errorKind"].(string); ok && kind != "" {
		parts = append(parts, kind)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
