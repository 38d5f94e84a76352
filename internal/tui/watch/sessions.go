package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/scenebridge/internal/events"
)

const maxSessionLines = 6

// SessionEntry is one listener lifecycle transition.
type SessionEntry struct {
	At         time.Time
	Type       string
	Generation uint64
	Addr       string
	Error      string
}

type sessionPayload struct {
	Generation uint64 `json:"generation"`
	Addr       string `json:"addr"`
	Error      string `json:"error"`
}

// SessionState is what the watch view knows about listener sessions.
type SessionState struct {
	Generation uint64
	Addr       string
	Running    bool
	Restarts   int
	Timeline   []SessionEntry
}

// apply folds a session.* event in. It reports whether the event was one.
func (s *SessionState) apply(e events.Event) bool {
	if !strings.HasPrefix(e.Type, "session.") {
		return false
	}
	var p sessionPayload
	_ = json.Unmarshal(e.Data, &p)

	if p.Generation > s.Generation {
		s.Generation = p.Generation
	}
	switch e.Type {
	case events.SessionStarted:
		s.Running = true
		if p.Addr != "" {
			s.Addr = p.Addr
		}
	case events.SessionStopped, events.SessionFailed:
		s.Running = false
	case events.SessionRestart:
		s.Restarts++
	}

	s.Timeline = append([]SessionEntry{{
		At:         e.At,
		Type:       e.Type,
		Generation: p.Generation,
		Addr:       p.Addr,
		Error:      p.Error,
	}}, s.Timeline...)
	if len(s.Timeline) > maxSessionLines {
		s.Timeline = s.Timeline[:maxSessionLines]
	}
	return true
}

func renderSessions(s SessionState, theme Theme, width int) string {
	innerWidth := width - 4
	parts := []string{theme.Title.Render("SESSIONS")}
	if len(s.Timeline) == 0 {
		parts = append(parts, theme.Dim.Render("  No session activity seen"))
		return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
	}

	for _, entry := range s.Timeline {
		style := theme.Dim
		switch entry.Type {
		case events.SessionStarted:
			style = theme.StatusOK
		case events.SessionFailed:
			style = theme.StatusFailed
		case events.SessionStarting, events.SessionRestart:
			style = theme.StatusRunning
		}
		line := fmt.Sprintf("  %s %s gen=%d",
			theme.Dim.Render(entry.At.Local().Format("15:04:05")),
			style.Render(fmt.Sprintf("%-18s", entry.Type)),
			entry.Generation,
		)
		if entry.Addr != "" {
			line += " " + entry.Addr
		}
		if entry.Error != "" {
			line += " " + theme.StatusFailed.Render(entry.Error)
		}
		parts = append(parts, line)
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
