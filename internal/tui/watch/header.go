package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// HealthState tracks bridge health from /healthz polling.
type HealthState struct {
	Status        string
	Generation    uint64
	UptimeSeconds int64
	QueueDepth    int
	Commands      int
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, pulse Pulse, lastEvent time.Time, target string, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("READY")
	switch {
	case !health.Connected:
		statusText = theme.StatusFailed.Render("CONNECTING")
	case health.Status != "ok" && health.Status != "":
		statusText = theme.StatusRunning.Render(strings.ToUpper(health.Status))
	}

	lastEventStr := "never"
	if !lastEvent.IsZero() {
		lastEventStr = humanize.Time(lastEvent)
	}

	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" SCENEBRIDGE WATCH  %s", theme.Dim.Render(target))
	pad := max(innerWidth-lipgloss.Width(titleText)-lipgloss.Width(clock)-4, 1)
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  gen %d  up %s  queue %d  commands %d",
		statusText,
		health.Generation,
		formatUptime(health.UptimeSeconds),
		health.QueueDepth,
		health.Commands,
	)
	activityLine := fmt.Sprintf(" Last event: %s %s", lastEventStr, pulse.Render(theme))

	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		activityLine,
	))
}

func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
