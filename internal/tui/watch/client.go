package watch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/scenebridge/internal/client"
	"github.com/mattjoyce/scenebridge/internal/events"
	"github.com/mattjoyce/scenebridge/internal/protocol"
)

type eventMsg events.Event

type healthMsg protocol.HealthzResponse

type tickMsg time.Time

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type streamClosedMsg struct{}
type reconnectMsg struct{}

// subscribe opens /events and pumps events into ch until the stream ends.
// lastID resumes after the last event seen so reconnects do not repeat.
func subscribe(c *client.Client, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		stream, err := c.Events(context.Background(), lastID)
		if err != nil {
			return streamClosedMsg{}
		}
		defer stream.Close()
		for {
			ev, err := stream.Next()
			if err != nil {
				return streamClosedMsg{}
			}
			ch <- ev
		}
	}
}

func receiveNext(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func fetchHealth(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h, err := c.Health(ctx)
		if err != nil {
			return errMsg{err}
		}
		return healthMsg(*h)
	}
}

func healthAfter(c *client.Client, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return fetchHealth(c)() })
}
