package listener

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mattjoyce/scenebridge/internal/events"
)

// handleEvents streams hub events as SSE. ?types=command.,session. filters
// by type prefix.
func (l *Listener) handleEvents(w http.ResponseWriter, r *http.Request) {
	if l.events == nil {
		l.writeError(w, http.StatusNotFound, "events disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		l.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var prefixes []string
	if v := r.URL.Query().Get("types"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
	}
	matches := func(t string) bool {
		if len(prefixes) == 0 {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(t, p) {
				return true
			}
		}
		return false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Subscribe before replaying so nothing falls between the two.
	ch, cancel := l.events.Subscribe(prefixes...)
	defer cancel()

	lastID := events.ParseLastEventID(r.Header.Get("Last-Event-ID"))
	for _, ev := range l.events.SnapshotSince(lastID) {
		if !matches(ev.Type) {
			continue
		}
		if err := events.WriteSSE(w, ev); err != nil {
			return
		}
		lastID = ev.ID
	}
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-l.stopCtx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.ID <= lastID {
				continue
			}
			if err := events.WriteSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
