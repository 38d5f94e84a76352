package listener

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/scenebridge/internal/events"
	"github.com/mattjoyce/scenebridge/internal/journal"
	"github.com/mattjoyce/scenebridge/internal/protocol"
	"github.com/mattjoyce/scenebridge/internal/queue"
)

// handleCommand handles POST / and POST /commands: validate, enqueue, wait.
func (l *Listener) handleCommand(w http.ResponseWriter, r *http.Request) {
	req, err := protocol.DecodeCommandRequest(r.Body, l.cfg.MaxBodyBytes)
	if err != nil {
		l.writeFailure(w, "", queue.Failf(queue.KindMalformed, "%v", err))
		return
	}

	name, ok := l.registry.Resolve(req.CommandName())
	if !ok {
		l.events.Publish(events.CommandRejected, map[string]any{"command": req.CommandName()})
		l.writeFailure(w, "", queue.Failf(queue.KindUnknownCommand, "unknown command %q", req.CommandName()))
		return
	}

	cmd := queue.NewCommand(name, req.Params)
	slot := l.queue.Enqueue(cmd)
	l.events.Publish(events.CommandQueued, map[string]any{"commandId": cmd.ID, "command": name})

	out := slot.Wait(r.Context(), l.cfg.RequestTimeout)
	if out.Err != nil {
		if out.State == queue.TimedOut {
			l.logger.Warn("Command timed out waiting for main context", "command_id", cmd.ID, "command", name, "timeout", l.cfg.RequestTimeout)
		}
		l.writeFailure(w, cmd.ID, out.Err)
		return
	}

	resp, err := protocol.EncodeResult(cmd.ID, out.Value)
	if err != nil {
		l.writeFailure(w, cmd.ID, queue.Failf(queue.KindHandlerFailure, "%v", err))
		return
	}
	l.respondJSON(w, http.StatusOK, resp)
}

// handleStatus handles GET /.
func (l *Listener) handleStatus(w http.ResponseWriter, r *http.Request) {
	byCategory := l.registry.ByCategory()
	var names []string
	for _, cmds := range byCategory {
		names = append(names, cmds...)
	}
	sort.Strings(names)

	l.respondJSON(w, http.StatusOK, protocol.StatusResponse{
		Status:             "online",
		Service:            l.cfg.Service,
		Version:            l.cfg.Version,
		Ready:              !l.queue.Closed(),
		Generation:         l.generation,
		Port:               l.Port(),
		UptimeSeconds:      int64(l.uptime().Seconds()),
		QueueDepth:         l.queue.Depth(),
		AvailableCommands:  names,
		CommandsByCategory: byCategory,
	})
}

// handleHealthz handles GET /healthz (no auth).
func (l *Listener) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if l.queue.Closed() {
		status, code = "stopping", http.StatusServiceUnavailable
	}
	l.respondJSON(w, code, protocol.HealthzResponse{
		Status:        status,
		Generation:    l.generation,
		UptimeSeconds: int64(l.uptime().Seconds()),
		QueueDepth:    l.queue.Depth(),
		Commands:      l.registry.Len(),
	})
}

// handleCommandState handles GET /commands/{id}: pending commands come from
// the queue, finished ones from the journal.
func (l *Listener) handleCommandState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if slot, ok := l.queue.Lookup(id); ok {
		l.respondJSON(w, http.StatusOK, map[string]any{"commandId": id, "state": slot.State().String()})
		return
	}
	if l.history == nil {
		l.writeError(w, http.StatusNotFound, "command not pending and journal disabled")
		return
	}
	rec, err := l.history.Get(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		l.writeError(w, http.StatusNotFound, "command not found")
		return
	}
	if err != nil {
		l.logger.Error("Failed to read journal", "error", err)
		l.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	l.respondJSON(w, http.StatusOK, toHistoryEntry(*rec))
}

// handleHistory handles GET /history?limit=N&name=cmd.
func (l *Listener) handleHistory(w http.ResponseWriter, r *http.Request) {
	if l.history == nil {
		l.writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			l.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	recs, err := l.history.Recent(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		l.logger.Error("Failed to read journal", "error", err)
		l.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	resp := protocol.HistoryResponse{Entries: make([]protocol.HistoryEntry, 0, len(recs))}
	for _, rec := range recs {
		resp.Entries = append(resp.Entries, toHistoryEntry(rec))
	}
	l.respondJSON(w, http.StatusOK, resp)
}

func toHistoryEntry(rec journal.Record) protocol.HistoryEntry {
	return protocol.HistoryEntry{
		CommandID:   rec.CommandID,
		Name:        rec.Name,
		Status:      rec.Status,
		ErrorKind:   rec.ErrorKind,
		Error:       rec.Error,
		Generation:  rec.Generation,
		EnqueuedAt:  rec.EnqueuedAt,
		CompletedAt: rec.CompletedAt,
		DurationMs:  rec.Duration.Milliseconds(),
	}
}

func (l *Listener) writeFailure(w http.ResponseWriter, commandID string, f *queue.Failure) {
	l.respondJSON(w, protocol.HTTPStatus(string(f.Kind)), protocol.CommandResponse{
		Success:   false,
		CommandID: commandID,
		Error:     f.Message,
		ErrorKind: string(f.Kind),
	})
}

func (l *Listener) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		l.logger.Warn("Failed to write response", "error", err)
	}
}

func (l *Listener) writeError(w http.ResponseWriter, status int, message string) {
	l.respondJSON(w, status, protocol.ErrorResponse{Error: message})
}
