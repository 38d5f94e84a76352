// Package protocol defines the JSON bodies exchanged with the listener.
package protocol

import (
	"encoding/json"
	"time"
)

// CommandRequest is the body of POST / and POST /commands. Either Type or
// Name carries the command name; Type is the historical field.
type CommandRequest struct {
	Type   string          `json:"type,omitempty"`
	Name   string          `json:"name,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// CommandName returns whichever of Name and Type is set.
func (r *CommandRequest) CommandName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Type
}

// CommandResponse is returned for every command, successful or not.
type CommandResponse struct {
	Success   bool            `json:"success"`
	CommandID string          `json:"commandId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"errorKind,omitempty"`
}

// StatusResponse is returned by GET /.
type StatusResponse struct {
	Status             string              `json:"status"`
	Service            string              `json:"service"`
	Version            string              `json:"version"`
	Ready              bool                `json:"ready"`
	Generation         uint64              `json:"generation"`
	Port               int                 `json:"port"`
	UptimeSeconds      int64               `json:"uptimeSeconds"`
	QueueDepth         int                 `json:"queueDepth"`
	AvailableCommands  []string            `json:"availableCommands"`
	CommandsByCategory map[string][]string `json:"commandsByCategory"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	Generation    uint64 `json:"generation"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	QueueDepth    int    `json:"queueDepth"`
	Commands      int    `json:"commands"`
}

// HistoryEntry mirrors a journal record on the wire.
type HistoryEntry struct {
	CommandID   string    `json:"commandId"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	ErrorKind   string    `json:"errorKind,omitempty"`
	Error       string    `json:"error,omitempty"`
	Generation  uint64    `json:"generation"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
	CompletedAt time.Time `json:"completedAt"`
	DurationMs  int64     `json:"durationMs"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ErrorResponse is the body of non-command errors (auth, routing).
type ErrorResponse struct {
	Error string `json:"error"`
}
