package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrorKind classifies a failed command at the wire.
type ErrorKind string

const (
	KindMalformed      ErrorKind = "malformed_request"
	KindUnknownCommand ErrorKind = "unknown_command"
	KindHandlerFailure ErrorKind = "handler_failure"
	KindTimeout        ErrorKind = "timeout"
	KindShuttingDown   ErrorKind = "shutting_down"
	KindLifecycle      ErrorKind = "lifecycle"
)

// Failure is a classified command error.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (f *Failure) Error() string { return string(f.Kind) + ": " + f.Message }

// Failf builds a Failure with a formatted message.
func Failf(kind ErrorKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFailure classifies err. Errors that already carry a Failure keep their
// kind; anything else becomes fallback.
func AsFailure(err error, fallback ErrorKind) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: fallback, Message: err.Error()}
}

// Command is one inbound request. It is immutable once queued.
type Command struct {
	ID         string
	Name       string
	Params     json.RawMessage
	EnqueuedAt time.Time
}

// NewCommand stamps a fresh id and enqueue time.
func NewCommand(name string, params json.RawMessage) Command {
	return Command{
		ID:         uuid.NewString(),
		Name:       name,
		Params:     params,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Entry pairs a queued command with the slot its caller waits on.
type Entry struct {
	Command Command
	Slot    *ResultSlot
}
