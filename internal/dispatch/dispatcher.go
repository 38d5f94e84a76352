package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/scenebridge/internal/events"
	"github.com/mattjoyce/scenebridge/internal/hostloop"
	"github.com/mattjoyce/scenebridge/internal/journal"
	"github.com/mattjoyce/scenebridge/internal/log"
	"github.com/mattjoyce/scenebridge/internal/queue"
	"github.com/mattjoyce/scenebridge/internal/registry"
)

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/mattjoyce/scenebridge/internal/dispatch Recorder

// Recorder receives one record per dispatched or discarded command. It must
// not block.
type Recorder interface {
	Record(rec journal.Record)
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(eventType string, data any)
}

// Registry resolves command names to handlers.
type Registry interface {
	Lookup(name string) (*registry.Command, bool)
}

// Stats counts what the dispatcher has done.
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Discarded uint64 `json:"discarded"`
}

// Dispatcher executes queued commands on the main context.
type Dispatcher struct {
	queue      *queue.Queue
	registry   Registry
	journal    Recorder
	events     Publisher
	generation uint64
	logger     *slog.Logger

	ticks, succeeded, failed, discarded atomic.Uint64
}

// New creates a Dispatcher for one listener session. journal and pub may be nil.
func New(q *queue.Queue, reg Registry, rec Recorder, pub Publisher, generation uint64, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Get()
	}
	return &Dispatcher{
		queue:      q,
		registry:   reg,
		journal:    rec,
		events:     pub,
		generation: generation,
		logger:     logger.With("component", "dispatch", "generation", generation),
	}
}

// Tick drains the queue. Registered with hostloop.Loop.RegisterTick.
func (d *Dispatcher) Tick(ctx context.Context, _ time.Duration) {
	if !hostloop.IsMain(ctx) {
		d.logger.Error("dispatch tick called off the main context; skipping")
		return
	}
	d.ticks.Add(1)

	entries := d.queue.DrainAll()
	if len(entries) == 0 {
		return
	}
	d.logger.Debug("draining queue", "entries", len(entries))
	for _, e := range entries {
		d.execute(ctx, e)
	}
}

func (d *Dispatcher) execute(ctx context.Context, e queue.Entry) {
	cmd := e.Command
	cmdLogger := d.logger.With("command_id", cmd.ID, "command", cmd.Name)

	if !e.Slot.Claim() {
		cmdLogger.Warn("discarding command whose caller timed out", "waited", time.Since(cmd.EnqueuedAt))
		d.discarded.Add(1)
		d.finish(cmd, journal.StatusDiscarded, queue.Failf(queue.KindTimeout, "caller timed out before dispatch"), time.Now())
		return
	}

	started := time.Now()
	d.publish(events.CommandStarted, map[string]any{"commandId": cmd.ID, "command": cmd.Name})

	value, err := d.invoke(ctx, cmd)
	if err != nil {
		f := queue.AsFailure(err, queue.KindHandlerFailure)
		cmdLogger.Error("command failed", "error", err, "kind", f.Kind)
		if !e.Slot.Fail(f) {
			cmdLogger.Warn("slot already final; failure discarded")
		}
		d.failed.Add(1)
		d.finish(cmd, journal.StatusFailed, f, started)
		return
	}

	if !e.Slot.Resolve(value) {
		cmdLogger.Warn("slot already final; result discarded")
	}
	cmdLogger.Info("command succeeded", "duration", time.Since(started))
	d.succeeded.Add(1)
	d.finish(cmd, journal.StatusSucceeded, nil, started)
}

// invoke runs the handler, turning panics into errors.
func (d *Dispatcher) invoke(ctx context.Context, cmd queue.Command) (value any, err error) {
	handler, ok := d.registry.Lookup(cmd.Name)
	if !ok {
		return nil, queue.Failf(queue.KindUnknownCommand, "unknown command %q", cmd.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked", "command", cmd.Name, "panic", r)
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Invoke(ctx, cmd.Params)
}

func (d *Dispatcher) finish(cmd queue.Command, status string, f *queue.Failure, started time.Time) {
	now := time.Now().UTC()
	rec := journal.Record{
		CommandID:   cmd.ID,
		Name:        cmd.Name,
		Status:      status,
		Generation:  d.generation,
		EnqueuedAt:  cmd.EnqueuedAt,
		CompletedAt: now,
		Duration:    now.Sub(started),
	}
	payload := map[string]any{"commandId": cmd.ID, "command": cmd.Name, "durationMs": rec.Duration.Milliseconds()}
	if f != nil {
		rec.ErrorKind = string(f.Kind)
		rec.Error = f.Message
		payload["errorKind"] = f.Kind
		payload["error"] = f.Message
	}
	if d.journal != nil {
		d.journal.Record(rec)
	}

	switch status {
	case journal.StatusSucceeded:
		d.publish(events.CommandSucceeded, payload)
	case journal.StatusDiscarded:
		d.publish(events.CommandDiscarded, payload)
	default:
		d.publish(events.CommandFailed, payload)
	}
}

func (d *Dispatcher) publish(eventType string, data any) {
	if d.events != nil {
		d.events.Publish(eventType, data)
	}
}

// Stats returns counters since New.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Ticks:     d.ticks.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
		Discarded: d.discarded.Load(),
	}
}

// Generation is the listener session this dispatcher serves.
func (d *Dispatcher) Generation() uint64 { return d.generation }
