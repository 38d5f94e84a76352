// Package session owns the listener's lifecycle. Each Start creates a new
// generation (listener, dispatcher tick); Stop and Restart never block the
// host main context and finish their work on later ticks.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/scenebridge/internal/dispatch"
	"github.com/mattjoyce/scenebridge/internal/events"
	"github.com/mattjoyce/scenebridge/internal/hostloop"
	"github.com/mattjoyce/scenebridge/internal/listener"
	"github.com/mattjoyce/scenebridge/internal/queue"
	"github.com/mattjoyce/scenebridge/internal/registry"
)

// State is the manager's lifecycle state.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ErrSuperseded is reported by Restart when another Start won the race.
var ErrSuperseded = errors.New("restart superseded by a newer session")

// generations is process-wide so a reloaded manager never reuses a number.
var generations atomic.Uint64

// Config controls the manager.
type Config struct {
	Listener listener.Config
	// RestartMaxAttempts bounds how many ticks Restart waits for the old
	// session to reach Stopped.
	RestartMaxAttempts int
}

// Deps are the long-lived collaborators shared by every generation. Journal,
// History, Events and Tracker may be nil.
type Deps struct {
	Registry *registry.Registry
	Journal  dispatch.Recorder
	History  listener.History
	Events   *events.Hub
	Tracker  *Tracker
}

// ListenerSession is one generation: a bound listener plus the dispatcher
// tick draining its queue.
type ListenerSession struct {
	Generation uint64
	StartedAt  time.Time

	listener   *listener.Listener
	dispatcher *dispatch.Dispatcher
	tick       hostloop.Handle
}

// Info is a point-in-time view of the manager.
type Info struct {
	State      string         `json:"state"`
	Generation uint64         `json:"generation"`
	Addr       string         `json:"addr,omitempty"`
	Port       int            `json:"port,omitempty"`
	StartedAt  time.Time      `json:"startedAt,omitzero"`
	QueueDepth int            `json:"queueDepth"`
	Dispatch   dispatch.Stats `json:"dispatch"`
}

// Manager runs listener sessions on a host loop.
type Manager struct {
	cfg     Config
	loop    *hostloop.Loop
	deps    Deps
	queue   *queue.Queue
	tracker *Tracker
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	current *ListenerSession
	// pinnedAddr keeps an ephemeral port stable across restarts.
	pinnedAddr string
}

// New creates a stopped manager and hooks its shutdown into the loop.
func New(cfg Config, loop *hostloop.Loop, deps Deps, logger *slog.Logger) *Manager {
	if cfg.RestartMaxAttempts <= 0 {
		cfg.RestartMaxAttempts = 10
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = DefaultTracker()
	}
	m := &Manager{
		cfg:     cfg,
		loop:    loop,
		deps:    deps,
		queue:   queue.New(),
		tracker: tracker,
		logger:  logger.With("component", "session"),
	}
	loop.OnShutdown(func(ctx context.Context) {
		if err := m.Shutdown(ctx); err != nil {
			m.logger.Warn("Listener did not finish cleanly on host shutdown", "error", err)
		}
	})
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Info describes the current session, if any.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := Info{State: m.state.String(), QueueDepth: m.queue.Depth()}
	if s := m.current; s != nil {
		info.Generation = s.Generation
		info.Addr = s.listener.Addr()
		info.Port = s.listener.Port()
		info.StartedAt = s.StartedAt
		info.Dispatch = s.dispatcher.Stats()
	}
	return info
}

// Start binds a new generation. It is a no-op when already running. A stop
// still waiting for its tick is completed first, and listeners tracked from
// older generations are forced to release their port.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Running:
		m.logger.Warn("Start requested while running; ignoring", "generation", m.current.Generation)
		return nil
	case Stopping:
		m.logger.Info("Start requested while stopping; completing stop now", "generation", m.current.Generation)
		m.finishStopLocked(m.current.Generation)
	}

	m.state = Starting
	gen := generations.Add(1)
	logger := m.logger.With("generation", gen)
	m.deps.Events.Publish(events.SessionStarting, map[string]any{"generation": gen})

	released, err := m.tracker.ReleaseOlderThan(gen)
	if len(released) > 0 {
		logger.Warn("Forced release of stale listeners", "generations", released)
	}
	if err != nil {
		logger.Warn("Stale listener release reported an error", "error", err)
	}

	lcfg := m.cfg.Listener
	if m.pinnedAddr != "" {
		lcfg.Addr = m.pinnedAddr
	}

	m.queue.Reopen()
	l := listener.New(lcfg, m.queue, m.deps.Registry, m.deps.Events, m.deps.History, gen, m.logger)
	if err := l.Start(); err != nil {
		m.queue.Close("listener failed to start")
		m.state = Stopped
		m.deps.Events.Publish(events.SessionFailed, map[string]any{"generation": gen, "error": err.Error()})
		logger.Error("Failed to start listener", "error", err)
		return fmt.Errorf("start session %d: %w", gen, err)
	}
	if m.pinnedAddr == "" && ephemeral(lcfg.Addr) {
		m.pinnedAddr = l.Addr()
	}

	d := dispatch.New(m.queue, m.deps.Registry, m.deps.Journal, m.deps.Events, gen, m.logger)

	s := &ListenerSession{
		Generation: gen,
		StartedAt:  time.Now(),
		listener:   l,
		dispatcher: d,
		tick:       m.loop.RegisterTick(d.Tick),
	}
	m.tracker.Track(l)
	m.current = s
	m.state = Running

	m.deps.Events.Publish(events.SessionStarted, map[string]any{"generation": gen, "addr": l.Addr()})
	logger.Info("Listener session started", "addr", l.Addr())
	return nil
}

// Stop signals the current session to stop and returns immediately. Pending
// commands fail with shutting_down now; the port and the dispatcher tick are
// released on the next tick.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Running {
		m.logger.Debug("Stop requested while not running", "state", m.state.String())
		return
	}
	s := m.current
	m.state = Stopping
	m.deps.Events.Publish(events.SessionStopping, map[string]any{"generation": s.Generation})
	s.listener.SignalStop()

	gen := s.Generation
	m.loop.Post(func(context.Context) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.finishStopLocked(gen)
	})
}

// finishStopLocked completes the stop of generation gen. A stale request,
// for a generation that is no longer the one stopping, does nothing.
func (m *Manager) finishStopLocked(gen uint64) {
	if m.state != Stopping || m.current == nil || m.current.Generation != gen {
		m.logger.Debug("Ignoring stale stop", "generation", gen, "state", m.state.String())
		return
	}
	s := m.current
	m.loop.UnregisterTick(s.tick)
	if err := s.listener.Release(); err != nil {
		m.logger.Warn("Listener release failed", "generation", gen, "error", err)
	}
	m.tracker.Untrack(gen)

	m.current = nil
	m.state = Stopped
	m.deps.Events.Publish(events.SessionStopped, map[string]any{"generation": gen})
	m.logger.Info("Listener session stopped", "generation", gen, "dispatch", s.dispatcher.Stats())
}

// Restart stops the current session and starts a new one on a later tick.
// It never blocks; the outcome arrives on the returned channel, which
// receives exactly one value.
func (m *Manager) Restart() <-chan error {
	result := make(chan error, 1)

	m.mu.Lock()
	var from uint64
	if m.current != nil {
		from = m.current.Generation
	}
	m.mu.Unlock()

	m.deps.Events.Publish(events.SessionRestart, map[string]any{"generation": from})
	m.logger.Info("Restart requested", "generation", from)
	m.Stop()

	attempts := 0
	var attempt func(ctx context.Context)
	attempt = func(ctx context.Context) {
		attempts++

		m.mu.Lock()
		state := m.state
		var gen uint64
		if m.current != nil {
			gen = m.current.Generation
		}
		m.mu.Unlock()

		switch {
		case state == Stopped:
			result <- m.Start(ctx)
		case state == Running && gen != from:
			m.logger.Info("Restart superseded", "from", from, "current", gen)
			result <- ErrSuperseded
		case attempts >= m.cfg.RestartMaxAttempts:
			err := queue.Failf(queue.KindLifecycle, "restart gave up after %d ticks waiting for stop (state %s)", attempts, state)
			m.logger.Error("Restart failed", "error", err)
			m.deps.Events.Publish(events.SessionFailed, map[string]any{"generation": from, "error": err.Error()})
			result <- err
		default:
			m.loop.Post(attempt)
		}
	}
	m.loop.Post(attempt)
	return result
}

// Shutdown stops the current session synchronously and waits, bounded by
// ctx, for its connections to finish. Used on host shutdown, where no
// further tick will run.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Running {
		m.state = Stopping
		m.deps.Events.Publish(events.SessionStopping, map[string]any{"generation": m.current.Generation})
		m.current.listener.SignalStop()
	}
	var l *listener.Listener
	if m.state == Stopping {
		l = m.current.listener
		m.finishStopLocked(m.current.Generation)
	}
	m.mu.Unlock()

	if l == nil {
		return nil
	}
	select {
	case <-l.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for listener generation %d: %w", l.Generation(), ctx.Err())
	}
}

func ephemeral(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	return err == nil && (port == "0" || port == "")
}

var (
	installMu sync.RWMutex
	installed *Manager
)

// Install makes m the process-wide manager returned by Current. The returned
// func restores the previous one.
func Install(m *Manager) (restore func()) {
	installMu.Lock()
	prev := installed
	installed = m
	installMu.Unlock()
	return func() {
		installMu.Lock()
		installed = prev
		installMu.Unlock()
	}
}

// Current returns the installed manager, or nil.
func Current() *Manager {
	installMu.RLock()
	defer installMu.RUnlock()
	return installed
}
