// Package listener is the network side of the bridge. Connection goroutines
// validate requests, enqueue commands and wait on their result slots; they
// never touch the scene.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/scenebridge/internal/auth"
	"github.com/mattjoyce/scenebridge/internal/events"
	"github.com/mattjoyce/scenebridge/internal/journal"
	"github.com/mattjoyce/scenebridge/internal/queue"
)

// Registry is the part of the command registry the listener needs.
type Registry interface {
	Resolve(name string) (string, bool)
	ByCategory() map[string][]string
	Len() int
}

// History reads the command journal. It may be nil.
type History interface {
	Recent(ctx context.Context, name string, limit int) ([]journal.Record, error)
	Get(ctx context.Context, id string) (*journal.Record, error)
}

// Config holds listener settings.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// ShutdownGrace bounds how long in-flight responses may finish after
	// Release before connections are cut.
	ShutdownGrace time.Duration

	// APIKey is the admin bearer token. With no APIKey and no Tokens the
	// listener is unauthenticated.
	APIKey string
	Tokens []auth.TokenConfig

	Service string
	Version string
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 2 * time.Second
	}
	if c.Service == "" {
		c.Service = "scenebridge"
	}
}

// Listener serves one session generation.
type Listener struct {
	cfg        Config
	queue      *queue.Queue
	registry   Registry
	events     *events.Hub
	history    History
	generation uint64
	logger     *slog.Logger

	// stopCtx ends long-lived streams once SignalStop is called.
	stopCtx context.Context
	stop    context.CancelFunc

	mu        sync.Mutex
	server    *http.Server
	ln        net.Listener
	startedAt time.Time
	released  bool
	done      chan struct{}
}

// New wires a listener to the queue of its session. hub and history may be nil.
func New(cfg Config, q *queue.Queue, reg Registry, hub *events.Hub, history History, generation uint64, logger *slog.Logger) *Listener {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		cfg:        cfg,
		queue:      q,
		registry:   reg,
		events:     hub,
		history:    history,
		generation: generation,
		logger:     logger.With("component", "listener", "generation", generation),
		stopCtx:    ctx,
		stop:       cancel,
		done:       make(chan struct{}),
	}
}

// Start binds the port synchronously, so "address already in use" surfaces
// here, and serves on a background goroutine.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.server != nil {
		return fmt.Errorf("listener generation %d already started", l.generation)
	}
	if l.released {
		return fmt.Errorf("listener generation %d already released", l.generation)
	}

	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", l.cfg.Addr, err)
	}

	l.ln = ln
	l.startedAt = time.Now()
	l.server = &http.Server{
		Handler:           l.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	l.logger.Info("Listener started", "addr", ln.Addr().String())
	go l.serve(l.server, ln)
	return nil
}

func (l *Listener) serve(srv *http.Server, ln net.Listener) {
	err := srv.Serve(ln)
	l.mu.Lock()
	released := l.released
	l.mu.Unlock()
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !released {
		l.logger.Error("Listener stopped unexpectedly", "error", err)
	}
}

// Addr is the bound address, or the configured one before Start.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return l.ln.Addr().String()
	}
	return l.cfg.Addr
}

// Port is the bound TCP port, 0 before Start.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return 0
	}
	if tcp, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func (l *Listener) Generation() uint64 { return l.generation }

// SignalStop stops accepting commands without blocking: queued commands are
// failed with shutting_down and event streams end.
func (l *Listener) SignalStop() {
	n := l.queue.Close("listener shutting down")
	l.stop()
	l.logger.Info("Listener signalled to stop", "failed_pending", n)
}

// Release frees the port immediately and lets in-flight responses finish in
// the background for up to ShutdownGrace. It never blocks and is safe to call
// more than once.
func (l *Listener) Release() error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	srv, ln := l.server, l.ln
	l.mu.Unlock()

	l.stop()
	if srv == nil {
		close(l.done)
		return nil
	}

	closeErr := ln.Close()
	go func() {
		defer close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); errors.Is(err, context.DeadlineExceeded) {
			_ = srv.Close()
		}
	}()

	l.logger.Info("Listener released", "addr", ln.Addr().String())
	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", closeErr)
	}
	return nil
}

// Done is closed once a released listener has finished its connections.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Handler returns the routed HTTP handler.
func (l *Listener) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(l.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", l.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(l.authMiddleware)
		r.With(l.requireScopes(auth.ScopeCommandsRW)).Post("/", l.handleCommand)
		r.With(l.requireScopes(auth.ScopeCommandsRW)).Post("/commands", l.handleCommand)
		r.With(l.requireScopes(auth.ScopeCommandsRO)).Get("/", l.handleStatus)
		r.With(l.requireScopes(auth.ScopeCommandsRO)).Get("/commands/{id}", l.handleCommandState)
		r.With(l.requireScopes(auth.ScopeCommandsRO)).Get("/history", l.handleHistory)
		r.With(l.requireScopes(auth.ScopeEventsRO)).Get("/events", l.handleEvents)
	})
	return r
}

func (l *Listener) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		l.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (l *Listener) uptime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startedAt.IsZero() {
		return 0
	}
	return time.Since(l.startedAt)
}
