// Package hostloop is the host's main context: a single goroutine that runs
// registered tick callbacks once per tick. Everything that touches the scene
// runs here.
package hostloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc runs on the main context. It must not block.
type TickFunc func(ctx context.Context, delta time.Duration)

// Handle identifies a registered tick callback.
type Handle uint64

type mainKey struct{}

// IsMain reports whether ctx was issued by a Loop to code running on its
// main context.
func IsMain(ctx context.Context) bool {
	_, ok := ctx.Value(mainKey{}).(*Loop)
	return ok
}

type callback struct {
	handle Handle
	fn     TickFunc
}

// Loop drives tick callbacks on one goroutine.
type Loop struct {
	interval time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	callbacks  []callback
	posted     []func(context.Context)
	onShutdown []func(context.Context)
	nextHandle Handle

	// tickMu serialises ticks so Step and the running loop never overlap.
	tickMu   sync.Mutex
	lastTick time.Time
	ticks    atomic.Uint64
	running  atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a loop that ticks every interval once started.
func New(interval time.Duration, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Loop{
		interval: interval,
		logger:   logger.With("component", "hostloop"),
		stopCh:   make(chan struct{}),
	}
}

// RegisterTick adds fn to every subsequent tick. Safe from any goroutine,
// including from inside a tick.
func (l *Loop) RegisterTick(fn TickFunc) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextHandle++
	h := l.nextHandle
	l.callbacks = append(l.callbacks, callback{handle: h, fn: fn})
	return h
}

// UnregisterTick removes a callback. It reports whether h was registered.
func (l *Loop) UnregisterTick(h Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, cb := range l.callbacks {
		if cb.handle == h {
			l.callbacks = append(l.callbacks[:i:i], l.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// Post schedules fn to run once at the start of the next tick, before the
// tick callbacks. Functions posted during a tick run on the following one.
func (l *Loop) Post(fn func(ctx context.Context)) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
}

// OnShutdown registers fn to run on the main context when the loop stops.
// Hooks run in reverse registration order.
func (l *Loop) OnShutdown(fn func(ctx context.Context)) {
	l.mu.Lock()
	l.onShutdown = append(l.onShutdown, fn)
	l.mu.Unlock()
}

// Ticks is the number of completed ticks.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Running reports whether the tick goroutine is active.
func (l *Loop) Running() bool { return l.running.Load() }

// Start launches the tick goroutine.
func (l *Loop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("host loop already running")
	}
	l.logger.Info("Starting host loop", "interval", l.interval)
	l.wg.Add(1)
	go l.tickLoop(ctx)
	return nil
}

// Stop ends the loop after its current tick and runs shutdown hooks. It
// blocks until the goroutine exits, so it must not be called from a tick.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

// Done is closed once Stop has been requested.
func (l *Loop) Done() <-chan struct{} { return l.stopCh }

func (l *Loop) tickLoop(ctx context.Context) {
	defer l.wg.Done()
	defer l.running.Store(false)

	l.Step(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Step(ctx)
		case <-l.stopCh:
			l.shutdown(ctx)
			return
		case <-ctx.Done():
			l.logger.Warn("Host loop context cancelled, stopping tick loop")
			l.shutdown(context.WithoutCancel(ctx))
			return
		}
	}
}

// Step runs exactly one tick on the calling goroutine, which acts as the
// main context for its duration. The running loop uses it for every tick;
// tests call it directly to advance time deterministically.
func (l *Loop) Step(ctx context.Context) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	now := time.Now()
	var delta time.Duration
	if !l.lastTick.IsZero() {
		delta = now.Sub(l.lastTick)
	}
	l.lastTick = now

	mainCtx := context.WithValue(ctx, mainKey{}, l)

	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()
	for _, fn := range posted {
		l.safeCall("posted", func() { fn(mainCtx) })
	}

	l.mu.Lock()
	callbacks := append([]callback(nil), l.callbacks...)
	l.mu.Unlock()
	for _, cb := range callbacks {
		l.safeCall("tick", func() { cb.fn(mainCtx, delta) })
	}

	l.ticks.Add(1)
}

func (l *Loop) shutdown(ctx context.Context) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	l.mu.Lock()
	hooks := l.onShutdown
	l.onShutdown = nil
	l.mu.Unlock()

	mainCtx := context.WithValue(ctx, mainKey{}, l)
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		l.safeCall("shutdown", func() { hook(mainCtx) })
	}
	l.logger.Info("Host loop stopped", "ticks", l.ticks.Load())
}

// safeCall keeps a panicking callback from taking the host down.
func (l *Loop) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Host loop callback panicked", "kind", kind, "panic", r)
		}
	}()
	fn()
}

// RunShutdownHooks runs the registered shutdown hooks on the calling
// goroutine. Used when the loop was never started.
func (l *Loop) RunShutdownHooks(ctx context.Context) {
	l.shutdown(ctx)
}
