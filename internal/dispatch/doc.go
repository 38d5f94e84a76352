// Package dispatch drains the command queue on the host main context.
//
// The Dispatcher is registered as a host tick callback. Each tick it takes
// every queued entry and runs them in arrival order:
//   - an entry whose caller already timed out is discarded without running
//   - the handler is looked up by name and its params decoded
//   - errors and panics become handler_failure results
//   - the result slot is resolved, and a journal record and event are emitted
//
// There is no per-tick cap; a burst of commands is processed within one tick.
package dispatch
