// Package session implements the conversation core of the chat front-end:
// per-session transcripts, cancellable background generations, and the
// incremental streaming of partial output to connected clients.
//
// # Architecture Overview
//
// The package is built around five cooperating components:
//
//   - Store: in-memory transcripts keyed by session ID, with expiry,
//     transparent compression of large message bodies, and archiving of
//     long conversations
//   - Registry: one cancellation token per session, compare-and-clear
//     lifecycle so a finished generation can never clobber its successor
//   - Relay: an io.Writer that buffers streamed agent output and flushes it
//     to an injected Sink on a time/size threshold
//   - Supervisor: runs one generation on a background worker and polls for
//     the first of cancellation, deadline expiry or completion
//   - Controller: the transport-facing entry point tying the above together
//     and publishing progress on the event bus
//
// # Generation Lifecycle
//
// A generation moves PENDING → RUNNING → one of COMPLETED, CANCELLED,
// TIMED_OUT or ERRORED. Terminal states are absorbing. Each supervisor poll
// tick (default 100ms) checks in fixed order: cancellation first, then the
// deadline (default 300s), then worker completion — so a stop request that
// races a finished worker still wins within its tick.
//
// Cancellation is cooperative. Signalling a token never interrupts the
// worker; it returns the supervisor early, suppresses further relay
// emissions, and skips the transcript append. The abandoned worker keeps
// running until it notices its context is gone, and nothing it produces
// afterwards is observable.
//
// # Usage
//
//	store := session.NewStore(session.StoreConfig{})
//	registry := session.NewRegistry()
//	ctrl := session.NewController(store, registry, agent, session.BusSink{}, session.ControllerConfig{})
//
//	// One full user turn, blocking until terminal.
//	reply, err := ctrl.HandleMessage(ctx, sessionID, "Debug my OPCUA config")
//
//	// From another goroutine: stop the running generation.
//	ctrl.HandleStop(sessionID)
//
// # Concurrency
//
// The store guards its maps with a single RWMutex and returns copies, so
// concurrent sessions are safe. Within one session generations are strictly
// sequential: a second HandleMessage while one is live is rejected with
// ErrSessionBusy. The transcript is mutated only by the controller; workers
// and relays never touch the store.
package session
