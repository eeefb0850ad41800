// Package server hosts both client surfaces of the wizard front-end on one
// chi router: the websocket chat protocol the conversation page speaks, and
// the JSON dashboard API (REST + SSE) the monitoring views poll.
//
// # Surfaces
//
//   - GET /ws: websocket chat. The client sends register/message/stop/clear
//     frames; the server pushes the registered session's bus events back as
//     {type, sessionID, data, timestamp} envelopes.
//   - /session/*: dashboard REST. Session list and summaries, paginated
//     transcript history, HTTP entry points to the chat turn (message, stop,
//     clear), and extraction of configuration documents from assistant turns.
//   - GET /event: SSE firehose of every bus event, optionally filtered to one
//     session, with heartbeat comments every 30 seconds.
//   - GET /health, GET /ready, GET /stats/cache: liveness, agent readiness
//     and cache introspection.
//
// # Event flow
//
// Handlers never observe generation progress directly. The session controller
// publishes every observable step (message echo, typing indicator, partial
// output, terminal outcome) on the event bus; the websocket forwarder and the
// SSE handler consume the bus's ordered transport feed and push frames to
// their clients. Both transports drain the feed through a small bounded
// buffer so one stalled client drops frames rather than stalling generation
// for everyone else.
//
// # Blocking semantics
//
// POST /session/{id}/message blocks until the generation reaches a terminal
// state and returns the assistant's reply (or null when the generation was
// stopped or timed out). The websocket path instead runs the turn off the
// read loop, keeping stop frames responsive, and delivers all progress through
// pushed events.
//
// # Lifecycle
//
// Start runs the HTTP listener and a background sweeper that evicts sessions
// idle past the expiry window every ten minutes, announcing each eviction as
// a session.expired event. Shutdown stops the sweeper and drains the listener
// gracefully.
package server
