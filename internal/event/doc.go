/*
Package event provides the pub/sub event system connecting the chat core to
its transports.

The core (session controller, stream relay, store sweep) publishes events;
transports (the websocket chat surface and the SSE dashboard feed) consume
them. Neither side knows about the other.

# Architecture

The bus is built on watermill's gochannel and offers two consumption modes:

  - Direct subscriptions (Subscribe, SubscribeAll) call typed handlers in
    process. Data fields keep their original Go types. Used by tests and
    in-process taps.
  - Stream(ctx) returns a channel fed by the watermill topic. Each call gets
    an independently buffered feed (buffer 100), which is what the SSE and
    websocket handlers consume: a slow client only ever backs up its own
    feed. Event data arrives JSON-decoded on this path.

# Event Types

Session events:
  - session.created: a session was created in the store
  - session.history: transcript sent on client registration
  - session.typing: typing indicator toggled
  - session.cleared: transcript reset and re-seeded with the welcome message
  - session.busy: a message was rejected because a generation is live
  - session.expired: the sweep evicted an idle session

Message events:
  - message.received: echo of the just-received user message
  - message.stream.start / message.stream.end: generation streaming window
  - message.partial: one flushed burst of streamed output
  - message.response: terminal assistant turn (completed or errored)

Generation control events:
  - generation.stop.ack: a stop request matched a live token
  - generation.stop.rejected: a stop request found no live generation
  - generation.stopped: the generation ended cancelled or timed out

# Usage

Publishing:

	event.Publish(event.Event{
		Type:      event.MessagePartial,
		SessionID: sessionID,
		Data:      event.MessagePartialData{Text: chunk},
	})

Publish is asynchronous; PublishSync blocks until direct subscribers return.
Subscribers on the sync path must be quick, must not publish re-entrantly,
and must not take locks the publisher may hold.

Consuming a transport feed:

	events, err := bus.Stream(ctx)
	for e := range events {
		// forward to the client connection
	}

# Testing

Reset() replaces the global bus; use it in test cleanup. NewBus() gives an
isolated instance.
*/
package event
