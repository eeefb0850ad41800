package session

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chatframe-ai/chatframe/internal/event"
)

// Sink receives flushed output bursts bound for a client channel. The
// worker writes to a Relay; the Relay emits to its Sink. Injecting the sink
// keeps the worker unaware of transports.
type Sink interface {
	Emit(sessionID, text string)
}

// BusSink publishes bursts as message.partial events on the global bus.
type BusSink struct{}

func (BusSink) Emit(sessionID, text string) {
	event.Publish(event.Event{
		Type:      event.MessagePartial,
		SessionID: sessionID,
		Data:      event.MessagePartialData{Text: text},
	})
}

// Default flush bounds for a Relay.
const (
	DefaultFlushInterval  = 100 * time.Millisecond
	DefaultFlushThreshold = 100
)

// RelayConfig configures a Relay. Zero values take the defaults.
type RelayConfig struct {
	// FlushInterval is the longest the buffer sits unflushed once writes
	// are arriving.
	FlushInterval time.Duration
	// FlushThreshold is the character count past which a write flushes
	// immediately.
	FlushThreshold int
}

// Relay accumulates incrementally produced text and forwards it to the sink
// in small time- or size-bounded bursts. It implements io.Writer so a worker
// can treat it as its output stream.
//
// Once the generation's token is signalled, emission stops: flushes still
// clear the buffer but nothing reaches the sink, so no partial output leaks
// after cancellation.
type Relay struct {
	mu        sync.Mutex
	sessionID string
	sink      Sink
	token     *Token
	interval  time.Duration
	threshold int
	buf       []byte
	lastFlush time.Time
}

// NewRelay creates a relay for one generation. token may be nil for
// uncancellable streams.
func NewRelay(sessionID string, sink Sink, token *Token, cfg RelayConfig) *Relay {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = DefaultFlushThreshold
	}
	return &Relay{
		sessionID: sessionID,
		sink:      sink,
		token:     token,
		interval:  cfg.FlushInterval,
		threshold: cfg.FlushThreshold,
		lastFlush: time.Now(),
	}
}

// Write appends the fragment to the buffer and flushes if the buffer has not
// been flushed within the flush interval or its size crossed the threshold.
func (r *Relay) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = append(r.buf, p...)
	if time.Since(r.lastFlush) >= r.interval || utf8.RuneCount(r.buf) > r.threshold {
		r.flushLocked()
	}
	return len(p), nil
}

// Flush emits the buffered text as one partial-output burst. Suppressed when
// the token is signalled; the buffer is cleared either way.
func (r *Relay) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

// Close performs the final flush at generation end.
func (r *Relay) Close() error {
	r.Flush()
	return nil
}

func (r *Relay) flushLocked() {
	defer func() {
		r.buf = r.buf[:0]
		r.lastFlush = time.Now()
	}()

	if len(r.buf) == 0 {
		return
	}
	if r.token != nil && r.token.IsSet() {
		return
	}
	r.sink.Emit(r.sessionID, string(r.buf))
}
