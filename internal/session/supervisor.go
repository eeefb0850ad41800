package session

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/chatframe-ai/chatframe/internal/agent"
	"github.com/chatframe-ai/chatframe/internal/logging"
)

// State is the lifecycle phase of one supervised generation.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateTimedOut  State = "timed_out"
	StateErrored   State = "errored"
)

const (
	// DefaultPollInterval is how often the supervisor re-checks
	// cancellation, deadline and completion.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultDeadline bounds a single generation end to end.
	DefaultDeadline = 300 * time.Second
)

// Outcome is the terminal verdict of one supervised generation.
type Outcome struct {
	State   State
	Result  string        // assistant text, set on COMPLETED
	Err     error         // worker failure, set on ERRORED
	Started bool          // false when cancellation landed before the worker spawned
	Elapsed time.Duration
}

// SupervisorConfig tunes the polling cadence and the generation deadline.
// Zero values fall back to the defaults.
type SupervisorConfig struct {
	PollInterval time.Duration
	Deadline     time.Duration
}

// Supervisor runs one generation against the agent on a background worker
// and polls for the first of cancellation, deadline expiry or completion.
// Cancellation is cooperative: an abandoned worker keeps running until it
// notices its context is gone, and nothing it produces afterwards is read.
type Supervisor struct {
	agent    agent.Agent
	interval time.Duration
	deadline time.Duration
}

// NewSupervisor creates a supervisor driving generations against a.
func NewSupervisor(a agent.Agent, cfg SupervisorConfig) *Supervisor {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Supervisor{agent: a, interval: interval, deadline: deadline}
}

// verdict is the worker's deposit: either a result or an error.
type verdict struct {
	result string
	err    error
}

// Run executes one generation for sessionID and blocks until a terminal
// state is reached. The worker streams incidental output to output while it
// runs. Each poll tick checks in fixed order: cancellation, then deadline,
// then completion — so a stop signal racing a finished worker still yields
// CANCELLED within that tick. The worker's context is cancelled whenever
// Run returns, which tells an abandoned context-aware agent to stop early.
func (s *Supervisor) Run(ctx context.Context, sessionID, text string, token *Token, output io.Writer) Outcome {
	start := time.Now()

	// A stop that landed before the worker spawned cancels the generation
	// without ever invoking the agent.
	if token.IsSet() {
		return Outcome{State: StateCancelled, Elapsed: time.Since(start)}
	}

	workerCtx, abandon := context.WithCancel(ctx)
	defer abandon()

	slot := make(chan verdict, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slot <- verdict{err: fmt.Errorf("worker panic: %v", r)}
			}
		}()
		result, err := s.agent.Invoke(workerCtx, text, output)
		slot <- verdict{result: result, err: err}
	}()

	deadline := start.Add(s.deadline)
	for {
		if token.IsSet() || ctx.Err() != nil {
			token.trip()
			logging.Debug().Str("session_id", sessionID).Dur("elapsed", time.Since(start)).Msg("generation cancelled")
			return Outcome{State: StateCancelled, Started: true, Elapsed: time.Since(start)}
		}
		if !time.Now().Before(deadline) {
			token.trip()
			logging.Warn().Str("session_id", sessionID).Dur("deadline", s.deadline).Msg("generation timed out")
			return Outcome{State: StateTimedOut, Started: true, Elapsed: time.Since(start)}
		}
		select {
		case v := <-slot:
			if v.err != nil {
				logging.Error().Str("session_id", sessionID).Err(v.err).Msg("generation failed")
				return Outcome{State: StateErrored, Err: v.err, Started: true, Elapsed: time.Since(start)}
			}
			return Outcome{State: StateCompleted, Result: v.result, Started: true, Elapsed: time.Since(start)}
		default:
		}

		select {
		case <-ctx.Done():
			// Re-checked as a cancellation at the top of the loop.
		case <-time.After(s.interval):
		}
	}
}
