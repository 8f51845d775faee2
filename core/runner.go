package core

import "context"

// Runner is the orchestration contract for executing one agent turn inside a
// conversational session. Implementations provide:
//   - Asynchronous execution via Run (streaming events + terminal error channel)
//   - Cooperative cancellation through Cancel
//   - Stable run identifiers for tracking and external control
//
// Semantics:
//   - Event Ordering: events emitted within a single run are delivered in the
//     order produced by the agent pipeline.
//   - Channel Lifecycle: the returned events channel is closed after the run
//     completes (success, error, or cancellation). The error channel carries at
//     most one terminal error then closes.
//   - Serialization: turns addressed to the same session never overlap; a Run
//     issued while another turn for that session is in flight queues behind it.
//   - Cancellation: context cancellation or explicit Cancel(runID) stops the
//     run at its next suspension point and yields an interrupted final event.
//   - Partial Events: implementations MAY emit partial events; consumers should
//     rely on IsPartial() to decide persistence or display strategy.
type Runner interface {
	// Run starts an asynchronous turn for agent bound to sessionID, using
	// userContent as the newest user input. It returns:
	//   runID    - stable identifier for cancellation / tracking
	//   eventsCh - ordered stream of events (closed on completion)
	//   errorsCh - terminal error channel (size 1, closed after send/none)
	// The immediate error return covers startup failures only (nil agent,
	// missing session ID).
	Run(ctx context.Context, sessionID string, agent Agent, userContent Content) (string, <-chan Event, <-chan error, error)

	// Cancel requests cooperative termination of an in-flight run. Cancelling
	// an unknown or already finished run returns an error describing the
	// condition.
	Cancel(runID string) error
}
