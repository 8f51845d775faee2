package core

import "context"

// Engine coordinates routing and agent execution for user messages.
//
// Unlike Runner, which executes a turn for an agent the caller already chose,
// an Engine owns the choice: each message is matched to a registered agent
// before the turn starts. Registration is implementation-specific (routing
// metadata lives above this package), so the contract covers execution only.
//
// Implementations SHOULD:
//   - Guarantee per-run event ordering
//   - Propagate context cancellation to the underlying run
//   - Close returned channels when a run terminates
//   - Answer unroutable messages with a clarification event carrying
//     ErrorCodeNoAgent rather than failing
type Engine interface {
	// Invoke routes userContent and starts an asynchronous turn, returning
	// the run ID, a streaming event channel and a terminal error channel.
	// Channels are closed when execution completes or is cancelled. The
	// immediate error covers startup failures only.
	Invoke(ctx context.Context, sessionID string, userContent Content) (string, <-chan Event, <-chan error, error)

	// InvokeSync executes a turn to completion, collecting all emitted
	// events. Convenience wrapper that drains Invoke.
	InvokeSync(ctx context.Context, sessionID string, userContent Content) (string, []Event, error)

	// Cancel requests cooperative termination of an in-flight run.
	Cancel(runID string) error

	// GetSession returns a snapshot of the session, creating it if absent.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}
