// Package runner executes agent turns against sessions.
//
// The Runner sits between the engine (which picks an agent for each user
// message) and the agents themselves. For every turn it:
//
//   - serializes runs on the same session with a per-session lock, so two
//     turns never interleave their history writes
//   - bounds global concurrency with a semaphore; independent sessions run
//     in parallel up to the bound
//   - appends the triggering user event under the session lock, stamped with
//     the agent's branch
//   - persists every non-partial event the agent emits before resuming it,
//     keeping the stored history append-only and well ordered
//   - forwards the event stream to the caller and supports cancellation via
//     Cancel, which ends the run with a final interrupted event
package runner
