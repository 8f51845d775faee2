// Package core provides the foundational domain types, interfaces and
// execution contexts used by Backline. It defines the core abstractions for:
//
//   - Agents (units of routed, model-driven work)
//   - Sessions (stateful conversational containers with append-only history)
//   - Events (immutable communication records with per-agent branches)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - RunBudget (the per-run model call allowance)
//   - Pluggable stores for session state and memory recall/search
//
// The package intentionally keeps implementation concerns (persistence, run
// orchestration, concrete agents) out of scope, exposing small interfaces to
// enable custom backends and extensions.
package core
