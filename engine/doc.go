// Package engine implements the orchestration layer of Backline.
//
// The Engine owns the registry of domain agents and the routing decision:
// every incoming user message is matched against agent keyword signatures
// (sticky to the session's active agent, priority tie-breaks, optional
// classifier fallback) and the winning agent's turn is handed to the runner.
// When no agent matches, the engine answers with a clarification reply
// instead of failing.
//
// # Architecture
//
// The engine sits between the public facade and the execution machinery:
//
//	┌─────────────────────────────────────────────┐
//	│              Facade / CLI                   │
//	├─────────────────────────────────────────────┤
//	│                  Engine                     │
//	│   Register · Invoke · InvokeSync · Cancel   │
//	│  ┌──────────┐ ┌──────────┐ ┌─────────────┐  │
//	│  │  Router  │ │  Hooks   │ │Agent registry│ │
//	│  └──────────┘ └──────────┘ └─────────────┘  │
//	├─────────────────────────────────────────────┤
//	│                  Runner                     │
//	│   per-session serialization · concurrency   │
//	│   bound · persistence · cancellation        │
//	├─────────────────────────────────────────────┤
//	│        Session store · Memory store         │
//	└─────────────────────────────────────────────┘
//
// # Usage
//
// Basic setup registers each agent with its routing descriptor:
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Logger = logger
//	})
//	for _, b := range agents.All(llm, deps) {
//	    if err := eng.Register(b.Agent, b.Descriptor); err != nil {
//	        return err
//	    }
//	}
//
// Streaming execution:
//
//	runID, events, errs, err := eng.Invoke(ctx, "session-1", userContent)
//	if err != nil {
//	    return err
//	}
//	_ = runID // keep for Cancel
//	for ev := range events {
//	    handleEvent(ev)
//	}
//
// Request-response callers use InvokeSync, which collects the full event
// trace and returns once the turn completes.
//
// # Hooks
//
// Hooks observe routing milestones (before routing, after a selection, on
// no-match) and run synchronously inside Invoke. A hook returning an error
// vetoes the turn before any agent executes, which makes hooks the place for
// audit trails and admission checks.
//
// # Error Handling
//
// Startup failures (empty session ID, hook veto, store errors) return from
// Invoke directly. Agent execution failures arrive on the run's error
// channel. Routing misses are not errors: the clarification reply carries
// core.ErrorCodeNoAgent so callers can detect them.
package engine
