package core

// Agent defines the interface every agent in the runtime implements.
//
// Agents are the processing units of the framework. They receive one user
// turn through a RunContext, drive their model loop, and emit events to
// communicate results and state changes back to the runner.
//
// Implementations must:
//   - Respect context cancellation for graceful shutdown
//   - Emit events through the provided RunContext
//   - Handle the async resume mechanism properly
//   - Manage their lifecycle through Start/Stop methods
type Agent interface {
	Name() string
	Description() string
	Start(rc *RunContext) error
	Stop(rc *RunContext) error
	Run(rc *RunContext) error
}

// AgentInfo carries identifying details about an agent used in contexts &
// events. Name is the external identifier; Type categorizes the
// implementation (e.g. "model", "router").
type AgentInfo struct{ Name, Type string }
