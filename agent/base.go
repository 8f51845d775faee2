package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/backline-ai/backline/core"
)

// BaseAgent bundles the identity and run accounting shared by all agents.
// Embed it in concrete implementations and supply a Run method to satisfy
// core.Agent. All exported methods are goroutine-safe.
//
// One agent instance serves every session, so several runs may be active at
// once; Start/Stop keep a count rather than a latch. Cancellation belongs to
// each run's context, not to the agent.
type BaseAgent struct {
	name        string
	description string
	mu          sync.Mutex
	active      int
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// Start registers the beginning of a run.
func (b *BaseAgent) Start(_ *core.RunContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active++
	return nil
}

// Stop registers the end of a run. It returns an error when no run is
// active, which points at an unbalanced Start/Stop pair in the caller.
func (b *BaseAgent) Stop(_ *core.RunContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active == 0 {
		return errors.New("agent is not running")
	}
	b.active--
	return nil
}

// ActiveRuns reports how many runs are currently between Start and Stop.
func (b *BaseAgent) ActiveRuns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}
