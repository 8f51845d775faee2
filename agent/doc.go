// Package agent contains the agent implementations of the Backline runtime.
//
// BaseAgent supplies the lifecycle (Start/Stop) every agent embeds. ModelAgent
// binds a language model to a tool registry and an instruction source and
// drives one flow.ModelFlow per user turn. Routing between agents does not
// happen here: the router package picks exactly one agent before a run starts
// and the runner executes it.
//
// The concrete back-office agents (calendar, email, invoice, social, crm) are
// assembled from ModelAgent in the agents package.
package agent
