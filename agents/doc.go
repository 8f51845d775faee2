// Package agents assembles the five domain assistants that make up the
// musician's back office: calendar, email, invoice, social, and crm. Each
// constructor binds a ModelAgent to its tool set over the shared SQLite
// store and returns the router descriptor that makes the agent routable.
//
// Outward-facing tools follow the draft/commit split: preparing an email,
// an invoice, or a post is always allowed, while sending or publishing
// requires the draft id the user approved. The registry enforces the
// gating; agents only declare the draft kinds on their tools.
package agents
