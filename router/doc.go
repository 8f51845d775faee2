// Package router decides which domain agent handles an incoming user
// message.
//
// Each agent registers a Descriptor carrying its name and intent signature
// (keywords plus a short description). Route scores the message against every
// signature and applies session stickiness: a session already bound to an
// agent stays there unless another agent scores strictly higher, so
// follow-ups without a domain cue remain continuations. Messages no signature
// matches can optionally fall through to a model-backed Classifier before
// routing fails with NoMatchError.
//
// Route is read-only; callers persist the decision by writing the chosen
// agent name under core.StateKeyActiveAgent.
package router
