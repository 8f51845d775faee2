// Package memory contains concrete MemoryStore implementations. The store
// interface and SearchResult type reside in the core package; depend on
// core.MemoryStore in your code and select an implementation at wiring time.
//
// The in-memory store here covers tests and demos with substring search. The
// chromem subpackage persists scopes as vector collections for semantic
// retrieval, which is how the social agent matches the artist's voice.
package memory
