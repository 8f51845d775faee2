// Package session houses concrete implementations of the core.SessionStore.
// The interface itself (and the Session struct) live in the core package to
// centralize domain contracts. Keeping only implementations here prevents
// higher level packages (agents, engine) from depending on concrete storage.
//
// InMemoryStore is the default for tests and throwaway sessions. The SQLite
// backed store in the store package persists conversations across restarts;
// only the wiring layer needs to decide which implementation to instantiate.
package session
