// Package history provides the engine.SessionStore implementation backing
// odoodrift's CLI: authenticated sessions, Ref->record-id bindings, and a
// history of computed plans and apply results, persisted to SQLite with WAL
// mode and schema migrations so a CLI invocation can pick up where the last
// one left off.
package history
