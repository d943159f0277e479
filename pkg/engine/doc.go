// Package engine provides the core types, interfaces, and error taxonomy shared by
// the rest of odoodrift. It defines the 4-phase workflow the rest of the module
// implements:
//
//  1. Compare  - diff desired state against the server's actual state (Comparator)
//  2. Plan     - turn a diff into a dependency-ordered execution plan (Planner)
//  3. Validate - reject plans that violate policy or contain dependency cycles
//  4. Apply    - execute a plan's operations sequentially against the server (Applier)
//
// # Core Domain Types
//
//   - ModelId / RecordId: identify an Odoo model and a record within it
//   - FieldChange: one field's before/after value
//   - ModelDiff: the changes required to bring one record to its desired state
//   - Operation: a single unit of work in an execution plan (create/update/delete)
//   - ExecutionPlan: a dependency-ordered collection of operations
//   - OperationResult / ApplyResult: the outcome of executing one operation, or a whole plan
//   - SessionState: an authenticated RPC session (uid, session id, database)
//
// # Error Classification
//
// Errors are classified by EngineError.Class so callers can decide whether to
// retry, re-authenticate, or abort:
//
//   - NotAuthenticated: no session is present; the caller must log in first
//   - AuthError: the server rejected credentials or the session expired
//   - NetworkError: a transport-level failure; retryable
//   - RpcError: the server returned a JSON-RPC error envelope
//   - ValidationError: the plan or desired state is structurally invalid
//   - InvalidInput: caller-supplied arguments are malformed
//
// Use the Is* helper functions, or errors.As, to classify and inspect errors.
package engine
