package engine

import (
	"context"
	"encoding/json"
	"time"
)

// RPCClient is the transport-level interface to an Odoo JSON-RPC endpoint.
// Implementations must be safe for concurrent use; a single client typically
// backs one authenticated session.
type RPCClient interface {
	// Login authenticates against the server and returns the resulting session.
	Login(ctx context.Context, database, username, password string) (*SessionState, error)

	// Session returns the current session, or an error satisfying IsNotAuthenticated
	// if Login has not been called yet.
	Session() (*SessionState, error)

	// Logout discards the current session. It is a no-op, not an error, when
	// no session is active.
	Logout(ctx context.Context) error

	// ExecuteKw invokes execute_kw(db, uid, password, model, method, args, kwargs)
	// and unmarshals the result into out.
	ExecuteKw(ctx context.Context, model ModelId, method string, args []interface{}, kwargs map[string]interface{}, out interface{}) error

	// Search returns the ids of records matching domain, Odoo's bare search
	// method (no field values fetched).
	Search(ctx context.Context, model ModelId, domain Domain, opts SearchOptions) ([]RecordId, error)

	// Read fetches specific fields for a known set of record ids.
	Read(ctx context.Context, model ModelId, ids []RecordId, fields []string) ([]map[string]FieldValue, error)

	// SearchRead is a convenience wrapper over the common search_read method.
	SearchRead(ctx context.Context, model ModelId, domain Domain, fields []string, limit int) ([]map[string]FieldValue, error)

	// Create inserts a new record and returns its assigned id. callCtx
	// carries Odoo call-context overrides (lang, tz, tracking_disable, ...);
	// nil is fine.
	Create(ctx context.Context, model ModelId, fields map[string]interface{}, callCtx map[string]interface{}) (RecordId, error)

	// Write updates the given records' fields.
	Write(ctx context.Context, model ModelId, ids []RecordId, fields map[string]interface{}, callCtx map[string]interface{}) error

	// Unlink deletes the given records.
	Unlink(ctx context.Context, model ModelId, ids []RecordId, callCtx map[string]interface{}) error

	// Call invokes an arbitrary model method and returns its raw JSON
	// result, for operations the client has no typed wrapper for.
	Call(ctx context.Context, model ModelId, method string, args []interface{}, kwargs map[string]interface{}) (json.RawMessage, error)

	// ConnectionStatus reports whether the transport can currently reach the
	// server, independent of whether a session has been established.
	ConnectionStatus(ctx context.Context) (*ConnectionState, error)

	// FieldsGet invokes fields_get to introspect a model's schema.
	FieldsGet(ctx context.Context, model ModelId) (map[string]FieldSchema, error)

	// Close releases any resources (idle connections) held by the client.
	Close() error
}

// GetModelsOptions filters Introspector.GetModels.
type GetModelsOptions struct {
	// IncludeTransient includes wizard/transient models in the result.
	IncludeTransient bool

	// Modules, if non-empty, restricts the result to models contributed by
	// one of the named modules.
	Modules []string

	// BypassCache forces each listed model's metadata to be refetched
	// rather than served from the in-memory/persistent cache.
	BypassCache bool
}

// Introspector resolves and caches model metadata used by the comparator and
// planner to interpret field values correctly (relational commands vs
// scalars, property bags, etc), refined by a static base-schema registry for
// well-known models.
type Introspector interface {
	// Describe returns the field schema for a model, fetching and caching it
	// via FieldsGet if not already cached or if the cached entry has expired.
	Describe(ctx context.Context, model ModelId) (*ModelMetadata, error)

	// GetModels returns metadata for the models odoodrift has base-schema
	// knowledge of, optionally filtered and refetched per opts.
	GetModels(ctx context.Context, opts GetModelsOptions) ([]ModelMetadata, error)

	// Invalidate drops any cached metadata for a model, forcing a refetch.
	Invalidate(model ModelId)
}

// Comparator computes the difference between desired records and the
// server's actual state for those same records. It performs no I/O itself:
// actual is the caller-fetched snapshot of current field values, keyed by
// DesiredRecord.Ref, for records that are known to exist.
type Comparator interface {
	// Diff compares a desired record against actual, its caller-fetched
	// current field values (nil if the record does not exist yet). actualID
	// is the record's known server id, or nil if it does not exist yet.
	// resolved maps other records' Refs to their (possibly still unknown)
	// ids, so many2one/one2many values expressed as "$ref" in desired.Fields
	// can be translated to a write-ready value or a TempId.
	Diff(ctx context.Context, desired DesiredRecord, actualID *RecordId, actual map[string]FieldValue, resolved map[string]*RecordId) (*ModelDiff, error)

	// DiffAll compares a full desired-state document against actual, keyed by Ref.
	DiffAll(ctx context.Context, desired []DesiredRecord, actual map[string]map[string]FieldValue, resolved map[string]*RecordId) ([]ModelDiff, error)
}

// Planner turns comparator output into a dependency-ordered execution plan.
type Planner interface {
	// BuildPlan creates an execution plan from a set of diffs, inferring
	// dependencies from relational fields that reference other Refs.
	BuildPlan(ctx context.Context, diffs []ModelDiff) (*ExecutionPlan, error)

	// BuildGraph computes the dependency graph and topological levels for a plan.
	BuildGraph(ctx context.Context, plan *ExecutionPlan) (*ExecutionGraph, error)

	// Validate rejects plans with dependency cycles or references to unknown Refs.
	Validate(ctx context.Context, plan *ExecutionPlan) error
}

// Applier executes an ExecutionPlan's operations strictly sequentially, in
// topological order, resolving temp-id references as each create completes.
type Applier interface {
	// Apply executes every operation in the plan and returns the aggregate result.
	// When opts.DryRun is set, operations are validated and reported but no
	// RPC write calls are issued.
	Apply(ctx context.Context, plan *ExecutionPlan, opts ApplyOptions) (*ApplyResult, error)
}

// ApplyOptions controls how Applier.Apply executes a plan.
type ApplyOptions struct {
	// DryRun computes and reports what would happen without writing to the server.
	DryRun bool `json:"dry_run,omitempty"`

	// ContinueOnError lets the plan keep running remaining operations after a
	// failure instead of halting and marking the rest Skipped. The spec's
	// default apply behavior is to stop on the first failure, which is this
	// field's Go zero value (false).
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	// SkipValidate disables the applier's pre-flight id-shape check. The
	// spec's default apply behavior runs that check, which is this field's
	// Go zero value (false).
	SkipValidate bool `json:"skip_validate,omitempty"`

	// MaxOperations caps the number of operations a plan may contain at
	// apply time. Zero means the applier's built-in default.
	MaxOperations int `json:"max_operations,omitempty"`

	// Context carries base Odoo call-context overrides, shallow-merged with
	// each operation's own Context (the operation's keys win).
	Context map[string]interface{} `json:"context,omitempty"`

	// OnOperationComplete, if set, is invoked after each operation's outcome is
	// decided and before the next operation begins.
	OnOperationComplete func(Operation, OperationResult)

	// OnProgress, if set, is invoked after each operation completes with the
	// 1-based count of operations processed so far, the plan total, and the
	// id of the operation that just finished.
	OnProgress func(current, total int, operationID string)
}

// SessionStore persists SessionState and Ref->RecordID resolution across CLI
// invocations, and keeps a history of plans and apply results.
type SessionStore interface {
	// SaveSession persists the current authenticated session.
	SaveSession(ctx context.Context, s *SessionState) error

	// LoadSession retrieves the last saved session, if any.
	LoadSession(ctx context.Context) (*SessionState, error)

	// ResolveRef returns the record id last known to correspond to ref, if any.
	ResolveRef(ctx context.Context, model ModelId, ref string) (*RecordId, error)

	// BindRef records that ref now corresponds to id.
	BindRef(ctx context.Context, model ModelId, ref string, id RecordId) error

	// SavePlan persists a computed plan for later inspection or apply.
	SavePlan(ctx context.Context, plan *ExecutionPlan) error

	// GetPlan retrieves a previously saved plan by ID.
	GetPlan(ctx context.Context, planID string) (*ExecutionPlan, error)

	// SaveApplyResult persists the outcome of an apply run.
	SaveApplyResult(ctx context.Context, result *ApplyResult) error

	// GetApplyResult retrieves a previously saved apply result by ID.
	GetApplyResult(ctx context.Context, id string) (*ApplyResult, error)

	// CacheModelMetadata persists introspected model metadata for reuse across runs.
	CacheModelMetadata(ctx context.Context, meta *ModelMetadata) error

	// LoadModelMetadata retrieves cached model metadata, if present and unexpired.
	LoadModelMetadata(ctx context.Context, model ModelId) (*ModelMetadata, error)
}

// PolicyEngine enforces guardrails on plans before they are applied.
type PolicyEngine interface {
	// EvaluatePlan evaluates policy rules against a computed plan.
	EvaluatePlan(ctx context.Context, plan *ExecutionPlan) (*PolicyResult, error)

	// LoadPolicies loads rego policy bundles from the given paths.
	LoadPolicies(ctx context.Context, paths []string) error
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	Allowed     bool              `json:"allowed"`
	Violations  []PolicyViolation `json:"violations,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	Policy      string `json:"policy"`
	Message     string `json:"message"`
	Severity    string `json:"severity"`
	OperationID string `json:"operation_id,omitempty"`
}

// EventPublisher publishes execution events to subscribers (CLI progress
// output, telemetry sinks).
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan Event, error)
}

// EventFilter represents criteria for filtering events.
type EventFilter struct {
	ApplyID string      `json:"apply_id,omitempty"`
	Model   ModelId     `json:"model,omitempty"`
	Types   []EventType `json:"types,omitempty"`
}
