// Package applier executes an ExecutionPlan against a live RPC client: it
// dispatches each operation in plan order, resolves temporary identifiers as
// creates complete, and reports per-operation and aggregate outcomes. It
// performs no ordering of its own — that is the planner's job — and is
// deliberately sequential within a single plan, as the engine.Applier
// interface documents.
package applier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

// DefaultMaxOperations mirrors the planner's cap; a plan that somehow grew
// past this between BuildPlan and Apply is rejected rather than dispatched.
const DefaultMaxOperations = 10000

// dryRunIDSeq is the first synthetic id dry-run creates are assigned; it
// counts downward so dry-run ids never collide with a real server id.
const dryRunIDSeq = int64(-1)

// RPCClient is the subset of engine.RPCClient the Applier dispatches writes
// through.
type RPCClient interface {
	Create(ctx context.Context, model engine.ModelId, fields map[string]interface{}, callCtx map[string]interface{}) (engine.RecordId, error)
	Write(ctx context.Context, model engine.ModelId, ids []engine.RecordId, fields map[string]interface{}, callCtx map[string]interface{}) error
	Unlink(ctx context.Context, model engine.ModelId, ids []engine.RecordId, callCtx map[string]interface{}) error
}

// Applier executes an ExecutionPlan's operations strictly sequentially
// against a single bound RPCClient, satisfying engine.Applier.
type Applier struct {
	client RPCClient
}

// New creates an Applier bound to client.
func New(client RPCClient) *Applier {
	return &Applier{client: client}
}

// Apply executes every operation in plan, in plan order, against the
// Applier's bound client.
func (a *Applier) Apply(ctx context.Context, plan *engine.ExecutionPlan, opts engine.ApplyOptions) (*engine.ApplyResult, error) {
	client := a.client
	if plan == nil {
		return nil, engine.NewInvalidInputError("applier: plan is nil", nil)
	}

	maxOps := opts.MaxOperations
	if maxOps == 0 {
		maxOps = DefaultMaxOperations
	}

	result := &engine.ApplyResult{
		ID:        uuid.New().String(),
		PlanID:    plan.ID,
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
		Status:    engine.ApplyStatusRunning,
		Metadata:  make(map[string]interface{}),
	}

	total := len(plan.Operations)

	if len(plan.Operations) > maxOps {
		result.Results = make([]engine.OperationResult, 0)
		result.Summary = engine.ApplySummary{Total: total, Failed: total}
		result.Status = engine.ApplyStatusFailed
		finish(result)
		result.Metadata["error"] = fmt.Sprintf(
			"plan has %d operations, exceeding the maximum of %d", total, maxOps)
		return result, nil
	}

	if !opts.SkipValidate {
		if msg := preflight(plan.Operations); msg != "" {
			result.Results = make([]engine.OperationResult, 0)
			result.Summary = engine.ApplySummary{Total: total, Failed: total}
			result.Status = engine.ApplyStatusFailed
			finish(result)
			result.Metadata["error"] = msg
			return result, nil
		}
	}

	idMapping := make(map[engine.TempId]engine.RecordId, total)
	dryRunSeq := dryRunIDSeq

	results := make([]engine.OperationResult, 0, total)
	stopped := false

	for i := range plan.Operations {
		op := plan.Operations[i]

		if stopped {
			results = append(results, skippedResult(op.ID, "a prior operation failed and continue_on_error is not set"))
			continue
		}

		opResult := a.applyOne(ctx, client, &op, idMapping, &dryRunSeq, opts)
		results = append(results, opResult)

		if opts.OnOperationComplete != nil {
			opts.OnOperationComplete(op, opResult)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, total, op.ID)
		}

		if opResult.Status == engine.PlanStatusFailed && !opts.ContinueOnError {
			stopped = true
		}
	}

	result.Results = results
	result.Summary = summarize(results)
	result.Status = finalStatus(result.Summary)
	result.Metadata["id_mapping"] = stringifyIDMapping(idMapping)
	finish(result)

	return result, nil
}

func finish(result *engine.ApplyResult) {
	now := time.Now()
	result.CompletedAt = &now
	result.Duration = now.Sub(result.StartedAt)
}

// preflight implements Applier step 1: every non-create id must parse as
// "<model>:<integer>"; every create id must be a temp identifier
// ("<model>:temp_<token>").
func preflight(ops []engine.Operation) string {
	for _, op := range ops {
		switch op.Op {
		case engine.OperationCreate:
			if !strings.Contains(op.ID, ":temp_") {
				return fmt.Sprintf("create operation %q does not carry a temporary identifier", op.ID)
			}
		default:
			if _, err := parseCanonicalID(op); err != nil {
				return fmt.Sprintf("operation %q does not carry a canonical integer id: %v", op.ID, err)
			}
		}
	}
	return ""
}

func parseCanonicalID(op engine.Operation) (int64, error) {
	if op.RecordID != nil {
		return int64(*op.RecordID), nil
	}
	parts := strings.SplitN(op.ID, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("missing model:id separator")
	}
	return strconv.ParseInt(parts[1], 10, 64)
}

// applyOne resolves references, dispatches, and times a single operation.
func (a *Applier) applyOne(
	ctx context.Context,
	client RPCClient,
	op *engine.Operation,
	idMapping map[engine.TempId]engine.RecordId,
	dryRunSeq *int64,
	opts engine.ApplyOptions,
) engine.OperationResult {
	start := time.Now()
	result := engine.OperationResult{
		OperationID: op.ID,
		StartedAt:   start,
	}

	resolvedFields, unresolved := resolveRefs(op.Fields, idMapping)
	if unresolved != "" {
		result.Status = engine.PlanStatusFailed
		result.Error = engine.NewValidationError(
			fmt.Sprintf("operation %s references unresolved temp id %q", op.ID, unresolved), nil).
			WithCode(engine.ErrCodeValidation).WithResource(op.ID)
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(start)
		return result
	}

	callCtx := mergeContext(opts.Context, op.Context)

	var (
		actualID engine.RecordId
		err      error
	)

	switch op.Op {
	case engine.OperationCreate:
		actualID, err = a.dispatchCreate(ctx, client, op, resolvedFields, callCtx, opts.DryRun, dryRunSeq)
		if err == nil {
			idMapping[op.TempID] = actualID
		}
	case engine.OperationUpdate:
		actualID, err = a.dispatchWrite(ctx, client, op, resolvedFields, callCtx, opts.DryRun)
	case engine.OperationDelete:
		actualID, err = a.dispatchDelete(ctx, client, op, callCtx, opts.DryRun)
	default:
		err = engine.NewInvalidInputError(fmt.Sprintf("applier: unsupported operation type %q", op.Op), nil)
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(start)

	if err != nil {
		result.Status = engine.PlanStatusFailed
		result.Error = classifyError(err)
		log.Warn().Str("operation", op.ID).Err(err).Msg("operation failed")
		return result
	}

	result.Status = engine.PlanStatusSucceeded
	result.RecordID = &actualID
	return result
}

func (a *Applier) dispatchCreate(
	ctx context.Context,
	client RPCClient,
	op *engine.Operation,
	fields map[string]engine.FieldValue,
	callCtx map[string]interface{},
	dryRun bool,
	dryRunSeq *int64,
) (engine.RecordId, error) {
	if dryRun {
		id := engine.RecordId(*dryRunSeq)
		*dryRunSeq--
		return id, nil
	}

	newID, err := client.Create(ctx, op.Model, fields, callCtx)
	if err != nil {
		return 0, err
	}
	return newID, nil
}

func (a *Applier) dispatchWrite(
	ctx context.Context,
	client RPCClient,
	op *engine.Operation,
	fields map[string]engine.FieldValue,
	callCtx map[string]interface{},
	dryRun bool,
) (engine.RecordId, error) {
	id, err := parseCanonicalID(*op)
	if err != nil {
		return 0, engine.NewValidationError("applier: bad update id", err).WithResource(op.ID)
	}
	if dryRun {
		return engine.RecordId(id), nil
	}

	if err := client.Write(ctx, op.Model, []engine.RecordId{engine.RecordId(id)}, fields, callCtx); err != nil {
		return 0, err
	}
	return engine.RecordId(id), nil
}

func (a *Applier) dispatchDelete(
	ctx context.Context,
	client RPCClient,
	op *engine.Operation,
	callCtx map[string]interface{},
	dryRun bool,
) (engine.RecordId, error) {
	id, err := parseCanonicalID(*op)
	if err != nil {
		return 0, engine.NewValidationError("applier: bad delete id", err).WithResource(op.ID)
	}
	if dryRun {
		return engine.RecordId(id), nil
	}

	if err := client.Unlink(ctx, op.Model, []engine.RecordId{engine.RecordId(id)}, callCtx); err != nil {
		return 0, err
	}
	return engine.RecordId(id), nil
}

// resolveRefs walks fields and rewrites every "$ref"-shaped string present
// in idMapping to its resolved integer, recursing into nested lists and
// maps (relational command sequences, property bags). The first "$ref" it
// finds that is not yet in idMapping is returned as unresolved, failing the
// operation rather than silently leaving a placeholder string in a write
// payload.
func resolveRefs(fields map[string]engine.FieldValue, idMapping map[engine.TempId]engine.RecordId) (map[string]engine.FieldValue, string) {
	if fields == nil {
		return nil, ""
	}
	out := make(map[string]engine.FieldValue, len(fields))
	for name, value := range fields {
		resolved, unresolved := resolveValue(value, idMapping)
		if unresolved != "" {
			return nil, unresolved
		}
		out[name] = resolved
	}
	return out, ""
}

func resolveValue(value engine.FieldValue, idMapping map[engine.TempId]engine.RecordId) (engine.FieldValue, string) {
	switch v := value.(type) {
	case string:
		ref, ok := stripRefPrefix(v)
		if !ok {
			return value, ""
		}
		if id, known := idMapping[engine.TempId(ref)]; known {
			return int64(id), ""
		}
		return nil, ref
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			resolved, unresolved := resolveValue(item, idMapping)
			if unresolved != "" {
				return nil, unresolved
			}
			out[i] = resolved
		}
		return out, ""
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			resolved, unresolved := resolveValue(item, idMapping)
			if unresolved != "" {
				return nil, unresolved
			}
			out[k] = resolved
		}
		return out, ""
	default:
		return value, ""
	}
}

func stripRefPrefix(s string) (string, bool) {
	if len(s) > 1 && s[0] == '$' {
		return s[1:], true
	}
	return "", false
}

func mergeContext(base, override map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func skippedResult(operationID, reason string) engine.OperationResult {
	now := time.Now()
	return engine.OperationResult{
		OperationID: operationID,
		Status:      engine.PlanStatusSkipped,
		StartedAt:   now,
		CompletedAt: now,
		Error:       engine.NewValidationError(reason, nil).WithResource(operationID),
	}
}

func summarize(results []engine.OperationResult) engine.ApplySummary {
	s := engine.ApplySummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case engine.PlanStatusSucceeded:
			s.Succeeded++
		case engine.PlanStatusFailed:
			s.Failed++
		case engine.PlanStatusSkipped:
			s.Skipped++
		}
	}
	return s
}

func finalStatus(s engine.ApplySummary) engine.ApplyStatus {
	switch {
	case s.Failed == 0 && s.Skipped == 0:
		return engine.ApplyStatusSucceeded
	case s.Succeeded == 0:
		return engine.ApplyStatusFailed
	default:
		return engine.ApplyStatusPartial
	}
}

func classifyError(err error) *engine.EngineError {
	var ee *engine.EngineError
	if e, ok := err.(*engine.EngineError); ok {
		ee = e
	} else {
		ee = engine.NewRpcError(err.Error(), err)
	}
	return ee
}

func stringifyIDMapping(m map[engine.TempId]engine.RecordId) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[string(k)] = int64(v)
	}
	return out
}
