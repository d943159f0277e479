package planner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

// DefaultMaxOperations bounds how many operations a single plan may contain.
// A plan that exceeds this is rejected up front rather than handed to the
// applier, the same way the DAG builder rejects a plan with no computable
// root before ever dispatching an RPC call.
const DefaultMaxOperations = 10000

// Options controls how Planner.BuildPlan turns diffs into an ExecutionPlan.
type Options struct {
	// AutoReorder partitions operations into creates, updates, deletes (in
	// that order) and topologically sorts within each partition. New turns
	// it on only when given the zero Options; see New.
	AutoReorder bool

	// ValidateDependencies rejects a plan whose dependencies reference an
	// unknown operation, or target a delete. New turns it on only when given
	// the zero Options; see New.
	ValidateDependencies bool

	// MaxOperations caps the number of operations a plan may contain. Zero
	// means DefaultMaxOperations.
	MaxOperations int
}

func (o Options) withDefaults() Options {
	if o.MaxOperations == 0 {
		o.MaxOperations = DefaultMaxOperations
	}
	return o
}

// Planner turns comparator diffs into a dependency-ordered ExecutionPlan.
// It performs no I/O: every method is a pure function of its inputs, so a
// Planner is safe to share across concurrent plan computations.
type Planner struct {
	opts Options
}

// New creates a Planner. Given the zero Options, AutoReorder and
// ValidateDependencies are both true. Any other Options value is used as
// given, so a caller that sets only MaxOperations gets both of them false.
func New(opts Options) *Planner {
	if opts == (Options{}) {
		opts = Options{AutoReorder: true, ValidateDependencies: true}
	}
	return &Planner{opts: opts.withDefaults()}
}

// BuildPlan converts diffs into operations, orders them, and validates the
// result. A plan that fails validation is still returned (with
// Metadata["has_errors"] and Metadata["errors"] populated) rather than only an
// error, so callers can render the rejection to the user the same way a
// successful plan would be rendered.
func (p *Planner) BuildPlan(ctx context.Context, diffs []engine.ModelDiff) (*engine.ExecutionPlan, error) {
	plan := &engine.ExecutionPlan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
	}

	ops, summary := diffsToOperations(diffs)
	plan.Operations = ops
	plan.Summary = summary

	if len(ops) > p.opts.MaxOperations {
		return failPlan(plan, fmt.Sprintf(
			"plan has %d operations, exceeding the maximum of %d", len(ops), p.opts.MaxOperations)), nil
	}

	resolveDependencies(ops)

	if p.opts.ValidateDependencies {
		if errs := validateDependencies(ops); len(errs) > 0 {
			return failPlanMulti(plan, errs), nil
		}
	}

	if p.opts.AutoReorder {
		ordered, err := reorder(ops)
		if err != nil {
			return failPlan(plan, err.Error()), nil
		}
		plan.Operations = ordered
	}

	graph, err := p.BuildGraph(ctx, plan)
	if err != nil {
		return failPlan(plan, err.Error()), nil
	}
	plan.Graph = graph

	plan.Metadata["change_count"] = len(plan.Operations)
	plan.Metadata["per_model"] = tallyByModel(plan.Operations)

	return plan, nil
}

// BuildGraph computes the dependency graph and topological levels for plan.
// It is exposed separately from BuildPlan so a caller that has reordered or
// otherwise mutated a plan's operations can recompute the graph without
// rerunning diff-to-operation translation.
func (p *Planner) BuildGraph(_ context.Context, plan *engine.ExecutionPlan) (*engine.ExecutionGraph, error) {
	builder := engine.NewDAGBuilder()
	graph, err := builder.BuildGraph(plan.Operations)
	if err != nil {
		return nil, err
	}
	if err := builder.ValidateGraph(graph); err != nil {
		return nil, err
	}
	return graph, nil
}

// Validate rejects plans with dependency cycles or references to unknown
// operations. It re-derives the graph rather than trusting plan.Graph, so it
// also catches a plan whose operations were hand-edited after BuildPlan ran.
func (p *Planner) Validate(ctx context.Context, plan *engine.ExecutionPlan) error {
	if plan == nil {
		return engine.NewValidationError("plan is nil", nil).WithCode(engine.ErrCodeValidation)
	}
	if errs := validateDependencies(plan.Operations); len(errs) > 0 {
		return engine.NewValidationError(errs[0], nil).WithCode(engine.ErrCodeValidation)
	}
	_, err := p.BuildGraph(ctx, plan)
	return err
}

// diffsToOperations implements step 1 of plan generation: one create per
// isNew diff, one update per diff with at least one change, nothing for a
// noop diff. Deletes are accepted if present (the comparator's forward
// compare never emits one; see engine.OperationDelete) but are otherwise
// handled identically to updates below.
func diffsToOperations(diffs []engine.ModelDiff) ([]engine.Operation, engine.PlanSummary) {
	ops := make([]engine.Operation, 0, len(diffs))
	summary := engine.PlanSummary{TotalRecords: len(diffs)}

	for i := range diffs {
		d := &diffs[i]
		switch d.Operation {
		case engine.OperationCreate:
			op := engine.Operation{
				ID:     fmt.Sprintf("%s:temp_%s", d.Model, d.Ref),
				Ref:    d.Ref,
				Model:  d.Model,
				TempID: engine.TempId(d.Ref),
				Op:     engine.OperationCreate,
				Fields: changesToFields(d.Changes),
				Diff:   d,
				Status: engine.PlanStatusPending,
			}
			ops = append(ops, op)
			summary.ToCreate++
		case engine.OperationUpdate:
			if len(d.Changes) == 0 {
				summary.NoChange++
				continue
			}
			op := engine.Operation{
				ID:       fmt.Sprintf("%s:%d", d.Model, *d.RecordID),
				Ref:      d.Ref,
				Model:    d.Model,
				RecordID: d.RecordID,
				Op:       engine.OperationUpdate,
				Fields:   changesToFields(d.Changes),
				Diff:     d,
				Status:   engine.PlanStatusPending,
			}
			ops = append(ops, op)
			summary.ToUpdate++
		case engine.OperationDelete:
			op := engine.Operation{
				ID:       fmt.Sprintf("%s:%d", d.Model, *d.RecordID),
				Ref:      d.Ref,
				Model:    d.Model,
				RecordID: d.RecordID,
				Op:       engine.OperationDelete,
				Diff:     d,
				Status:   engine.PlanStatusPending,
			}
			ops = append(ops, op)
			summary.ToDelete++
		default:
			summary.NoChange++
		}
	}

	return ops, summary
}

func changesToFields(changes []engine.FieldChange) map[string]engine.FieldValue {
	if len(changes) == 0 {
		return nil
	}
	fields := make(map[string]engine.FieldValue, len(changes))
	for _, c := range changes {
		fields[c.Field] = c.After
	}
	return fields
}

// resolveDependencies implements step 3: a syntactic scan of every
// operation's Fields for a string matching another operation's TempID
// reference form ("$ref"), recursing into nested lists and maps. This
// mirrors the comparator's own resolveValue helper, since a dependency not
// resolved at diff time (the referenced record will be created within the
// same plan) still appears in Fields as the unresolved "$ref" string.
func resolveDependencies(ops []engine.Operation) {
	refToOpID := make(map[string]string, len(ops))
	for i := range ops {
		if ops[i].TempID != "" {
			refToOpID[ops[i].Ref] = ops[i].ID
		}
	}

	for i := range ops {
		op := &ops[i]
		seen := make(map[string]bool)
		for field, value := range op.Fields {
			for _, targetID := range scanForRefs(value, refToOpID) {
				if targetID == op.ID || seen[targetID] {
					continue
				}
				seen[targetID] = true
				op.Dependencies = append(op.Dependencies, engine.Dependency{
					TargetID: targetID,
					Reason:   fmt.Sprintf("field %q references %s", field, targetID),
				})
			}
		}
		if len(op.Dependencies) > 1 {
			sort.Slice(op.Dependencies, func(a, b int) bool {
				return op.Dependencies[a].TargetID < op.Dependencies[b].TargetID
			})
		}
	}
}

// scanForRefs walks value looking for "$ref" strings that name another
// operation's TempID, recursing into nested lists and maps (relational
// command sequences and property-bag values both surface as these). It is a
// syntactic scan, not a semantic one: any string happening to match the
// "$name" shape is treated as a reference, per the spec's noted limitation.
func scanForRefs(value engine.FieldValue, refToOpID map[string]string) []string {
	switch v := value.(type) {
	case string:
		ref, ok := stripRefPrefix(v)
		if !ok {
			return nil
		}
		if targetID, ok := refToOpID[ref]; ok {
			return []string{targetID}
		}
		return nil
	case []interface{}:
		var out []string
		for _, item := range v {
			out = append(out, scanForRefs(item, refToOpID)...)
		}
		return out
	case map[string]interface{}:
		var out []string
		for _, item := range v {
			out = append(out, scanForRefs(item, refToOpID)...)
		}
		return out
	default:
		return nil
	}
}

func stripRefPrefix(s string) (string, bool) {
	if len(s) > 1 && s[0] == '$' {
		return s[1:], true
	}
	return "", false
}

// validateDependencies implements step 4: every dependency must target a
// known operation, and none may target a delete.
func validateDependencies(ops []engine.Operation) []string {
	byID := make(map[string]*engine.Operation, len(ops))
	for i := range ops {
		byID[ops[i].ID] = &ops[i]
	}

	var errs []string
	for i := range ops {
		op := &ops[i]
		for _, dep := range op.Dependencies {
			target, ok := byID[dep.TargetID]
			if !ok {
				errs = append(errs, fmt.Sprintf(
					"operation %s depends on unknown operation %s", op.ID, dep.TargetID))
				continue
			}
			if target.Op == engine.OperationDelete {
				errs = append(errs, fmt.Sprintf(
					"operation %s depends on delete operation %s", op.ID, dep.TargetID))
			}
		}
	}
	return errs
}

// reorder implements step 5: partition by type (create, update, delete, in
// that order), topologically sort each partition, and concatenate. Cycle
// detection happens inside topoSortPartition; the first partition found to
// contain a cycle fails the whole reorder.
func reorder(ops []engine.Operation) ([]engine.Operation, error) {
	creates := filterByType(ops, engine.OperationCreate)
	updates := filterByType(ops, engine.OperationUpdate)
	deletes := filterByType(ops, engine.OperationDelete)

	orderedCreates, err := topoSortPartition(creates)
	if err != nil {
		return nil, fmt.Errorf("ordering creates: %w", err)
	}
	orderedUpdates, err := topoSortPartition(updates)
	if err != nil {
		return nil, fmt.Errorf("ordering updates: %w", err)
	}
	orderedDeletes, err := topoSortPartition(deletes)
	if err != nil {
		return nil, fmt.Errorf("ordering deletes: %w", err)
	}

	out := make([]engine.Operation, 0, len(ops))
	out = append(out, orderedCreates...)
	out = append(out, orderedUpdates...)
	out = append(out, orderedDeletes...)
	return out, nil
}

func filterByType(ops []engine.Operation, t engine.OperationType) []engine.Operation {
	out := make([]engine.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Op == t {
			out = append(out, op)
		}
	}
	return out
}

// topoSortPartition orders a same-type partition via DFS, honoring
// dependencies that target other operations within the same partition.
// Cross-partition dependencies (e.g. an update referencing a create) are
// already satisfied by the create/update/delete ordering and are skipped
// here; only intra-partition edges can reorder two operations of the same
// type relative to each other.
func topoSortPartition(ops []engine.Operation) ([]engine.Operation, error) {
	if len(ops) == 0 {
		return ops, nil
	}

	inPartition := make(map[string]bool, len(ops))
	for _, op := range ops {
		inPartition[op.ID] = true
	}

	byID := make(map[string]*engine.Operation, len(ops))
	index := make(map[string]int, len(ops))
	for i := range ops {
		byID[ops[i].ID] = &ops[i]
		index[ops[i].ID] = i
	}

	visited := make(map[string]bool, len(ops))
	inStack := make(map[string]bool, len(ops))
	var out []engine.Operation

	var visit func(id string) error
	visit = func(id string) error {
		if visited[id] {
			return nil
		}
		if inStack[id] {
			// A cycle confined to a same-type partition. The spec leaves the
			// choice of behavior to the implementer (see design notes); this
			// planner fails validation rather than silently dropping the
			// cyclic operations, since an unordered create can otherwise be
			// applied before the record it depends on exists.
			return engine.NewValidationError(
				fmt.Sprintf("dependency cycle detected at operation %s", id), nil).
				WithCode(engine.ErrCodeCycle)
		}
		inStack[id] = true
		op := byID[id]
		for _, dep := range op.Dependencies {
			if inPartition[dep.TargetID] {
				if err := visit(dep.TargetID); err != nil {
					return err
				}
			}
		}
		inStack[id] = false
		visited[id] = true
		out = append(out, *op)
		return nil
	}

	// Visit in original order so independent operations keep their relative
	// diff-set order (stable sort semantics), and only dependency edges
	// cause reordering.
	for _, op := range ops {
		if err := visit(op.ID); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func tallyByModel(ops []engine.Operation) map[string]int {
	tally := make(map[string]int)
	for _, op := range ops {
		tally[string(op.Model)]++
	}
	return tally
}

func failPlan(plan *engine.ExecutionPlan, message string) *engine.ExecutionPlan {
	return failPlanMulti(plan, []string{message})
}

func failPlanMulti(plan *engine.ExecutionPlan, messages []string) *engine.ExecutionPlan {
	if plan.Metadata == nil {
		plan.Metadata = make(map[string]interface{})
	}
	plan.Metadata["errors"] = messages
	plan.Metadata["has_errors"] = true
	return plan
}
