package applier

import (
	"context"
	"testing"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

// fakeClient records every Create/Write/Unlink call it receives and returns
// scripted results or errors keyed by (model, method).
type fakeClient struct {
	calls  []fakeCall
	nextID int64
	failOn map[string]error // key: model+"."+method
}

type fakeCall struct {
	model  engine.ModelId
	method string
	args   []interface{}
	kwargs map[string]interface{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{nextID: 100, failOn: map[string]error{}}
}

func fakeKwargs(callCtx map[string]interface{}) map[string]interface{} {
	kwargs := map[string]interface{}{}
	if len(callCtx) > 0 {
		kwargs["context"] = callCtx
	}
	return kwargs
}

func (f *fakeClient) Create(_ context.Context, model engine.ModelId, fields map[string]interface{}, callCtx map[string]interface{}) (engine.RecordId, error) {
	f.calls = append(f.calls, fakeCall{model: model, method: "create", args: []interface{}{fields}, kwargs: fakeKwargs(callCtx)})
	if err, ok := f.failOn[string(model)+".create"]; ok {
		return 0, err
	}
	f.nextID++
	return engine.RecordId(f.nextID), nil
}

func (f *fakeClient) Write(_ context.Context, model engine.ModelId, ids []engine.RecordId, fields map[string]interface{}, callCtx map[string]interface{}) error {
	f.calls = append(f.calls, fakeCall{model: model, method: "write", args: []interface{}{ids, fields}, kwargs: fakeKwargs(callCtx)})
	if err, ok := f.failOn[string(model)+".write"]; ok {
		return err
	}
	return nil
}

func (f *fakeClient) Unlink(_ context.Context, model engine.ModelId, ids []engine.RecordId, callCtx map[string]interface{}) error {
	f.calls = append(f.calls, fakeCall{model: model, method: "unlink", args: []interface{}{ids}, kwargs: fakeKwargs(callCtx)})
	if err, ok := f.failOn[string(model)+".unlink"]; ok {
		return err
	}
	return nil
}

func mkOp(id string, op engine.OperationType, model engine.ModelId, tempID string, fields ...string) engine.Operation {
	o := engine.Operation{ID: id, Op: op, Model: model}
	if len(fields)%2 != 0 {
		panic("mkOp: fields must be key/value pairs")
	}
	if len(fields) > 0 {
		o.Fields = make(map[string]engine.FieldValue, len(fields)/2)
		for i := 0; i < len(fields); i += 2 {
			o.Fields[fields[i]] = fields[i+1]
		}
	}
	return o
}

func TestApply_EmptyPlan_Idempotent(t *testing.T) {
	client := newFakeClient()
	a := New(client)
	plan := &engine.ExecutionPlan{ID: "p1"}

	result, err := a.Apply(context.Background(), plan, engine.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Status != engine.ApplyStatusSucceeded {
		t.Fatalf("expected Succeeded status for an empty plan, got %s", result.Status)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no RPC calls for an empty plan, got %d", len(client.calls))
	}
}

func TestApply_CreateThenReference(t *testing.T) {
	client := newFakeClient()
	a := New(client)

	create := mkOp("res.partner.title:temp_t1", engine.OperationCreate, "res.partner.title", "", "name", "Dr.")
	create.TempID = "t1"

	ref := mkOp("res.partner:temp_p1", engine.OperationCreate, "res.partner", "", "name", "X", "title", "$t1")
	ref.TempID = "p1"
	ref.Dependencies = []engine.Dependency{{TargetID: create.ID}}

	plan := &engine.ExecutionPlan{
		ID:         "p2",
		Operations: []engine.Operation{create, ref},
	}

	result, err := a.Apply(context.Background(), plan, engine.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Summary.Failed != 0 {
		t.Fatalf("expected no failures, got %+v; results=%+v", result.Summary, result.Results)
	}
	if len(client.calls) != 2 {
		t.Fatalf("expected 2 RPC calls, got %d", len(client.calls))
	}

	secondCall := client.calls[1]
	fields, ok := secondCall.args[0].(map[string]engine.FieldValue)
	if !ok {
		t.Fatalf("expected the second create's first arg to be the fields map, got %T", secondCall.args[0])
	}
	if _, stillAString := fields["title"].(string); stillAString {
		t.Fatalf("expected title to be rewritten to an integer id, still a string: %v", fields["title"])
	}
	if fields["title"] != int64(101) {
		t.Fatalf("expected title to resolve to the first create's assigned id 101, got %v", fields["title"])
	}
}

func TestApply_UnresolvedReference_Fails(t *testing.T) {
	client := newFakeClient()
	a := New(client)

	ref := mkOp("res.partner:temp_p1", engine.OperationCreate, "res.partner", "", "name", "X", "title", "$ghost")
	ref.TempID = "p1"

	plan := &engine.ExecutionPlan{ID: "p3", Operations: []engine.Operation{ref}}

	result, err := a.Apply(context.Background(), plan, engine.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Summary.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", result.Summary)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no RPC call to be issued for an unresolved reference, got %d", len(client.calls))
	}
}

func TestApply_DryRun_NoRPCCalls(t *testing.T) {
	client := newFakeClient()
	a := New(client)

	create := mkOp("res.partner:temp_p1", engine.OperationCreate, "res.partner", "", "name", "X")
	create.TempID = "p1"
	rid := engine.RecordId(5)
	update := mkOp("res.partner:5", engine.OperationUpdate, "res.partner", "", "name", "Y")
	update.RecordID = &rid

	plan := &engine.ExecutionPlan{ID: "p4", Operations: []engine.Operation{create, update}}

	result, err := a.Apply(context.Background(), plan, engine.ApplyOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no RPC calls in dry-run mode, got %d", len(client.calls))
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 operation results even in dry-run, got %d", len(result.Results))
	}
	for _, r := range result.Results {
		if r.Status != engine.PlanStatusSucceeded {
			t.Fatalf("expected dry-run operations to succeed, got %+v", r)
		}
		if r.RecordID == nil {
			t.Fatal("expected a synthetic record id even in dry-run")
		}
	}
	if *result.Results[0].RecordID >= 0 {
		t.Fatalf("expected a negative synthetic id for the dry-run create, got %d", *result.Results[0].RecordID)
	}
}

func TestApply_PartialFailure_StopsByDefault(t *testing.T) {
	client := newFakeClient()
	client.failOn["res.partner.write"] = engine.NewRpcError("boom", nil)
	a := New(client)

	create := mkOp("res.partner:temp_c1", engine.OperationCreate, "res.partner", "", "name", "X")
	create.TempID = "c1"
	rid := engine.RecordId(9)
	update := mkOp("res.partner:9", engine.OperationUpdate, "res.partner", "", "name", "Y")
	update.RecordID = &rid
	rid2 := engine.RecordId(10)
	del := mkOp("res.partner:10", engine.OperationDelete, "res.partner", "")
	del.RecordID = &rid2

	plan := &engine.ExecutionPlan{ID: "p5", Operations: []engine.Operation{create, update, del}}

	result, err := a.Apply(context.Background(), plan, engine.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Summary.Succeeded != 1 || result.Summary.Failed != 1 || result.Summary.Skipped != 1 {
		t.Fatalf("expected 1 succeeded, 1 failed, 1 skipped by default, got %+v", result.Summary)
	}
	if result.Results[2].Status != engine.PlanStatusSkipped {
		t.Fatalf("expected the delete to be skipped after the update failed, got %s", result.Results[2].Status)
	}
}

func TestApply_PartialFailure_ContinueOnError(t *testing.T) {
	client := newFakeClient()
	client.failOn["res.partner.write"] = engine.NewRpcError("boom", nil)
	a := New(client)

	create := mkOp("res.partner:temp_c1", engine.OperationCreate, "res.partner", "", "name", "X")
	create.TempID = "c1"
	rid := engine.RecordId(9)
	update := mkOp("res.partner:9", engine.OperationUpdate, "res.partner", "", "name", "Y")
	update.RecordID = &rid
	rid2 := engine.RecordId(10)
	del := mkOp("res.partner:10", engine.OperationDelete, "res.partner", "")
	del.RecordID = &rid2

	plan := &engine.ExecutionPlan{ID: "p6", Operations: []engine.Operation{create, update, del}}

	result, err := a.Apply(context.Background(), plan, engine.ApplyOptions{ContinueOnError: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Summary.Succeeded != 2 || result.Summary.Failed != 1 || result.Summary.Skipped != 0 {
		t.Fatalf("expected 2 succeeded, 1 failed, 0 skipped with ContinueOnError, got %+v", result.Summary)
	}
}

func TestApply_CapExceeded(t *testing.T) {
	client := newFakeClient()
	a := New(client)

	ops := make([]engine.Operation, 0, 3)
	for i := 0; i < 3; i++ {
		ops = append(ops, mkOp("res.partner:temp_x", engine.OperationCreate, "res.partner", "", "name", "X"))
	}
	plan := &engine.ExecutionPlan{ID: "p7", Operations: ops}

	result, err := a.Apply(context.Background(), plan, engine.ApplyOptions{MaxOperations: 2})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Status != engine.ApplyStatusFailed {
		t.Fatalf("expected Failed status when the plan exceeds MaxOperations, got %s", result.Status)
	}
	if result.Summary.Failed != 3 {
		t.Fatalf("expected all 3 operations reported failed, got %+v", result.Summary)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no RPC calls when the cap is exceeded, got %d", len(client.calls))
	}
}

func TestApply_PreflightRejectsBadIDShape(t *testing.T) {
	client := newFakeClient()
	a := New(client)

	// A create operation whose id is not a temp identifier should be rejected
	// before any RPC call is made.
	bad := mkOp("res.partner:7", engine.OperationCreate, "res.partner", "", "name", "X")

	plan := &engine.ExecutionPlan{ID: "p8", Operations: []engine.Operation{bad}}

	result, err := a.Apply(context.Background(), plan, engine.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Status != engine.ApplyStatusFailed {
		t.Fatalf("expected Failed status for a bad id shape, got %s", result.Status)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no RPC calls when pre-flight rejects the plan, got %d", len(client.calls))
	}
}

func TestApply_SkipValidate_BypassesPreflight(t *testing.T) {
	client := newFakeClient()
	a := New(client)

	// Same malformed id as above, but with SkipValidate the applier proceeds
	// straight to dispatch: the create is issued as-is (create dispatch does
	// not parse the id) and yields a per-operation result instead of the
	// up-front pre-flight failure.
	bad := mkOp("res.partner:7", engine.OperationCreate, "res.partner", "", "name", "X")

	plan := &engine.ExecutionPlan{ID: "p9", Operations: []engine.Operation{bad}}

	result, err := a.Apply(context.Background(), plan, engine.ApplyOptions{SkipValidate: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Status == engine.ApplyStatusFailed && len(result.Results) == 0 {
		t.Fatal("expected SkipValidate to let the plan reach per-operation dispatch, not the up-front pre-flight failure")
	}
}

func TestApply_Delete_UsesUnlink(t *testing.T) {
	client := newFakeClient()
	a := New(client)

	rid := engine.RecordId(42)
	del := mkOp("res.partner:42", engine.OperationDelete, "res.partner", "")
	del.RecordID = &rid

	plan := &engine.ExecutionPlan{ID: "p10", Operations: []engine.Operation{del}}

	result, err := a.Apply(context.Background(), plan, engine.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Summary.Succeeded != 1 {
		t.Fatalf("expected the delete to succeed, got %+v; results=%+v", result.Summary, result.Results)
	}
	if len(client.calls) != 1 || client.calls[0].method != "unlink" {
		t.Fatalf("expected a single unlink call, got %+v", client.calls)
	}
}

func TestApply_OperationContextMergesOverBase(t *testing.T) {
	client := newFakeClient()
	a := New(client)

	create := mkOp("res.partner:temp_c1", engine.OperationCreate, "res.partner", "", "name", "X")
	create.TempID = "c1"
	create.Context = map[string]interface{}{"lang": "fr_FR"}

	plan := &engine.ExecutionPlan{ID: "p11", Operations: []engine.Operation{create}}

	opts := engine.ApplyOptions{Context: map[string]interface{}{"lang": "en_US", "tz": "UTC"}}
	result, err := a.Apply(context.Background(), plan, opts)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Summary.Failed != 0 {
		t.Fatalf("expected success, got %+v", result.Summary)
	}

	kwargs := client.calls[0].kwargs
	ctx, ok := kwargs["context"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a context kwarg, got %+v", kwargs)
	}
	if ctx["lang"] != "fr_FR" {
		t.Fatalf("expected the operation's own context to win over the base, got %v", ctx["lang"])
	}
	if ctx["tz"] != "UTC" {
		t.Fatalf("expected the base context's tz to survive the merge, got %v", ctx["tz"])
	}
}

func TestApply_ProgressCallbacks(t *testing.T) {
	client := newFakeClient()
	a := New(client)

	c1 := mkOp("res.partner:temp_c1", engine.OperationCreate, "res.partner", "", "name", "X")
	c1.TempID = "c1"
	c2 := mkOp("res.partner:temp_c2", engine.OperationCreate, "res.partner", "", "name", "Y")
	c2.TempID = "c2"

	plan := &engine.ExecutionPlan{ID: "p12", Operations: []engine.Operation{c1, c2}}

	var progressCalls int
	var completeCalls int
	opts := engine.ApplyOptions{
		OnProgress: func(current, total int, operationID string) {
			progressCalls++
			if total != 2 {
				t.Fatalf("expected total=2, got %d", total)
			}
		},
		OnOperationComplete: func(op engine.Operation, res engine.OperationResult) {
			completeCalls++
		},
	}

	if _, err := a.Apply(context.Background(), plan, opts); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if progressCalls != 2 || completeCalls != 2 {
		t.Fatalf("expected both callbacks invoked once per operation, got progress=%d complete=%d", progressCalls, completeCalls)
	}
}
