package planner

import (
	"context"
	"testing"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

func recordID(id int64) *engine.RecordId {
	r := engine.RecordId(id)
	return &r
}

func TestBuildPlan_RoundTrip(t *testing.T) {
	diffs := []engine.ModelDiff{
		{
			Ref: "p1", Model: "res.partner", Operation: engine.OperationCreate,
			Changes: []engine.FieldChange{{Field: "name", After: "X", Action: engine.ChangeActionAdd}},
		},
		{
			Ref: "u1", Model: "res.partner", RecordID: recordID(1), Operation: engine.OperationUpdate,
			Changes: []engine.FieldChange{{Field: "name", Before: "A", After: "A2", Action: engine.ChangeActionModify}},
		},
		{
			Ref: "n1", Model: "res.partner", RecordID: recordID(2), Operation: engine.OperationNoop,
		},
	}

	p := New(Options{AutoReorder: true, ValidateDependencies: true})
	plan, err := p.BuildPlan(context.Background(), diffs)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d: %+v", len(plan.Operations), plan.Operations)
	}

	var sawCreate, sawUpdate bool
	for _, op := range plan.Operations {
		switch op.Op {
		case engine.OperationCreate:
			sawCreate = true
			if op.TempID == "" {
				t.Error("create operation should carry a TempID")
			}
		case engine.OperationUpdate:
			sawUpdate = true
			if op.RecordID == nil || *op.RecordID != 1 {
				t.Error("update operation should carry the actual record id")
			}
		}
	}
	if !sawCreate || !sawUpdate {
		t.Fatal("expected both a create and an update operation")
	}
	if plan.Summary.NoChange != 1 {
		t.Errorf("expected NoChange=1, got %d", plan.Summary.NoChange)
	}
}

func TestBuildPlan_CreateBeforeReference(t *testing.T) {
	diffs := []engine.ModelDiff{
		{
			Ref: "t1", Model: "res.partner.title", Operation: engine.OperationCreate,
			Changes: []engine.FieldChange{{Field: "name", After: "Y", Action: engine.ChangeActionAdd}},
		},
		{
			Ref: "p1", Model: "res.partner", Operation: engine.OperationCreate, DependsOn: []string{"t1"},
			Changes: []engine.FieldChange{
				{Field: "name", After: "X", Action: engine.ChangeActionAdd},
				{Field: "title", After: "$t1", Action: engine.ChangeActionAdd},
			},
		},
	}

	p := New(Options{})
	plan, err := p.BuildPlan(context.Background(), diffs)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(plan.Operations))
	}

	indexOf := func(ref string) int {
		for i, op := range plan.Operations {
			if op.Ref == ref {
				return i
			}
		}
		return -1
	}

	if indexOf("t1") > indexOf("p1") {
		t.Fatal("expected t1 (the referenced create) to precede p1")
	}

	var pOp *engine.Operation
	for i := range plan.Operations {
		if plan.Operations[i].Ref == "p1" {
			pOp = &plan.Operations[i]
		}
	}
	if pOp == nil || len(pOp.Dependencies) != 1 {
		t.Fatalf("expected p1 to carry one dependency, got %+v", pOp)
	}
}

func TestBuildPlan_OrderingInvariant(t *testing.T) {
	diffs := []engine.ModelDiff{
		{Ref: "d1", Model: "res.partner", RecordID: recordID(9), Operation: engine.OperationDelete},
		{
			Ref: "c1", Model: "res.partner", Operation: engine.OperationCreate,
			Changes: []engine.FieldChange{{Field: "name", After: "X"}},
		},
		{
			Ref: "u1", Model: "res.partner", RecordID: recordID(3), Operation: engine.OperationUpdate,
			Changes: []engine.FieldChange{{Field: "name", Before: "A", After: "B"}},
		},
	}

	p := New(Options{AutoReorder: true})
	plan, err := p.BuildPlan(context.Background(), diffs)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	var sawUpdate, sawDelete bool
	for _, op := range plan.Operations {
		switch op.Op {
		case engine.OperationCreate:
			if sawUpdate || sawDelete {
				t.Fatal("create must precede every update and delete")
			}
		case engine.OperationUpdate:
			if sawDelete {
				t.Fatal("update must precede every delete")
			}
			sawUpdate = true
		case engine.OperationDelete:
			sawDelete = true
		}
	}
}

func TestBuildPlan_CapExceeded(t *testing.T) {
	diffs := make([]engine.ModelDiff, 0, 11)
	for i := 0; i < 11; i++ {
		diffs = append(diffs, engine.ModelDiff{
			Ref: string(rune('a' + i)), Model: "res.partner", Operation: engine.OperationCreate,
			Changes: []engine.FieldChange{{Field: "name", After: "X"}},
		})
	}

	p := New(Options{MaxOperations: 10})
	plan, err := p.BuildPlan(context.Background(), diffs)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	errs, _ := plan.Metadata["errors"].([]string)
	if len(errs) == 0 {
		t.Fatal("expected a validation error for exceeding maxOperations")
	}
}

func TestBuildPlan_DependencyCycleRejected(t *testing.T) {
	diffs := []engine.ModelDiff{
		{
			Ref: "a", Model: "res.partner", Operation: engine.OperationCreate,
			Changes: []engine.FieldChange{{Field: "parent_id", After: "$b"}},
		},
		{
			Ref: "b", Model: "res.partner", Operation: engine.OperationCreate,
			Changes: []engine.FieldChange{{Field: "parent_id", After: "$a"}},
		},
	}

	p := New(Options{})
	plan, err := p.BuildPlan(context.Background(), diffs)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	errs, _ := plan.Metadata["errors"].([]string)
	if len(errs) == 0 {
		t.Fatal("expected a cycle to be reported as a plan error")
	}
}

func TestBuildPlan_UnmatchedRefAddsNoDependency(t *testing.T) {
	diffs := []engine.ModelDiff{
		{
			Ref: "a", Model: "res.partner", Operation: engine.OperationCreate,
			Changes: []engine.FieldChange{{Field: "parent_id", After: "$ghost"}},
		},
	}
	p := New(Options{})
	plan, err := p.BuildPlan(context.Background(), diffs)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	// "$ghost" does not name any operation's Ref, so no dependency edge is
	// created at all (it is left as an unresolved literal value); validation
	// only rejects dependencies that were actually recorded.
	if len(plan.Operations) != 1 || len(plan.Operations[0].Dependencies) != 0 {
		t.Fatalf("expected no dependency edge for an unmatched ref: %+v", plan.Operations)
	}
}
