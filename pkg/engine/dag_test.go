package engine

import "testing"

func TestDAGBuilder_BuildGraph_EmptyOperations(t *testing.T) {
	builder := NewDAGBuilder()
	graph, err := builder.BuildGraph([]Operation{})
	if err != nil {
		t.Fatalf("expected no error for empty operations, got: %v", err)
	}
	if len(graph.Nodes) != 0 {
		t.Errorf("expected 0 nodes, got %d", len(graph.Nodes))
	}
	if graph.Depth != 0 {
		t.Errorf("expected depth 0, got %d", graph.Depth)
	}
}

func TestDAGBuilder_BuildGraph_SingleOperation(t *testing.T) {
	ops := []Operation{
		{ID: "op1", Ref: "company_acme", Model: "res.partner", Op: OperationCreate, Status: PlanStatusPending},
	}

	builder := NewDAGBuilder()
	graph, err := builder.BuildGraph(ops)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(graph.Nodes) != 1 {
		t.Errorf("expected 1 node, got %d", len(graph.Nodes))
	}
	if len(graph.Roots) != 1 {
		t.Errorf("expected 1 root, got %d", len(graph.Roots))
	}
	if graph.Depth != 1 {
		t.Errorf("expected depth 1, got %d", graph.Depth)
	}
	if node := graph.Nodes["op1"]; node.Level != 0 {
		t.Errorf("expected level 0, got %d", node.Level)
	}
}

func TestDAGBuilder_BuildGraph_LinearDependencies(t *testing.T) {
	ops := []Operation{
		{ID: "op1", Ref: "company_acme", Model: "res.partner", Op: OperationCreate},
		{
			ID: "op2", Ref: "contact_jane", Model: "res.partner", Op: OperationCreate,
			Dependencies: []Dependency{{TargetID: "op1", Reason: "parent_id"}},
		},
		{
			ID: "op3", Ref: "opportunity_1", Model: "crm.lead", Op: OperationCreate,
			Dependencies: []Dependency{{TargetID: "op2", Reason: "partner_id"}},
		},
	}

	builder := NewDAGBuilder()
	graph, err := builder.BuildGraph(ops)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if graph.Depth != 3 {
		t.Errorf("expected depth 3, got %d", graph.Depth)
	}

	tests := []struct {
		id    string
		level int
	}{
		{"op1", 0},
		{"op2", 1},
		{"op3", 2},
	}
	for _, tt := range tests {
		if got := graph.Nodes[tt.id].Level; got != tt.level {
			t.Errorf("%s: expected level %d, got %d", tt.id, tt.level, got)
		}
	}
}

func TestDAGBuilder_BuildGraph_DiamondDependencies(t *testing.T) {
	ops := []Operation{
		{ID: "company", Ref: "company_acme", Model: "res.partner", Op: OperationCreate},
		{ID: "contactA", Ref: "contact_a", Model: "res.partner", Op: OperationCreate,
			Dependencies: []Dependency{{TargetID: "company"}}},
		{ID: "contactB", Ref: "contact_b", Model: "res.partner", Op: OperationCreate,
			Dependencies: []Dependency{{TargetID: "company"}}},
		{ID: "lead", Ref: "lead_1", Model: "crm.lead", Op: OperationCreate,
			Dependencies: []Dependency{{TargetID: "contactA"}, {TargetID: "contactB"}}},
	}

	builder := NewDAGBuilder()
	graph, err := builder.BuildGraph(ops)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if graph.Depth != 3 {
		t.Errorf("expected depth 3, got %d", graph.Depth)
	}
	if graph.Nodes["contactA"].Level != 1 || graph.Nodes["contactB"].Level != 1 {
		t.Errorf("expected contactA and contactB at level 1")
	}
	if graph.Nodes["lead"].Level != 2 {
		t.Errorf("expected lead at level 2, got %d", graph.Nodes["lead"].Level)
	}
}

func TestDAGBuilder_BuildGraph_CycleDetected(t *testing.T) {
	ops := []Operation{
		{ID: "op1", Ref: "a", Model: "res.partner", Op: OperationUpdate,
			Dependencies: []Dependency{{TargetID: "op2"}}},
		{ID: "op2", Ref: "b", Model: "res.partner", Op: OperationUpdate,
			Dependencies: []Dependency{{TargetID: "op1"}}},
	}

	builder := NewDAGBuilder()
	_, err := builder.BuildGraph(ops)
	if err == nil {
		t.Fatal("expected cycle detection error, got nil")
	}
	if !IsValidationError(err) {
		t.Errorf("expected a ValidationError, got: %v", err)
	}
}

func TestDAGBuilder_BuildGraph_UnknownDependency(t *testing.T) {
	ops := []Operation{
		{ID: "op1", Ref: "a", Model: "res.partner", Op: OperationCreate,
			Dependencies: []Dependency{{TargetID: "missing"}}},
	}

	builder := NewDAGBuilder()
	_, err := builder.BuildGraph(ops)
	if err == nil {
		t.Fatal("expected validation error for unknown dependency target")
	}
}

func TestDAGBuilder_BuildGraph_DuplicateID(t *testing.T) {
	ops := []Operation{
		{ID: "op1", Ref: "a", Model: "res.partner", Op: OperationCreate},
		{ID: "op1", Ref: "b", Model: "res.partner", Op: OperationCreate},
	}

	builder := NewDAGBuilder()
	_, err := builder.BuildGraph(ops)
	if err == nil {
		t.Fatal("expected validation error for duplicate operation ID")
	}
}
