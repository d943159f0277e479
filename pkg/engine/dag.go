package engine

import (
	"fmt"
	"strings"
)

// DAGBuilder builds a directed acyclic graph from a plan's operations,
// detects cycles, and assigns topological execution levels.
type DAGBuilder struct {
	ops                  map[string]*Operation
	adjacencyList        map[string][]string
	reverseAdjacencyList map[string][]string
	inDegree             map[string]int
	levels               [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		ops:                  make(map[string]*Operation),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
		levels:               make([][]string, 0),
	}
}

// BuildGraph constructs an execution graph from a plan's operations. It
// validates dependency references, detects cycles, and computes the
// topological levels apply follows.
func (b *DAGBuilder) BuildGraph(ops []Operation) (*ExecutionGraph, error) {
	if len(ops) == 0 {
		return &ExecutionGraph{
			Nodes: make(map[string]*GraphNode),
			Edges: make([]GraphEdge, 0),
			Roots: make([]string, 0),
			Depth: 0,
		}, nil
	}

	if err := b.initialize(ops); err != nil {
		return nil, err
	}
	if err := b.detectCycles(); err != nil {
		return nil, err
	}
	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	return b.buildExecutionGraph(), nil
}

func (b *DAGBuilder) initialize(ops []Operation) error {
	for i := range ops {
		op := &ops[i]
		if op.ID == "" {
			return NewValidationError("operation has empty ID", nil).WithCode(ErrCodeValidation)
		}
		if _, exists := b.ops[op.ID]; exists {
			return NewValidationError(fmt.Sprintf("duplicate operation ID: %s", op.ID), nil).
				WithCode(ErrCodeValidation)
		}
		b.ops[op.ID] = op
		b.adjacencyList[op.ID] = make([]string, 0)
		b.reverseAdjacencyList[op.ID] = make([]string, 0)
		b.inDegree[op.ID] = 0
	}

	for _, op := range b.ops {
		for _, dep := range op.Dependencies {
			if _, exists := b.ops[dep.TargetID]; !exists {
				return NewValidationError(
					fmt.Sprintf("operation %s depends on non-existent operation %s", op.ID, dep.TargetID),
					nil,
				).WithCode(ErrCodeValidation).WithResource(op.ID)
			}
			b.adjacencyList[dep.TargetID] = append(b.adjacencyList[dep.TargetID], op.ID)
			b.reverseAdjacencyList[op.ID] = append(b.reverseAdjacencyList[op.ID], dep.TargetID)
			b.inDegree[op.ID]++
		}
	}

	return nil
}

// detectCycles uses depth-first search to detect circular dependencies.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	for id := range b.ops {
		if !visited[id] {
			if cycle, err := b.detectCyclesUtil(id, visited, recStack, path); err != nil {
				return NewValidationError(
					fmt.Sprintf("dependency cycle detected: %s", formatCycle(cycle)),
					err,
				).WithCode(ErrCodeCycle)
			}
		}
	}

	return nil
}

func (b *DAGBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) ([]string, error) {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle, err := b.detectCyclesUtil(dependent, visited, recStack, path); err != nil {
				return cycle, err
			}
		} else if recStack[dependent] {
			cycleStart := -1
			for i, id := range path {
				if id == dependent {
					cycleStart = i
					break
				}
			}
			if cycleStart >= 0 {
				return append(path[cycleStart:], dependent), fmt.Errorf("cycle detected")
			}
		}
	}

	recStack[nodeID] = false
	return nil, nil
}

// computeLevels assigns execution levels using Kahn's algorithm. Operations
// at the same level have no dependency relationship between them, but the
// applier still executes them one at a time, in the order they appear within
// the level.
func (b *DAGBuilder) computeLevels() error {
	inDegreeCopy := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegreeCopy[id] = degree
	}

	currentLevel := make([]string, 0)
	for id, degree := range inDegreeCopy {
		if degree == 0 {
			currentLevel = append(currentLevel, id)
		}
	}

	if len(currentLevel) == 0 && len(b.ops) > 0 {
		return NewValidationError("no root operations found - all operations have dependencies", nil).
			WithCode(ErrCodeCycle)
	}

	processedCount := 0
	for len(currentLevel) > 0 {
		b.levels = append(b.levels, currentLevel)
		processedCount += len(currentLevel)

		nextLevel := make([]string, 0)
		for _, nodeID := range currentLevel {
			for _, dependent := range b.adjacencyList[nodeID] {
				inDegreeCopy[dependent]--
				if inDegreeCopy[dependent] == 0 {
					nextLevel = append(nextLevel, dependent)
				}
			}
		}
		currentLevel = nextLevel
	}

	if processedCount != len(b.ops) {
		return NewValidationError("failed to order all operations - a cycle survived detection", nil).
			WithCode(ErrCodeInternal)
	}

	return nil
}

func (b *DAGBuilder) buildExecutionGraph() *ExecutionGraph {
	graph := &ExecutionGraph{
		Nodes: make(map[string]*GraphNode),
		Edges: make([]GraphEdge, 0),
		Roots: make([]string, 0),
		Depth: len(b.levels),
	}

	for level, ids := range b.levels {
		for _, id := range ids {
			op := b.ops[id]
			graph.Nodes[id] = &GraphNode{
				ID:           id,
				Level:        level,
				Dependencies: b.reverseAdjacencyList[id],
				Dependents:   b.adjacencyList[id],
			}
			op.ExecutionOrder = level
			if level == 0 {
				graph.Roots = append(graph.Roots, id)
			}
		}
	}

	for _, op := range b.ops {
		for _, dep := range op.Dependencies {
			graph.Edges = append(graph.Edges, GraphEdge{
				From:   dep.TargetID,
				To:     op.ID,
				Reason: dep.Reason,
			})
		}
	}

	return graph
}

// GetLevels returns the computed execution levels, each a slice of operation
// IDs with no dependency relationship to one another.
func (b *DAGBuilder) GetLevels() [][]string {
	return b.levels
}

// ToDOT generates a DOT format representation of the DAG for visualization
// with Graphviz.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ExecutionPlan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range b.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			op := b.ops[id]
			label := fmt.Sprintf("%s\\n%s %s", op.Ref, op.Op, op.Model)
			color := getOperationColor(op.Op)
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				id, label, color))
		}

		sb.WriteString("  }\n\n")
	}

	for _, op := range b.ops {
		for _, dep := range op.Dependencies {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", dep.TargetID, op.ID))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}

func getOperationColor(op OperationType) string {
	switch op {
	case OperationCreate:
		return "lightgreen"
	case OperationUpdate:
		return "lightblue"
	case OperationDelete:
		return "lightcoral"
	case OperationNoop:
		return "lightgray"
	default:
		return "white"
	}
}

// ValidateGraph performs additional consistency checks on a built graph.
func (b *DAGBuilder) ValidateGraph(graph *ExecutionGraph) error {
	if len(graph.Nodes) != len(b.ops) {
		return NewValidationError("graph node count mismatch", nil).WithCode(ErrCodeInternal)
	}

	for _, edge := range graph.Edges {
		if _, exists := graph.Nodes[edge.From]; !exists {
			return NewValidationError(fmt.Sprintf("edge references non-existent node: %s", edge.From), nil).
				WithCode(ErrCodeInternal)
		}
		if _, exists := graph.Nodes[edge.To]; !exists {
			return NewValidationError(fmt.Sprintf("edge references non-existent node: %s", edge.To), nil).
				WithCode(ErrCodeInternal)
		}
	}

	for _, rootID := range graph.Roots {
		if len(graph.Nodes[rootID].Dependencies) > 0 {
			return NewValidationError(fmt.Sprintf("root node %s has dependencies", rootID), nil).
				WithCode(ErrCodeInternal)
		}
	}

	return nil
}
