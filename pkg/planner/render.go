package planner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

// maxRenderedElements is how many array elements RenderText prints before
// collapsing the rest into a "[...N total]" summary.
const maxRenderedElements = 10

// RenderOptions controls RenderText's output.
type RenderOptions struct {
	// Color enables ANSI coloring of the +/~/- markers and the summary line.
	Color bool
}

const (
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorReset  = "\033[0m"
)

// RenderText renders plan as a Terraform-like text report: a header per
// operation, an indented diff line per field, and a trailing summary line.
// The format is stable for machine consumers: "<model>[<id>]:" headers,
// "~|+|- path = ..." body lines, "Plan: <c> to add, <u> to change, <d> to
// destroy" summary.
func RenderText(plan *engine.ExecutionPlan, opts RenderOptions) string {
	if plan == nil || len(plan.Operations) == 0 {
		return "No changes. Your desired state matches the server's actual state.\n"
	}

	var sb strings.Builder
	if errs, ok := plan.Metadata["errors"].([]string); ok && len(errs) > 0 {
		sb.WriteString("Plan has errors:\n")
		for _, e := range errs {
			sb.WriteString(fmt.Sprintf("  - %s\n", e))
		}
		sb.WriteString("\n")
	}

	for _, op := range plan.Operations {
		sb.WriteString(renderOperation(op, opts))
		sb.WriteString("\n")
	}

	sb.WriteString(renderSummary(plan.Summary, opts))
	return sb.String()
}

func renderOperation(op engine.Operation, opts RenderOptions) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s[%s]:\n", op.Model, op.ID))

	fields := sortedFieldNames(op.Diff)
	for _, f := range fields {
		sb.WriteString(renderFieldLine(f, op, opts))
	}
	if op.Op == engine.OperationDelete {
		sb.WriteString(colorize(opts, colorRed, fmt.Sprintf("  - %s\n", op.ID)))
	}

	return sb.String()
}

func sortedFieldNames(diff *engine.ModelDiff) []string {
	if diff == nil {
		return nil
	}
	names := make([]string, 0, len(diff.Changes))
	for _, c := range diff.Changes {
		names = append(names, c.Field)
	}
	return names
}

func renderFieldLine(field string, op engine.Operation, opts RenderOptions) string {
	var change *engine.FieldChange
	if op.Diff != nil {
		for i := range op.Diff.Changes {
			if op.Diff.Changes[i].Field == field {
				change = &op.Diff.Changes[i]
				break
			}
		}
	}
	if change == nil {
		return ""
	}

	switch op.Op {
	case engine.OperationCreate:
		return colorize(opts, colorGreen, fmt.Sprintf("  + %s = %s\n", field, renderValue(change.After)))
	case engine.OperationDelete:
		return ""
	default:
		return colorize(opts, colorYellow, fmt.Sprintf("  ~ %s = %s -> %s\n",
			field, renderValue(change.Before), renderValue(change.After)))
	}
}

func renderValue(v engine.FieldValue) string {
	switch val := v.(type) {
	case nil:
		return "(null)"
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int, int64, float64:
		return fmt.Sprintf("%v", val)
	case []interface{}:
		return renderArray(val)
	case map[string]interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func renderArray(items []interface{}) string {
	if len(items) == 0 {
		return "[]"
	}
	shown := items
	truncated := false
	if len(items) > maxRenderedElements {
		shown = items[:maxRenderedElements]
		truncated = true
	}
	parts := make([]string, 0, len(shown))
	for _, item := range shown {
		parts = append(parts, renderValue(item))
	}
	rendered := "[" + strings.Join(parts, ", ") + "]"
	if truncated {
		rendered = fmt.Sprintf("[%s, ...%d total]", strings.Join(parts, ", "), len(items))
	}
	return rendered
}

func renderSummary(s engine.PlanSummary, opts RenderOptions) string {
	if s.ToCreate == 0 && s.ToUpdate == 0 && s.ToDelete == 0 {
		return "No changes. Your desired state matches the server's actual state.\n"
	}
	line := fmt.Sprintf("Plan: %d to add, %d to change, %d to destroy", s.ToCreate, s.ToUpdate, s.ToDelete)
	return colorize(opts, colorGreen, line) + "\n"
}

func colorize(opts RenderOptions, code, s string) string {
	if !opts.Color {
		return s
	}
	return code + s + colorReset
}
