package comparator

import (
	"context"
	"fmt"
	"sort"

	"github.com/odoodrift/odoodrift/pkg/engine"
	"github.com/odoodrift/odoodrift/pkg/property"
)

// Introspector resolves model field schemas so the comparator can tell a
// relational field from a scalar one, and a property bag from either.
type Introspector interface {
	Describe(ctx context.Context, model engine.ModelId) (*engine.ModelMetadata, error)
}

// CustomComparator overrides the default type-dispatch comparison for one
// field, returning whether it changed and the "before" value to record.
type CustomComparator func(actual, desired engine.FieldValue) (changed bool, before engine.FieldValue)

// Options controls which fields Diff/DiffAll consider and how.
type Options struct {
	// IgnoreFields lists field names that are never reported as changed,
	// regardless of schema (e.g. write_date, a noisy audit field).
	IgnoreFields []string

	// SkipReadOnly omits fields the schema marks readonly; odoodrift cannot
	// write them back regardless of drift.
	SkipReadOnly bool

	// SkipComputed omits fields the schema marks computed, for the same
	// reason.
	SkipComputed bool

	// CustomComparators overrides the default comparison for specific
	// fields, keyed by field name.
	CustomComparators map[string]CustomComparator
}

// DefaultOptions returns the comparator's default behavior: readonly and
// computed fields are skipped, since odoodrift can never reconcile them by
// writing a value back.
func DefaultOptions() Options {
	return Options{SkipReadOnly: true, SkipComputed: true}
}

func (o Options) skip(name string, schema engine.FieldSchema) bool {
	for _, ignored := range o.IgnoreFields {
		if ignored == name {
			return true
		}
	}
	if o.SkipReadOnly && schema.ReadOnly {
		return true
	}
	if o.SkipComputed && schema.Compute {
		return true
	}
	return false
}

// Comparator compares desired records against a caller-supplied snapshot of
// actual server state. It performs no I/O: fetching that snapshot (typically
// via RPCClient.Read) is the caller's responsibility.
type Comparator struct {
	intro Introspector
	opts  Options
}

// New creates a Comparator that resolves field schemas through intro and
// applies opts to every comparison.
func New(intro Introspector, opts Options) *Comparator {
	return &Comparator{intro: intro, opts: opts}
}

// Diff compares one desired record against actual, the caller-fetched
// current field values for actualID (nil if the record does not exist yet,
// in which case actual is ignored).
func (c *Comparator) Diff(ctx context.Context, desired engine.DesiredRecord, actualID *engine.RecordId, actual map[string]engine.FieldValue, resolved map[string]*engine.RecordId) (*engine.ModelDiff, error) {
	meta, err := c.intro.Describe(ctx, desired.Model)
	if err != nil {
		return nil, err
	}

	diff := &engine.ModelDiff{
		Ref:      desired.Ref,
		Model:    desired.Model,
		RecordID: actualID,
	}

	if actualID == nil {
		diff.Operation = engine.OperationCreate
		for name, value := range desired.Fields {
			if c.opts.skip(name, meta.Fields[name]) {
				continue
			}
			resolvedValue, dep := resolveValue(value, resolved)
			if dep != "" {
				diff.DependsOn = append(diff.DependsOn, dep)
			}
			diff.Changes = append(diff.Changes, engine.FieldChange{
				Field: name, After: resolvedValue, Action: engine.ChangeActionAdd,
			})
		}
		sort.Strings(diff.DependsOn)
		return diff, nil
	}

	for name, desiredValue := range desired.Fields {
		schema := meta.Fields[name]
		if c.opts.skip(name, schema) {
			continue
		}
		actualValue := actual[name]

		resolvedValue, dep := resolveValue(desiredValue, resolved)
		if dep != "" {
			diff.DependsOn = append(diff.DependsOn, dep)
		}

		var changed bool
		var before engine.FieldValue
		if custom, ok := c.opts.CustomComparators[name]; ok {
			changed, before = custom(actualValue, resolvedValue)
		} else {
			changed, before = fieldChanged(schema, actualValue, resolvedValue)
		}
		if !changed {
			continue
		}
		diff.Changes = append(diff.Changes, engine.FieldChange{
			Field: name, Before: before, After: resolvedValue, Action: engine.ChangeActionModify,
		})
	}

	sort.Strings(diff.DependsOn)
	if len(diff.Changes) == 0 {
		diff.Operation = engine.OperationNoop
	} else {
		diff.Operation = engine.OperationUpdate
	}

	return diff, nil
}

// DiffAll compares every desired record against actual, keyed by Ref, for
// records known to exist (resolved[d.Ref] non-nil).
func (c *Comparator) DiffAll(ctx context.Context, desired []engine.DesiredRecord, actual map[string]map[string]engine.FieldValue, resolved map[string]*engine.RecordId) ([]engine.ModelDiff, error) {
	diffs := make([]engine.ModelDiff, 0, len(desired))
	for _, d := range desired {
		diff, err := c.Diff(ctx, d, resolved[d.Ref], actual[d.Ref], resolved)
		if err != nil {
			return nil, fmt.Errorf("diff %s: %w", d, err)
		}
		diffs = append(diffs, *diff)
	}
	return diffs, nil
}

// resolveValue translates a "$ref" placeholder in a desired field value into
// the record id resolved is aware of. If the referenced record has no known
// id yet (it will be created within the same plan), the original "$ref"
// string is returned unchanged and dep names the Ref this field depends on,
// so the planner can order operations accordingly.
func resolveValue(value engine.FieldValue, resolved map[string]*engine.RecordId) (engine.FieldValue, string) {
	switch v := value.(type) {
	case string:
		ref, ok := stripRefPrefix(v)
		if !ok {
			return value, ""
		}
		if id, known := resolved[ref]; known && id != nil {
			return int64(*id), ""
		}
		return value, ref
	case []interface{}:
		out := make([]interface{}, len(v))
		var dep string
		for i, item := range v {
			resolvedItem, d := resolveValue(item, resolved)
			out[i] = resolvedItem
			if d != "" {
				dep = d
			}
		}
		return out, dep
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

// fieldChanged compares an actual value against a resolved desired value
// using the comparison semantics appropriate to the field's schema type.
// It returns whether the field changed and the "before" value to record.
func fieldChanged(schema engine.FieldSchema, actual, desired engine.FieldValue) (bool, engine.FieldValue) {
	switch schema.Type {
	case "properties":
		desiredMap, ok := desired.(map[string]engine.FieldValue)
		if !ok {
			return false, actual
		}
		changed := property.Diff(actual, desiredMap)
		return len(changed) > 0, property.ToMap(actual)
	case "many2one":
		actualID := extractMany2OneID(actual)
		desiredID, ok := toInt64Value(desired)
		if !ok {
			// Still pending resolution (references a not-yet-created record);
			// report as changed so the operation is not skipped as a noop.
			return true, actualID
		}
		return actualID != desiredID, actualID
	case "one2many", "many2many":
		actualIDs := toIDSet(actual)
		desiredIDs, pending := toIDSetResolved(desired)
		if pending {
			return true, actualIDs
		}
		return !sameSet(actualIDs, desiredIDs), actualIDs
	default:
		return !scalarEqual(actual, desired), actual
	}
}

func extractMany2OneID(v engine.FieldValue) engine.FieldValue {
	if tuple, ok := v.([]interface{}); ok && len(tuple) > 0 {
		if id, ok := toInt64Value(tuple[0]); ok {
			return id
		}
	}
	return v
}

func toInt64Value(v engine.FieldValue) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func toIDSet(v engine.FieldValue) map[int64]bool {
	out := make(map[int64]bool)
	items, _ := v.([]interface{})
	for _, item := range items {
		if id, ok := toInt64Value(item); ok {
			out[id] = true
		}
	}
	return out
}

// toIDSetResolved builds the desired target id set, reporting pending=true
// if any element is still an unresolved "$ref".
func toIDSetResolved(v engine.FieldValue) (map[int64]bool, bool) {
	out := make(map[int64]bool)
	items, _ := v.([]interface{})
	for _, item := range items {
		if id, ok := toInt64Value(item); ok {
			out[id] = true
			continue
		}
		if s, ok := item.(string); ok {
			if _, isRef := stripRefPrefix(s); isRef {
				return out, true
			}
		}
	}
	return out, false
}

func sameSet(a, b map[int64]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

func scalarEqual(a, b engine.FieldValue) bool {
	if a == nil && b == nil {
		return true
	}
	// Odoo represents an unset scalar as `false` over JSON-RPC; treat that
	// the same as a nil, false or empty-string desired field.
	if isFalsey(a) && isFalsey(b) {
		return true
	}
	return a == b
}

func isFalsey(v engine.FieldValue) bool {
	if v == nil {
		return true
	}
	if b, ok := v.(bool); ok {
		return !b
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}
