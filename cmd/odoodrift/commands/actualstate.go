package commands

import (
	"context"
	"fmt"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

// fetchActualState reads the live field values for every desired record that
// already has a resolved id, keyed by Ref, so the comparator can diff
// against them without performing any I/O of its own.
func fetchActualState(ctx context.Context, client engine.RPCClient, desired []engine.DesiredRecord, resolved map[string]*engine.RecordId) (map[string]map[string]engine.FieldValue, error) {
	actual := make(map[string]map[string]engine.FieldValue, len(desired))

	byModel := make(map[engine.ModelId][]engine.DesiredRecord)
	for _, d := range desired {
		if id := resolved[d.Ref]; id != nil {
			byModel[d.Model] = append(byModel[d.Model], d)
		}
	}

	for model, records := range byModel {
		ids := make([]engine.RecordId, 0, len(records))
		fieldSet := make(map[string]struct{})
		for _, d := range records {
			ids = append(ids, *resolved[d.Ref])
			for field := range d.Fields {
				fieldSet[field] = struct{}{}
			}
		}
		fields := make([]string, 0, len(fieldSet))
		for field := range fieldSet {
			fields = append(fields, field)
		}

		rows, err := client.Read(ctx, model, ids, fields)
		if err != nil {
			return nil, fmt.Errorf("read actual state for %s: %w", model, err)
		}

		byID := make(map[int64]map[string]engine.FieldValue, len(rows))
		for _, row := range rows {
			id, ok := toRecordID(row["id"])
			if !ok {
				continue
			}
			byID[id] = row
		}

		for _, d := range records {
			if row, ok := byID[int64(*resolved[d.Ref])]; ok {
				actual[d.Ref] = row
			}
		}
	}

	return actual, nil
}

func toRecordID(v engine.FieldValue) (int64, bool) {
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
