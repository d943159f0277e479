package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/odoodrift/odoodrift/pkg/engine"
	"github.com/odoodrift/odoodrift/pkg/history"
)

// loadDesiredState reads a desired-state document: a JSON array of
// engine.DesiredRecord, the shape plan/drift/dev all consume.
func loadDesiredState(path string) ([]engine.DesiredRecord, error) {
	if path == "" {
		return nil, fmt.Errorf("a desired-state document is required (--config)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read desired-state document %s: %w", path, err)
	}
	var records []engine.DesiredRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse desired-state document %s: %w", path, err)
	}
	return records, nil
}

// resolvedRefs builds the ref -> known record id map DiffAll needs, by
// looking up every ref the desired-state document mentions in the history
// store's ref_bindings table.
func resolvedRefs(ctx context.Context, store *history.Store, desired []engine.DesiredRecord) (map[string]*engine.RecordId, error) {
	resolved := make(map[string]*engine.RecordId, len(desired))
	for _, d := range desired {
		id, err := store.ResolveRef(ctx, d.Model, d.Ref)
		if err != nil {
			return nil, fmt.Errorf("resolve ref %s: %w", d.Ref, err)
		}
		resolved[d.Ref] = id
	}
	return resolved, nil
}
