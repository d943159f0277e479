package commands

import (
	"encoding/json"
	"fmt"
	"os"
)

// printJSON writes v to stdout as indented JSON, the --json output format
// shared by every command that can render structured results.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}
