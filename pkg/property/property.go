// Package property handles Odoo's "properties" field type, whose read and
// write representations are asymmetric: fields_get/read returns a list of
// descriptor objects ({name, type, string, value, ...}), while write expects
// a plain {name: value} map and replaces the entire bag — any property
// omitted from the write payload is deleted. Callers must merge rather than
// overwrite when only some properties are changing.
package property

import "github.com/odoodrift/odoodrift/pkg/engine"

// Descriptor is one entry of a property bag as returned by a read() call.
type Descriptor struct {
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	String     string             `json:"string,omitempty"`
	Value      engine.FieldValue  `json:"value,omitempty"`
	Default    engine.FieldValue  `json:"default,omitempty"`
	Selection  [][2]string        `json:"selection,omitempty"`
	Comodel    string             `json:"comodel,omitempty"`
}

// ToMap flattens a read-shaped property bag (a list of Descriptors, each
// possibly decoded from interface{} since it travels over JSON-RPC) into the
// name->value map that comparisons and writes operate on.
func ToMap(raw engine.FieldValue) map[string]engine.FieldValue {
	out := make(map[string]engine.FieldValue)
	items, ok := raw.([]interface{})
	if !ok {
		return out
	}
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, ok := entry["name"].(string)
		if !ok || name == "" {
			continue
		}
		out[name] = entry["value"]
	}
	return out
}

// Descriptors flattens a read-shaped property bag into Descriptor values,
// preserving the full definition (type, selection, etc) alongside the value.
func Descriptors(raw engine.FieldValue) []Descriptor {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]Descriptor, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		d := Descriptor{Value: entry["value"]}
		if v, ok := entry["name"].(string); ok {
			d.Name = v
		}
		if v, ok := entry["type"].(string); ok {
			d.Type = v
		}
		if v, ok := entry["string"].(string); ok {
			d.String = v
		}
		d.Default = entry["default"]
		if v, ok := entry["comodel"].(string); ok {
			d.Comodel = v
		}
		if sel, ok := entry["selection"].([]interface{}); ok {
			for _, opt := range sel {
				pair, ok := opt.([]interface{})
				if !ok || len(pair) != 2 {
					continue
				}
				key, _ := pair[0].(string)
				label, _ := pair[1].(string)
				d.Selection = append(d.Selection, [2]string{key, label})
			}
		}
		out = append(out, d)
	}
	return out
}

// MergeWrite produces the full {name: value} write payload for a property
// field given the bag currently on the server (read shape) and the desired
// overrides. Properties present on the server but not named in desired are
// carried over unchanged, since a write replaces the whole bag; set a key's
// value to nil in desired to explicitly clear it while keeping the property
// defined.
func MergeWrite(actual engine.FieldValue, desired map[string]engine.FieldValue) map[string]engine.FieldValue {
	merged := ToMap(actual)
	if merged == nil {
		merged = make(map[string]engine.FieldValue)
	}
	for name, value := range desired {
		merged[name] = value
	}
	return merged
}

// Diff reports which named properties differ between the server's current
// bag and the desired overrides. Properties not mentioned in desired are
// never reported as changed, since MergeWrite carries them over unchanged.
func Diff(actual engine.FieldValue, desired map[string]engine.FieldValue) map[string]engine.FieldValue {
	current := ToMap(actual)
	changed := make(map[string]engine.FieldValue)
	for name, want := range desired {
		if !equalValue(current[name], want) {
			changed[name] = want
		}
	}
	return changed
}

func equalValue(a, b engine.FieldValue) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	// Values decoded from JSON-RPC are plain interface{} comparables
	// (string/float64/bool) or maps/slices for nested relational commands;
	// maps/slices are never expected inside a scalar property value, so a
	// direct == comparison covers the common property value kinds (char,
	// integer, float, boolean, selection). No numeric conversion is done:
	// int 12 and float64 12 compare unequal.
	switch av := a.(type) {
	case map[string]interface{}, []interface{}:
		_ = av
		return false
	default:
		return a == b
	}
}
