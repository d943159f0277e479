package property

import (
	"reflect"
	"testing"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

func sampleBag() []interface{} {
	return []interface{}{
		map[string]interface{}{"name": "warranty_months", "type": "integer", "value": float64(12)},
		map[string]interface{}{"name": "is_refurbished", "type": "boolean", "value": false},
	}
}

func TestToMap(t *testing.T) {
	got := ToMap(sampleBag())
	want := map[string]engine.FieldValue{"warranty_months": float64(12), "is_refurbished": false}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToMap() = %+v, want %+v", got, want)
	}
}

func TestToMap_NonListInput(t *testing.T) {
	if got := ToMap(false); len(got) != 0 {
		t.Errorf("expected empty map for non-list input, got %+v", got)
	}
}

func TestMergeWrite_CarriesOverUntouchedProperties(t *testing.T) {
	desired := map[string]engine.FieldValue{"warranty_months": float64(24)}
	merged := MergeWrite(sampleBag(), desired)

	if merged["warranty_months"] != float64(24) {
		t.Errorf("expected warranty_months overridden to 24, got %v", merged["warranty_months"])
	}
	if merged["is_refurbished"] != false {
		t.Errorf("expected is_refurbished carried over, got %v", merged["is_refurbished"])
	}
}

func TestDiff_OnlyReportsRequestedChanges(t *testing.T) {
	desired := map[string]engine.FieldValue{
		"warranty_months": float64(24),
		"is_refurbished":  false, // unchanged
	}
	changed := Diff(sampleBag(), desired)

	if len(changed) != 1 {
		t.Fatalf("expected 1 changed property, got %d: %+v", len(changed), changed)
	}
	if changed["warranty_months"] != float64(24) {
		t.Errorf("expected warranty_months in diff, got %+v", changed)
	}
}

func TestDescriptors_PreservesTypeInfo(t *testing.T) {
	descs := Descriptors(sampleBag())
	if len(descs) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descs))
	}
	if descs[0].Name != "warranty_months" || descs[0].Type != "integer" {
		t.Errorf("unexpected descriptor: %+v", descs[0])
	}
}
