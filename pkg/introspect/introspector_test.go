package introspect

import (
	"context"
	"testing"
	"time"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

type mockFieldsGetter struct {
	calls  int
	fields map[string]engine.FieldSchema
}

func (m *mockFieldsGetter) FieldsGet(ctx context.Context, model engine.ModelId) (map[string]engine.FieldSchema, error) {
	m.calls++
	return m.fields, nil
}

func TestIntrospector_Describe_CachesInMemory(t *testing.T) {
	client := &mockFieldsGetter{fields: map[string]engine.FieldSchema{
		"name": {Name: "name", Type: "char"},
	}}
	intro := New(client, nil, time.Minute)

	for i := 0; i < 3; i++ {
		meta, err := intro.Describe(context.Background(), "res.partner")
		if err != nil {
			t.Fatalf("Describe: %v", err)
		}
		if meta.Fields["name"].Type != "char" {
			t.Errorf("unexpected field schema: %+v", meta.Fields["name"])
		}
	}

	if client.calls != 1 {
		t.Errorf("expected exactly 1 fields_get call, got %d", client.calls)
	}
}

func TestIntrospector_Describe_RefetchesAfterTTL(t *testing.T) {
	client := &mockFieldsGetter{fields: map[string]engine.FieldSchema{"name": {Type: "char"}}}
	intro := New(client, nil, time.Nanosecond)

	if _, err := intro.Describe(context.Background(), "res.partner"); err != nil {
		t.Fatalf("Describe: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := intro.Describe(context.Background(), "res.partner"); err != nil {
		t.Fatalf("Describe: %v", err)
	}

	if client.calls != 2 {
		t.Errorf("expected refetch after TTL expiry, got %d calls", client.calls)
	}
}

func TestIntrospector_Invalidate_ForcesRefetch(t *testing.T) {
	client := &mockFieldsGetter{fields: map[string]engine.FieldSchema{"name": {Type: "char"}}}
	intro := New(client, nil, time.Hour)

	if _, err := intro.Describe(context.Background(), "res.partner"); err != nil {
		t.Fatalf("Describe: %v", err)
	}
	intro.Invalidate("res.partner")
	if _, err := intro.Describe(context.Background(), "res.partner"); err != nil {
		t.Fatalf("Describe: %v", err)
	}

	if client.calls != 2 {
		t.Errorf("expected refetch after Invalidate, got %d calls", client.calls)
	}
}

func TestIntrospector_Lookup_BypassCacheSkipsCache(t *testing.T) {
	client := &mockFieldsGetter{fields: map[string]engine.FieldSchema{"name": {Type: "char"}}}
	intro := New(client, nil, time.Hour)

	if _, err := intro.Lookup(context.Background(), "res.partner", false); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := intro.Lookup(context.Background(), "res.partner", true); err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if client.calls != 2 {
		t.Errorf("expected bypassCache to force a refetch, got %d calls", client.calls)
	}
}

func TestIntrospector_Describe_MergesBaseSchema(t *testing.T) {
	client := &mockFieldsGetter{fields: map[string]engine.FieldSchema{"name": {Name: "name", Type: "char"}}}
	intro := New(client, nil, time.Hour)

	meta, err := intro.Describe(context.Background(), "res.partner")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if _, ok := meta.Fields["parent_id"]; !ok {
		t.Fatalf("expected base-schema field parent_id to be merged in, got %+v", meta.Fields)
	}
	if meta.Fields["parent_id"].Relation != "res.partner" {
		t.Errorf("expected base-schema relation hint, got %+v", meta.Fields["parent_id"])
	}
	if len(meta.BaseFields) == 0 {
		t.Errorf("expected BaseFields to be populated")
	}
	if len(meta.LiveFields) != 1 || meta.LiveFields[0] != "name" {
		t.Errorf("expected LiveFields to list only the live fetch's fields, got %+v", meta.LiveFields)
	}
}

func TestIntrospector_GetModels_ReturnsRegistryModels(t *testing.T) {
	client := &mockFieldsGetter{fields: map[string]engine.FieldSchema{}}
	intro := New(client, nil, time.Hour)

	models, err := intro.GetModels(context.Background(), engine.GetModelsOptions{Modules: []string{"base"}})
	if err != nil {
		t.Fatalf("GetModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 base-module models (res.partner, res.company), got %d: %+v", len(models), models)
	}
	for _, m := range models {
		if m.Model != "res.partner" && m.Model != "res.company" {
			t.Errorf("unexpected model in base-module filter: %s", m.Model)
		}
	}
}
