package history

import (
	"context"
	"testing"
	"time"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := New(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	tables := []string{"sessions", "ref_bindings", "plans", "apply_results", "model_metadata"}
	for _, table := range tables {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestSession_SaveLoadRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if sess, err := store.LoadSession(ctx); err != nil || sess != nil {
		t.Fatalf("expected no session before any save, got %+v, err=%v", sess, err)
	}

	want := &engine.SessionState{
		Database:        "mydb",
		UID:             7,
		Username:        "admin",
		ServerVersion:   "17.0",
		AuthenticatedAt: time.Now().Truncate(time.Second),
	}
	if err := store.SaveSession(ctx, want); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got == nil || got.UID != want.UID || got.Database != want.Database {
		t.Fatalf("expected session %+v, got %+v", want, got)
	}

	// A second save replaces the first, rather than erroring or duplicating.
	want2 := &engine.SessionState{Database: "otherdb", UID: 9, Username: "bob"}
	if err := store.SaveSession(ctx, want2); err != nil {
		t.Fatalf("SaveSession (replace): %v", err)
	}
	got2, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession (after replace): %v", err)
	}
	if got2.UID != 9 || got2.Database != "otherdb" {
		t.Fatalf("expected the replaced session, got %+v", got2)
	}
}

func TestRefBinding_ResolveBindRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if id, err := store.ResolveRef(ctx, "res.partner", "p1"); err != nil || id != nil {
		t.Fatalf("expected no binding yet, got %v, err=%v", id, err)
	}

	if err := store.BindRef(ctx, "res.partner", "p1", engine.RecordId(42)); err != nil {
		t.Fatalf("BindRef: %v", err)
	}

	id, err := store.ResolveRef(ctx, "res.partner", "p1")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if id == nil || *id != 42 {
		t.Fatalf("expected id 42, got %v", id)
	}

	// Re-binding the same ref to a new id overwrites rather than erroring.
	if err := store.BindRef(ctx, "res.partner", "p1", engine.RecordId(43)); err != nil {
		t.Fatalf("BindRef (rebind): %v", err)
	}
	id2, err := store.ResolveRef(ctx, "res.partner", "p1")
	if err != nil {
		t.Fatalf("ResolveRef (after rebind): %v", err)
	}
	if id2 == nil || *id2 != 43 {
		t.Fatalf("expected rebound id 43, got %v", id2)
	}
}

func TestPlan_SaveGetRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	plan := &engine.ExecutionPlan{
		ID:        "plan-1",
		CreatedAt: time.Now().Truncate(time.Second),
		Operations: []engine.Operation{
			{ID: "res.partner:temp_p1", Op: engine.OperationCreate, Model: "res.partner"},
		},
		Summary: engine.PlanSummary{ToCreate: 1},
	}
	if err := store.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	got, err := store.GetPlan(ctx, "plan-1")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if len(got.Operations) != 1 || got.Summary.ToCreate != 1 {
		t.Fatalf("unexpected round-tripped plan: %+v", got)
	}

	if _, err := store.GetPlan(ctx, "missing"); err == nil {
		t.Fatal("expected an error for an unknown plan id")
	}
}

func TestApplyResult_SaveGetRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	result := &engine.ApplyResult{
		ID:        "apply-1",
		PlanID:    "plan-1",
		Status:    engine.ApplyStatusSucceeded,
		StartedAt: time.Now().Truncate(time.Second),
		Summary:   engine.ApplySummary{Total: 1, Succeeded: 1},
	}
	if err := store.SaveApplyResult(ctx, result); err != nil {
		t.Fatalf("SaveApplyResult: %v", err)
	}

	got, err := store.GetApplyResult(ctx, "apply-1")
	if err != nil {
		t.Fatalf("GetApplyResult: %v", err)
	}
	if got.PlanID != "plan-1" || got.Summary.Succeeded != 1 {
		t.Fatalf("unexpected round-tripped apply result: %+v", got)
	}
}

func TestModelMetadata_CacheLoadRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	meta := &engine.ModelMetadata{
		Model: "res.partner",
		Fields: map[string]engine.FieldSchema{
			"name": {Name: "name", Type: "char", Required: true},
		},
		FetchedAt: time.Now(),
		TTL:       time.Hour,
	}
	if err := store.CacheModelMetadata(ctx, meta); err != nil {
		t.Fatalf("CacheModelMetadata: %v", err)
	}

	got, err := store.LoadModelMetadata(ctx, "res.partner")
	if err != nil {
		t.Fatalf("LoadModelMetadata: %v", err)
	}
	if got == nil || got.Fields["name"].Type != "char" {
		t.Fatalf("unexpected cached metadata: %+v", got)
	}

	if got, err := store.LoadModelMetadata(ctx, "res.unknown"); err != nil || got != nil {
		t.Fatalf("expected no metadata for an uncached model, got %v, err=%v", got, err)
	}
}

func TestModelMetadata_ExpiredIsNotReturned(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	meta := &engine.ModelMetadata{
		Model:     "res.partner",
		Fields:    map[string]engine.FieldSchema{},
		FetchedAt: time.Now().Add(-2 * time.Hour),
		TTL:       time.Hour,
	}
	if err := store.CacheModelMetadata(ctx, meta); err != nil {
		t.Fatalf("CacheModelMetadata: %v", err)
	}

	got, err := store.LoadModelMetadata(ctx, "res.partner")
	if err != nil {
		t.Fatalf("LoadModelMetadata: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expired metadata to be treated as absent, got %+v", got)
	}
}
