package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sessionRowID is the single row id every SaveSession/LoadSession call uses;
// a store holds at most one "current" session at a time, matching
// engine.SessionStore's single-caller CLI use.
const sessionRowID = 1

// Config configures a Store.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements engine.SessionStore on top of SQLite, in WAL mode with
// schema migrations, following the teacher's connection-pooling and pragma
// conventions.
type Store struct {
	db   *sql.DB
	path string
	cfg  Config
}

// New creates a Store bound to cfg.Path. Call Init then Migrate before use.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("history: database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &Store{path: cfg.Path, cfg: cfg}, nil
}

// Init opens the database connection pool and enables WAL mode.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("history: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("history: failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies pending schema migrations.
func (s *Store) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("history: database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("history: failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("history: failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("history: failed to run migrations: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection is alive.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("history: database not initialized")
	}
	return s.db.PingContext(ctx)
}

// SaveSession persists the current authenticated session, replacing whatever
// was previously saved.
func (s *Store) SaveSession(ctx context.Context, sess *engine.SessionState) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("history: failed to encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, sessionRowID, payload)
	if err != nil {
		return fmt.Errorf("history: failed to save session: %w", err)
	}
	return nil
}

// LoadSession retrieves the last saved session, or nil if none was ever saved.
func (s *Store) LoadSession(ctx context.Context) (*engine.SessionState, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = ?`, sessionRowID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to load session: %w", err)
	}

	var sess engine.SessionState
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("history: failed to decode session: %w", err)
	}
	return &sess, nil
}

// ResolveRef returns the record id last bound to (model, ref), or nil if
// never bound.
func (s *Store) ResolveRef(ctx context.Context, model engine.ModelId, ref string) (*engine.RecordId, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT record_id FROM ref_bindings WHERE model = ? AND ref = ?`, string(model), ref).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to resolve ref %s/%s: %w", model, ref, err)
	}
	rid := engine.RecordId(id)
	return &rid, nil
}

// BindRef records that (model, ref) now corresponds to id.
func (s *Store) BindRef(ctx context.Context, model engine.ModelId, ref string, id engine.RecordId) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ref_bindings (model, ref, record_id, bound_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(model, ref) DO UPDATE SET record_id = excluded.record_id, bound_at = excluded.bound_at
	`, string(model), ref, int64(id))
	if err != nil {
		return fmt.Errorf("history: failed to bind ref %s/%s: %w", model, ref, err)
	}
	return nil
}

// SavePlan persists a computed plan for later inspection or apply.
func (s *Store) SavePlan(ctx context.Context, plan *engine.ExecutionPlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("history: failed to encode plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, payload, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, plan.ID, payload, plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: failed to save plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a previously saved plan by ID.
func (s *Store) GetPlan(ctx context.Context, planID string) (*engine.ExecutionPlan, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM plans WHERE id = ?`, planID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history: plan not found: %s", planID)
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to get plan: %w", err)
	}

	var plan engine.ExecutionPlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, fmt.Errorf("history: failed to decode plan: %w", err)
	}
	return &plan, nil
}

// SaveApplyResult persists the outcome of an apply run.
func (s *Store) SaveApplyResult(ctx context.Context, result *engine.ApplyResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("history: failed to encode apply result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO apply_results (id, plan_id, payload, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, result.ID, result.PlanID, payload, result.StartedAt)
	if err != nil {
		return fmt.Errorf("history: failed to save apply result: %w", err)
	}
	return nil
}

// GetApplyResult retrieves a previously saved apply result by ID.
func (s *Store) GetApplyResult(ctx context.Context, id string) (*engine.ApplyResult, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM apply_results WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history: apply result not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to get apply result: %w", err)
	}

	var result engine.ApplyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("history: failed to decode apply result: %w", err)
	}
	return &result, nil
}

// CacheModelMetadata persists introspected model metadata for reuse across runs.
func (s *Store) CacheModelMetadata(ctx context.Context, meta *engine.ModelMetadata) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("history: failed to encode model metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO model_metadata (model, payload, fetched_at, ttl_ns) VALUES (?, ?, ?, ?)
		ON CONFLICT(model) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at, ttl_ns = excluded.ttl_ns
	`, string(meta.Model), payload, meta.FetchedAt, int64(meta.TTL))
	if err != nil {
		return fmt.Errorf("history: failed to cache model metadata: %w", err)
	}
	return nil
}

// LoadModelMetadata retrieves cached model metadata, if present and unexpired.
func (s *Store) LoadModelMetadata(ctx context.Context, model engine.ModelId) (*engine.ModelMetadata, error) {
	var (
		payload   []byte
		fetchedAt time.Time
		ttlNs     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at, ttl_ns FROM model_metadata WHERE model = ?`, string(model)).
		Scan(&payload, &fetchedAt, &ttlNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to load model metadata for %s: %w", model, err)
	}

	ttl := time.Duration(ttlNs)
	if ttl > 0 && time.Since(fetchedAt) > ttl {
		return nil, nil
	}

	var meta engine.ModelMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, fmt.Errorf("history: failed to decode model metadata: %w", err)
	}
	return &meta, nil
}

var _ engine.SessionStore = (*Store)(nil)
