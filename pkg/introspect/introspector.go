// Package introspect caches Odoo model field metadata (fields_get results)
// so the comparator and planner can repeatedly interpret field values
// (relational command vs scalar vs property bag) without re-fetching the
// schema on every record. A small static registry of well-known models
// (baseschema.go) refines what a live fields_get call reports.
package introspect

import (
	"context"
	"sync"
	"time"

	"github.com/odoodrift/odoodrift/pkg/engine"
	"github.com/rs/zerolog/log"
)

// FieldsGetter is the subset of engine.RPCClient the Introspector needs.
type FieldsGetter interface {
	FieldsGet(ctx context.Context, model engine.ModelId) (map[string]engine.FieldSchema, error)
}

// Store persists introspected metadata across CLI invocations so schema
// lookups are not repeated on every command.
type Store interface {
	CacheModelMetadata(ctx context.Context, meta *engine.ModelMetadata) error
	LoadModelMetadata(ctx context.Context, model engine.ModelId) (*engine.ModelMetadata, error)
}

// DefaultTTL is how long a model's schema is trusted before being refetched.
// Odoo model definitions change only on module upgrade, so a generous TTL
// avoids refetching on every plan within a session.
const DefaultTTL = 15 * time.Minute

// Introspector resolves and caches ModelMetadata, checking an in-memory
// cache first, then an optional persistent Store, before calling the server.
type Introspector struct {
	client FieldsGetter
	store  Store
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[engine.ModelId]*engine.ModelMetadata
}

// New creates an Introspector backed by client, optionally persisting to store.
// store may be nil, in which case only the in-memory cache is used.
func New(client FieldsGetter, store Store, ttl time.Duration) *Introspector {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Introspector{
		client: client,
		store:  store,
		ttl:    ttl,
		cache:  make(map[engine.ModelId]*engine.ModelMetadata),
	}
}

// Describe returns field metadata for model, consulting caches before
// issuing a fields_get call.
func (i *Introspector) Describe(ctx context.Context, model engine.ModelId) (*engine.ModelMetadata, error) {
	return i.Lookup(ctx, model, false)
}

// Lookup returns field metadata for model, merged with any base-schema
// knowledge odoodrift has of it. When bypassCache is true, both the
// in-memory and persistent caches are skipped and the schema is refetched
// from the server, as if Invalidate had just been called.
func (i *Introspector) Lookup(ctx context.Context, model engine.ModelId, bypassCache bool) (*engine.ModelMetadata, error) {
	if !bypassCache {
		if meta := i.fromMemory(model); meta != nil {
			return meta, nil
		}

		if i.store != nil {
			if meta, err := i.store.LoadModelMetadata(ctx, model); err == nil && meta != nil && !expired(meta) {
				i.remember(meta)
				return meta, nil
			}
		}
	}

	fields, err := i.client.FieldsGet(ctx, model)
	if err != nil {
		return nil, err
	}

	merged, baseFields, liveFields := mergeBaseSchema(model, fields)
	meta := &engine.ModelMetadata{
		Model:      model,
		Fields:     merged,
		BaseFields: baseFields,
		LiveFields: liveFields,
		FetchedAt:  time.Now(),
		TTL:        i.ttl,
	}

	i.remember(meta)
	if i.store != nil {
		if err := i.store.CacheModelMetadata(ctx, meta); err != nil {
			log.Warn().Err(err).Str("model", string(model)).Msg("failed to persist model metadata cache")
		}
	}

	return meta, nil
}

// GetModels returns metadata for the models odoodrift carries base-schema
// knowledge of (baseschema.go's registry), the closest this introspector
// comes to a model catalog without wiring a generic ir.model search into it.
// A drift tool only needs schemas for models a desired-state document
// actually references, which Describe/Lookup already cover; GetModels exists
// for callers (like a future "odoodrift models" inspection command) that
// want to enumerate what odoodrift understands out of the box.
func (i *Introspector) GetModels(ctx context.Context, opts engine.GetModelsOptions) ([]engine.ModelMetadata, error) {
	var result []engine.ModelMetadata
	for model, base := range baseSchemaRegistry {
		if base.transient && !opts.IncludeTransient {
			continue
		}
		if len(opts.Modules) > 0 && !containsString(opts.Modules, base.module) {
			continue
		}
		meta, err := i.Lookup(ctx, model, opts.BypassCache)
		if err != nil {
			return nil, err
		}
		result = append(result, *meta)
	}
	return result, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// Invalidate drops any cached metadata for model, forcing the next Describe
// call to refetch it.
func (i *Introspector) Invalidate(model engine.ModelId) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.cache, model)
}

func (i *Introspector) fromMemory(model engine.ModelId) *engine.ModelMetadata {
	i.mu.RLock()
	defer i.mu.RUnlock()
	meta, ok := i.cache[model]
	if !ok || expired(meta) {
		return nil
	}
	return meta
}

func (i *Introspector) remember(meta *engine.ModelMetadata) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cache[meta.Model] = meta
}

func expired(meta *engine.ModelMetadata) bool {
	if meta.TTL <= 0 {
		return false
	}
	return time.Since(meta.FetchedAt) > meta.TTL
}
