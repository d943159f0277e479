// Package session owns the authenticated interval a CLI invocation runs in:
// one RPC client and one Introspector, built together by Authenticate and
// torn down together by Logout.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/odoodrift/odoodrift/pkg/engine"
	"github.com/odoodrift/odoodrift/pkg/introspect"
	"github.com/odoodrift/odoodrift/pkg/rpc"
)

// Config is the credential tuple required to authenticate against an Odoo
// server.
type Config struct {
	URL      string `json:"url" validate:"required,url"`
	Database string `json:"database" validate:"required"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`

	// IntrospectTTL overrides introspect.DefaultTTL when non-zero.
	IntrospectTTL time.Duration `json:"introspect_ttl,omitempty"`
}

var validate = validator.New()

// Validate checks cfg against its struct tags.
func (cfg Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return engine.NewInvalidInputError("session: invalid config", err)
	}
	return nil
}

// Session owns an engine.RPCClient and an *introspect.Introspector for the
// lifetime of one authenticated interval. A zero Session is disconnected.
type Session struct {
	store introspect.Store

	mu     sync.RWMutex
	state  *engine.SessionState
	client engine.RPCClient
	intro  *introspect.Introspector
}

// New creates a disconnected Session. store, if non-nil, backs the
// Introspector's persistent metadata cache.
func New(store introspect.Store) *Session {
	return &Session{store: store}
}

// Authenticate discards any existing session, then builds and authenticates
// a new RPC client and Introspector from cfg. On failure the Session is left
// disconnected rather than retaining the prior (now possibly stale) session
// — the unauthenticated window this creates is accepted rather than
// restoring the old session, per the single-session-per-process model this
// CLI uses.
func (s *Session) Authenticate(ctx context.Context, cfg Config) (*engine.SessionState, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state, s.client, s.intro = nil, nil, nil

	client, err := rpc.New(rpc.Config{Endpoint: cfg.URL})
	if err != nil {
		return nil, err
	}

	state, err := client.Login(ctx, cfg.Database, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	s.client = client
	s.intro = introspect.New(client, s.store, cfg.IntrospectTTL)
	s.state = state

	log.Info().Str("database", cfg.Database).Str("username", cfg.Username).Msg("session authenticated")
	return state, nil
}

// Logout discards the session. Safe to call when already disconnected.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Logout(ctx)
	s.state, s.client, s.intro = nil, nil, nil
	return err
}

// State returns the current SessionState, or a NotAuthenticated error if no
// session is active.
func (s *Session) State() (*engine.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, engine.NewNotAuthenticatedError("session: not authenticated", nil)
	}
	return s.state, nil
}

// Client returns the session's RPC client, or a NotAuthenticated error if no
// session is active.
func (s *Session) Client() (engine.RPCClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, engine.NewNotAuthenticatedError("session: not authenticated", nil)
	}
	return s.client, nil
}

// Introspector returns the session's Introspector, or a NotAuthenticated
// error if no session is active.
func (s *Session) Introspector() (*introspect.Introspector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.intro == nil {
		return nil, engine.NewNotAuthenticatedError("session: not authenticated", nil)
	}
	return s.intro, nil
}
