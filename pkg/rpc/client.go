package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/odoodrift/odoodrift/pkg/engine"
	"github.com/odoodrift/odoodrift/pkg/telemetry"
	"github.com/rs/zerolog/log"
)

// Config configures a Client.
type Config struct {
	// Endpoint is the base URL of the Odoo server, e.g. "https://erp.example.com".
	Endpoint string

	// Timeout bounds every individual HTTP round trip.
	Timeout time.Duration

	// HTTPClient overrides the transport used to issue requests. When nil a
	// client with Timeout is constructed.
	HTTPClient *http.Client
}

// Client is a JSON-RPC 2.0 client for the Odoo web service, speaking its
// dynamic object-service dialect: every request goes to the single /jsonrpc
// endpoint, with the logical service ("common" for login, "object" for
// execute_kw) and method named in the request params.
type Client struct {
	cfg Config
	hc  *http.Client

	mu      sync.RWMutex
	session *engine.SessionState
	// password is retained in memory for the lifetime of the client because
	// execute_kw requires it on every call; it is never persisted.
	password string
	nextID   int64
}

// New creates a Client bound to cfg.Endpoint.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, engine.NewInvalidInputError("rpc: endpoint is required", nil)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, hc: hc}, nil
}

// jsonRPCRequest is the envelope every call to Odoo's /jsonrpc endpoint uses,
// regardless of which service/method is being dispatched.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  jsonRPCCallArgs `json:"params"`
	ID      int64           `json:"id"`
}

type jsonRPCCallArgs struct {
	Service string        `json:"service"`
	Method  string        `json:"method"`
	Args    []interface{} `json:"args"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// call issues one JSON-RPC request against service/method and unmarshals the
// result into out (which may be nil to discard the result).
func (c *Client) call(ctx context.Context, service, method string, args []interface{}, out interface{}) error {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	req := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  "call",
		ID:      id,
		Params: jsonRPCCallArgs{
			Service: service,
			Method:  method,
			Args:    args,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return engine.NewInvalidInputError("rpc: failed to encode request", err).WithOperation(method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return engine.NewNetworkError("rpc: failed to build request", err).WithOperation(method)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Debug().Str("service", service).Str("method", method).Int64("id", id).Msg("rpc call")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return engine.NewNetworkError("rpc: request failed", err).WithOperation(method)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return engine.NewNetworkError(fmt.Sprintf("rpc: unexpected HTTP status %d", resp.StatusCode), nil).
			WithOperation(method).WithCode(engine.ErrCodeTimeout)
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return engine.NewNetworkError("rpc: failed to decode response", err).WithOperation(method)
	}

	if rpcResp.Error != nil {
		ee := engine.NewRpcError(rpcResp.Error.Message, nil).
			WithCode(fmt.Sprintf("%d", rpcResp.Error.Code)).
			WithOperation(method)
		if rpcResp.Error.Data != nil {
			var data map[string]interface{}
			if json.Unmarshal(rpcResp.Error.Data, &data) == nil {
				ee = ee.WithDetail("data", data)
			}
		}
		if rpcResp.Error.Code == 100 {
			// Odoo's session-expiry / bad-credentials class of error.
			return engine.NewAuthError(rpcResp.Error.Message, nil).WithOperation(method)
		}
		return ee
	}

	if out != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return engine.NewRpcError("rpc: failed to decode result payload", err).WithOperation(method)
		}
	}

	return nil
}

// Login authenticates against common/login and stores the resulting session.
func (c *Client) Login(ctx context.Context, database, username, password string) (*engine.SessionState, error) {
	var uid interface{}
	if err := c.call(ctx, "common", "login", []interface{}{database, username, password}, &uid); err != nil {
		return nil, err
	}

	id, ok := toInt64(uid)
	if !ok || id <= 0 {
		return nil, engine.NewAuthError("rpc: login rejected credentials", nil).WithResource(database)
	}

	var version map[string]interface{}
	_ = c.call(ctx, "common", "version", nil, &version)
	serverVersion, _ := version["server_version"].(string)

	session := &engine.SessionState{
		Database:        database,
		UID:             id,
		Username:        username,
		ServerVersion:   serverVersion,
		AuthenticatedAt: time.Now(),
	}

	c.mu.Lock()
	c.session = session
	c.password = password
	c.mu.Unlock()

	return session, nil
}

// Session returns the current session, or NotAuthenticated if Login hasn't run.
func (c *Client) Session() (*engine.SessionState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, engine.NewNotAuthenticatedError("rpc: no active session, call Login first", nil)
	}
	return c.session, nil
}

// Logout discards the current session and retained password. It is safe to
// call on an already-disconnected client.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	hadSession := c.session != nil
	// Odoo's common service exposes no logout verb of its own (the session a
	// JSON-RPC client holds is just the credential tuple kept in memory, not
	// a server-side cookie), so logout is local: drop the retained uid and
	// password so subsequent calls fail NotAuthenticated until Login runs
	// again.
	c.session = nil
	c.password = ""
	c.mu.Unlock()

	if hadSession {
		log.Debug().Msg("rpc session logged out")
	}
	return nil
}

// ExecuteKw invokes object/execute_kw(db, uid, password, model, method, args, kwargs).
func (c *Client) ExecuteKw(ctx context.Context, model engine.ModelId, method string, args []interface{}, kwargs map[string]interface{}, out interface{}) error {
	c.mu.RLock()
	session, password := c.session, c.password
	c.mu.RUnlock()

	if session == nil {
		return engine.NewNotAuthenticatedError("rpc: no active session, call Login first", nil).WithOperation(method)
	}

	callArgs := []interface{}{
		session.Database, session.UID, password, string(model), method, args,
	}
	if kwargs != nil {
		callArgs = append(callArgs, kwargs)
	}

	return telemetry.RecordRPCOperation(ctx, "execute_kw", method, func() error {
		return c.call(ctx, "object", "execute_kw", callArgs, out)
	})
}

// SearchRead wraps the search_read method, Odoo's combined query+fetch call.
func (c *Client) SearchRead(ctx context.Context, model engine.ModelId, domain engine.Domain, fields []string, limit int) ([]map[string]engine.FieldValue, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	kwargs := map[string]interface{}{"fields": fields}
	if limit > 0 {
		kwargs["limit"] = limit
	}

	var raw []map[string]interface{}
	if err := c.ExecuteKw(ctx, model, "search_read", []interface{}{domain}, kwargs, &raw); err != nil {
		return nil, err
	}

	out := make([]map[string]engine.FieldValue, len(raw))
	for i, row := range raw {
		out[i] = row
	}
	return out, nil
}

// Search returns the ids of records matching domain without fetching field
// values, Odoo's bare search method.
func (c *Client) Search(ctx context.Context, model engine.ModelId, domain engine.Domain, opts engine.SearchOptions) ([]engine.RecordId, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	kwargs := map[string]interface{}{}
	if opts.Offset > 0 {
		kwargs["offset"] = opts.Offset
	}
	if opts.Limit > 0 {
		kwargs["limit"] = opts.Limit
	}
	if opts.Order != "" {
		kwargs["order"] = opts.Order
	}

	var raw []int64
	if err := c.ExecuteKw(ctx, model, "search", []interface{}{domain}, kwargs, &raw); err != nil {
		return nil, err
	}

	out := make([]engine.RecordId, len(raw))
	for i, id := range raw {
		out[i] = engine.RecordId(id)
	}
	return out, nil
}

// Read fetches specific fields for a known set of record ids.
func (c *Client) Read(ctx context.Context, model engine.ModelId, ids []engine.RecordId, fields []string) ([]map[string]engine.FieldValue, error) {
	kwargs := map[string]interface{}{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}

	var raw []map[string]interface{}
	if err := c.ExecuteKw(ctx, model, "read", []interface{}{idArgs(ids)}, kwargs, &raw); err != nil {
		return nil, err
	}

	out := make([]map[string]engine.FieldValue, len(raw))
	for i, row := range raw {
		out[i] = row
	}
	return out, nil
}

// Create inserts a new record and returns its assigned id.
func (c *Client) Create(ctx context.Context, model engine.ModelId, fields map[string]interface{}, callCtx map[string]interface{}) (engine.RecordId, error) {
	kwargs := contextKwargs(callCtx)

	var newID int64
	if err := c.ExecuteKw(ctx, model, "create", []interface{}{fields}, kwargs, &newID); err != nil {
		return 0, err
	}
	return engine.RecordId(newID), nil
}

// Write updates the given records' fields.
func (c *Client) Write(ctx context.Context, model engine.ModelId, ids []engine.RecordId, fields map[string]interface{}, callCtx map[string]interface{}) error {
	kwargs := contextKwargs(callCtx)

	var ok bool
	return c.ExecuteKw(ctx, model, "write", []interface{}{idArgs(ids), fields}, kwargs, &ok)
}

// Unlink deletes the given records.
func (c *Client) Unlink(ctx context.Context, model engine.ModelId, ids []engine.RecordId, callCtx map[string]interface{}) error {
	kwargs := contextKwargs(callCtx)

	var ok bool
	return c.ExecuteKw(ctx, model, "unlink", []interface{}{idArgs(ids)}, kwargs, &ok)
}

// Call invokes an arbitrary model method and returns its raw JSON result, for
// operations the client has no typed wrapper for. Unlike ExecuteKw it does
// not attempt to decode the result, so callers can handle methods whose
// return shape varies by model or Odoo version.
func (c *Client) Call(ctx context.Context, model engine.ModelId, method string, args []interface{}, kwargs map[string]interface{}) (json.RawMessage, error) {
	c.mu.RLock()
	session, password := c.session, c.password
	c.mu.RUnlock()

	if session == nil {
		return nil, engine.NewNotAuthenticatedError("rpc: no active session, call Login first", nil).WithOperation(method)
	}

	callArgs := []interface{}{session.Database, session.UID, password, string(model), method, args}
	if kwargs != nil {
		callArgs = append(callArgs, kwargs)
	}

	var raw json.RawMessage
	err := telemetry.RecordRPCOperation(ctx, "execute_kw", method, func() error {
		return c.call(ctx, "object", "execute_kw", callArgs, &raw)
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// ConnectionStatus reports whether the transport can currently reach the
// server by issuing the unauthenticated common/version call, independent of
// whether a session has been established.
func (c *Client) ConnectionStatus(ctx context.Context) (*engine.ConnectionState, error) {
	c.mu.RLock()
	authenticated := c.session != nil
	c.mu.RUnlock()

	state := &engine.ConnectionState{Authenticated: authenticated, CheckedAt: time.Now()}

	var version map[string]interface{}
	if err := c.call(ctx, "common", "version", nil, &version); err != nil {
		return state, err
	}

	state.Connected = true
	state.ServerVersion, _ = version["server_version"].(string)
	return state, nil
}

// FieldsGet introspects a model's field schema via fields_get.
func (c *Client) FieldsGet(ctx context.Context, model engine.ModelId) (map[string]engine.FieldSchema, error) {
	var raw map[string]struct {
		Type     string `json:"type"`
		Relation string `json:"relation"`
		Required bool   `json:"required"`
		Readonly bool   `json:"readonly"`
		Store    bool   `json:"store"`
		String   string `json:"string"`
		Compute  string `json:"compute"`
	}

	kwargs := map[string]interface{}{"attributes": []string{"type", "relation", "required", "readonly", "store", "string", "compute"}}
	if err := c.ExecuteKw(ctx, model, "fields_get", []interface{}{}, kwargs, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]engine.FieldSchema, len(raw))
	for name, f := range raw {
		out[name] = engine.FieldSchema{
			Name:     name,
			Type:     f.Type,
			Relation: f.Relation,
			Required: f.Required,
			ReadOnly: f.Readonly,
			Store:    f.Store,
			String:   f.String,
			// fields_get reports "compute" as the Python source of the
			// compute method (non-empty) or omits/empties it; odoodrift only
			// needs whether one is defined at all.
			Compute: f.Compute != "",
		}
	}
	return out, nil
}

// Close is a no-op for the stdlib HTTP transport; it exists to satisfy
// engine.RPCClient for implementations that do hold connection state.
func (c *Client) Close() error {
	return nil
}

// idArgs converts record ids to the []interface{} shape Odoo's write methods
// expect as their first positional argument.
func idArgs(ids []engine.RecordId) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// contextKwargs wraps a non-empty call-context override in the "context"
// kwarg Odoo's write methods accept; nil callCtx yields empty kwargs.
func contextKwargs(callCtx map[string]interface{}) map[string]interface{} {
	kwargs := map[string]interface{}{}
	if len(callCtx) > 0 {
		kwargs["context"] = callCtx
	}
	return kwargs
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case bool:
		return 0, false
	default:
		return 0, false
	}
}
