package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

type rpcCall struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func newFakeOdooServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				Method string `json:"method"`
			} `json:"params"`
			ID int64 `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		var result interface{}
		switch req.Params.Method {
		case "login":
			result = 7
		case "version":
			result = map[string]interface{}{"server_version": "17.0"}
		default:
			result = true
		}
		resultJSON, _ := json.Marshal(result)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  json.RawMessage(resultJSON),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{URL: "http://localhost:8069", Database: "db", Username: "admin", Password: "secret"}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected a valid config to pass, got %v", err)
	}

	missing := Config{URL: "http://localhost:8069", Username: "admin", Password: "secret"}
	if err := missing.Validate(); err == nil {
		t.Error("expected a missing database to fail validation")
	}

	badURL := Config{URL: "not-a-url", Database: "db", Username: "admin", Password: "secret"}
	if err := badURL.Validate(); err == nil {
		t.Error("expected a non-URL endpoint to fail validation")
	}
}

func TestSession_AccessorsBeforeAuthenticate(t *testing.T) {
	s := New(nil)

	if _, err := s.State(); !engine.IsNotAuthenticated(err) {
		t.Errorf("expected NotAuthenticated from State(), got %v", err)
	}
	if _, err := s.Client(); !engine.IsNotAuthenticated(err) {
		t.Errorf("expected NotAuthenticated from Client(), got %v", err)
	}
	if _, err := s.Introspector(); !engine.IsNotAuthenticated(err) {
		t.Errorf("expected NotAuthenticated from Introspector(), got %v", err)
	}

	if err := s.Logout(context.Background()); err != nil {
		t.Errorf("Logout on a disconnected session should be a no-op, got %v", err)
	}
}

func TestSession_AuthenticateThenLogout(t *testing.T) {
	srv := newFakeOdooServer(t)
	defer srv.Close()

	s := New(nil)
	cfg := Config{URL: srv.URL, Database: "mydb", Username: "admin", Password: "secret"}

	state, err := s.Authenticate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if state.UID != 7 || state.Database != "mydb" {
		t.Fatalf("unexpected session state: %+v", state)
	}

	if _, err := s.Client(); err != nil {
		t.Errorf("Client() after Authenticate: %v", err)
	}
	if _, err := s.Introspector(); err != nil {
		t.Errorf("Introspector() after Authenticate: %v", err)
	}

	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := s.State(); !engine.IsNotAuthenticated(err) {
		t.Errorf("expected NotAuthenticated after Logout, got %v", err)
	}
}

func TestSession_AuthenticateInvalidConfig(t *testing.T) {
	s := New(nil)
	_, err := s.Authenticate(context.Background(), Config{})
	if !engine.IsInvalidInput(err) {
		t.Errorf("expected InvalidInput for an empty config, got %v", err)
	}
}

func TestSession_ReAuthenticateDiscardsPriorSession(t *testing.T) {
	srv := newFakeOdooServer(t)
	defer srv.Close()

	s := New(nil)
	cfg := Config{URL: srv.URL, Database: "db1", Username: "admin", Password: "secret"}
	if _, err := s.Authenticate(context.Background(), cfg); err != nil {
		t.Fatalf("first Authenticate: %v", err)
	}

	cfg2 := Config{URL: srv.URL, Database: "db2", Username: "admin", Password: "secret"}
	state, err := s.Authenticate(context.Background(), cfg2)
	if err != nil {
		t.Fatalf("second Authenticate: %v", err)
	}
	if state.Database != "db2" {
		t.Fatalf("expected the second session to replace the first, got %+v", state)
	}
}
