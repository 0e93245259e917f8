package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/disconnec/FeiSync/internal/access"
	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/model"
)

type fakeVerifier struct {
	scope access.Scope
	err   error
}

func (f fakeVerifier) Verify(string) (access.Scope, error) {
	return f.scope, f.err
}

type fakeLogStore struct {
	entries []model.ApiLogEntry
}

func (f *fakeLogStore) Append(entry model.ApiLogEntry) {
	f.entries = append(f.entries, entry)
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := New(fakeVerifier{scope: access.Admin()}, &fakeLogStore{})
	_, err := d.Dispatch(context.Background(), "does_not_exist", "key", nil)
	if err == nil {
		t.Fatalf("expected error for unknown command")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.BadInput {
		t.Fatalf("expected BadInput, got %v", err)
	}
}

func TestDispatchAuthFailureSkipsHandler(t *testing.T) {
	logs := &fakeLogStore{}
	called := false
	d := New(fakeVerifier{err: apierr.New(apierr.AuthDenied, "bad key")}, logs)
	d.Register(Command{
		Name: "ping",
		Handler: func(ctx context.Context, scope access.Scope, payload map[string]any) (any, error) {
			called = true
			return "pong", nil
		},
	})

	_, err := d.Dispatch(context.Background(), "ping", "bad", nil)
	if err == nil {
		t.Fatalf("expected auth error")
	}
	if called {
		t.Fatalf("handler must not run when auth fails")
	}
	if len(logs.entries) != 1 || logs.entries[0].Success {
		t.Fatalf("expected one failed log entry, got %+v", logs.entries)
	}
}

func TestDispatchMissingRequiredField(t *testing.T) {
	d := New(fakeVerifier{scope: access.Admin()}, &fakeLogStore{})
	d.Register(Command{
		Name:     "add_tenant",
		Required: []string{"display_name"},
		Handler: func(ctx context.Context, scope access.Scope, payload map[string]any) (any, error) {
			return nil, nil
		},
	})

	_, err := d.Dispatch(context.Background(), "add_tenant", "key", json.RawMessage(`{}`))
	if err == nil {
		t.Fatalf("expected missing-field error")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.BadInput {
		t.Fatalf("expected BadInput, got %v", err)
	}
}

func TestDispatchMissingFieldNullCountsAsMissing(t *testing.T) {
	d := New(fakeVerifier{scope: access.Admin()}, &fakeLogStore{})
	d.Register(Command{
		Name:     "add_tenant",
		Required: []string{"display_name"},
		Handler: func(ctx context.Context, scope access.Scope, payload map[string]any) (any, error) {
			return nil, nil
		},
	})

	_, err := d.Dispatch(context.Background(), "add_tenant", "key", json.RawMessage(`{"display_name": null}`))
	if err == nil {
		t.Fatalf("expected null field to count as missing")
	}
}

func TestDispatchInvalidJSONPayload(t *testing.T) {
	d := New(fakeVerifier{scope: access.Admin()}, &fakeLogStore{})
	d.Register(Command{Name: "noop", Handler: func(ctx context.Context, scope access.Scope, payload map[string]any) (any, error) {
		return nil, nil
	}})

	_, err := d.Dispatch(context.Background(), "noop", "key", json.RawMessage(`not json`))
	if err == nil {
		t.Fatalf("expected invalid JSON to error")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.BadInput {
		t.Fatalf("expected BadInput, got %v", err)
	}
}

func TestDispatchSuccessInvokesHandlerAndLogs(t *testing.T) {
	logs := &fakeLogStore{}
	d := New(fakeVerifier{scope: access.ForGroup("g1")}, logs)
	var gotScope access.Scope
	var gotPayload map[string]any
	d.Register(Command{
		Name:     "greet",
		Required: []string{"name"},
		Handler: func(ctx context.Context, scope access.Scope, payload map[string]any) (any, error) {
			gotScope = scope
			gotPayload = payload
			return map[string]any{"greeting": "hi " + payload["name"].(string)}, nil
		},
	})

	result, err := d.Dispatch(context.Background(), "greet", "key", json.RawMessage(`{"name": "ada"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotScope.String() != "group:g1" {
		t.Fatalf("expected handler to receive the verified scope, got %v", gotScope)
	}
	if gotPayload["name"] != "ada" {
		t.Fatalf("expected decoded payload passed through, got %+v", gotPayload)
	}
	m, ok := result.(map[string]any)
	if !ok || m["greeting"] != "hi ada" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(logs.entries) != 1 || !logs.entries[0].Success {
		t.Fatalf("expected one successful log entry, got %+v", logs.entries)
	}
	if logs.entries[0].Scope != "group:g1" {
		t.Fatalf("expected log entry to record the scope, got %q", logs.entries[0].Scope)
	}
}

func TestDispatchHandlerErrorStillLogs(t *testing.T) {
	logs := &fakeLogStore{}
	d := New(fakeVerifier{scope: access.Admin()}, logs)
	d.Register(Command{
		Name: "boom",
		Handler: func(ctx context.Context, scope access.Scope, payload map[string]any) (any, error) {
			return nil, apierr.New(apierr.Conflict, "already exists")
		},
	})

	_, err := d.Dispatch(context.Background(), "boom", "key", nil)
	if err == nil {
		t.Fatalf("expected handler error to propagate")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.Conflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if len(logs.entries) != 1 || logs.entries[0].Success {
		t.Fatalf("expected one failed log entry, got %+v", logs.entries)
	}
}

func TestCatalogListsRegisteredCommands(t *testing.T) {
	d := New(fakeVerifier{scope: access.Admin()}, &fakeLogStore{})
	d.Register(Command{Name: "a"})
	d.Register(Command{Name: "b"})

	cat := d.Catalog()
	if len(cat) != 2 {
		t.Fatalf("expected 2 catalog entries, got %d", len(cat))
	}
}
