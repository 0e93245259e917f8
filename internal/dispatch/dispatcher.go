// Package dispatch implements the unified command surface: a single
// function mapping a command name, optional JSON payload, and API key to
// a JSON-able result, shared identically by the in-process callers and
// the HTTP server's POST /command/{name} route.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/disconnec/FeiSync/internal/access"
	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/metrics"
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler is one command's business logic. It receives the caller's
// scope (already verified) and the decoded payload, and returns a
// JSON-marshalable result.
type Handler func(ctx context.Context, scope access.Scope, payload map[string]any) (any, error)

// Command is one entry in the dispatcher's table: a name, the payload
// fields that must be present and non-null, and the handler.
type Command struct {
	Name     string
	Required []string
	Handler  Handler
}

// Verifier authenticates a presented API key into a Scope.
type Verifier interface {
	Verify(apiKey string) (access.Scope, error)
}

// LogStore persists the full api-log population whole, per the
// file-atomicity rule in spec §5.
type LogStore interface {
	Append(entry model.ApiLogEntry)
}

// Dispatcher owns the command table and drives authenticate -> parse ->
// invoke -> log for every call, identically whether it arrived from an
// in-process caller or the HTTP layer.
type Dispatcher struct {
	commands map[string]Command
	verifier Verifier
	logs     LogStore
}

func New(verifier Verifier, logs LogStore) *Dispatcher {
	return &Dispatcher{
		commands: make(map[string]Command),
		verifier: verifier,
		logs:     logs,
	}
}

// Register adds a command to the table. Intended to be called once per
// command at startup wiring, not under load.
func (d *Dispatcher) Register(cmd Command) {
	d.commands[cmd.Name] = cmd
}

// Catalog lists every registered command's name and required fields, for
// GET /docs.
func (d *Dispatcher) Catalog() []Command {
	out := make([]Command, 0, len(d.commands))
	for _, c := range d.commands {
		out = append(out, c)
	}
	return out
}

// Dispatch authenticates apiKey, validates payload against the named
// command's required fields, invokes the handler, measures duration, and
// appends a sanitized ApiLogEntry regardless of outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, apiKey string, payload json.RawMessage) (any, error) {
	cmd, ok := d.commands[name]
	if !ok {
		return nil, apierr.New(apierr.BadInput, fmt.Sprintf("unknown command %q", name))
	}

	scope, err := d.verifier.Verify(apiKey)
	if err != nil {
		d.appendLog(name, "", 0, false, payload, nil)
		metrics.DispatchTotal.WithLabelValues(name, "auth_error").Inc()
		return nil, err
	}

	fields, err := decodePayload(payload)
	if err != nil {
		d.appendLog(name, scope.String(), 0, false, payload, nil)
		metrics.DispatchTotal.WithLabelValues(name, "error").Inc()
		return nil, apierr.Wrap(apierr.BadInput, "invalid JSON payload", err)
	}
	if err := requireFields(fields, cmd.Required); err != nil {
		d.appendLog(name, scope.String(), 0, false, payload, nil)
		metrics.DispatchTotal.WithLabelValues(name, "error").Inc()
		return nil, err
	}

	start := time.Now()
	result, handlerErr := cmd.Handler(ctx, scope, fields)
	duration := time.Since(start)
	metrics.DispatchDuration.WithLabelValues(name).Observe(duration.Seconds())

	success := handlerErr == nil
	outcome := "success"
	if !success {
		outcome = "error"
	}
	metrics.DispatchTotal.WithLabelValues(name, outcome).Inc()
	d.appendLog(name, scope.String(), duration.Milliseconds(), success, payload, result)

	if handlerErr != nil {
		return nil, handlerErr
	}
	return result, nil
}

func decodePayload(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func requireFields(fields map[string]any, required []string) error {
	for _, name := range required {
		v, ok := fields[name]
		if !ok || v == nil {
			return apierr.New(apierr.BadInput, fmt.Sprintf("missing required field %q", name))
		}
	}
	return nil
}

func (d *Dispatcher) appendLog(command, scope string, durationMS int64, success bool, payload json.RawMessage, result any) {
	if d.logs == nil {
		return
	}
	var meta map[string]any
	if fields, err := decodePayload(payload); err == nil {
		meta, _ = sanitize(fields).(map[string]any)
	}

	preview := ""
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			preview = truncate(string(b))
		}
	}

	entry := model.ApiLogEntry{
		ID:              uuid.New().String(),
		Timestamp:       time.Now().UTC(),
		Command:         command,
		Scope:           scope,
		DurationMS:      durationMS,
		Success:         success,
		Meta:            meta,
		ResponsePreview: preview,
	}
	d.logs.Append(entry)
	if !success {
		log.Warn().Str("command", command).Str("scope", scope).Msg("command dispatch failed")
	}
}
