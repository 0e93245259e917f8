// Package cloudapi is the HTTP client layer for the opaque multi-tenant
// cloud drive REST API described in spec.md §6: every response carries
// {code, msg, data}, and a non-zero code is a failure even on HTTP 200.
package cloudapi

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire shape every open-apis response carries.
type Envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Err returns a non-nil error if the envelope represents a failure,
// i.e. Code != 0, regardless of the HTTP status that carried it.
func (e Envelope) Err() error {
	if e.Code != 0 {
		return fmt.Errorf("cloud api error %d: %s", e.Code, e.Msg)
	}
	return nil
}

// Decode unmarshals Data into v, returning the envelope's error first if
// present (an error envelope's Data is not meaningful).
func (e Envelope) Decode(v any) error {
	if err := e.Err(); err != nil {
		return err
	}
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}
