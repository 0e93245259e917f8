// Package store provides atomic, whole-file JSON persistence for every
// operator-facing record FeiSync keeps on disk: tenants, groups, the
// resource index, transfers, sync tasks, sync logs, api logs, and the
// two small config files. Every store is a flat JSON document rewritten
// in full on each save; callers tolerate the brief truncation window per
// §5 of the spec (acceptable for operator-facing metadata, never used
// for in-flight transfer bytes).
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ErrNotExist is returned by Load when the backing file has never been
// written; callers treat it as "use the zero value."
var ErrNotExist = os.ErrNotExist

// Load reads path and unmarshals it into v. A missing file is reported
// via ErrNotExist (wrapped) so callers can distinguish "first run" from
// a real I/O or parse failure.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Save marshals v as indented JSON and writes it to path atomically: it
// writes to a sibling temp file and renames over the target, so a
// concurrent reader never observes a half-written document (other than
// the documented truncation window on platforms without atomic rename
// onto an open file descriptor).
func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to rename atomic store file into place")
		return err
	}
	return nil
}

// LoadOrDefault is Load but swallows ErrNotExist, leaving v at its zero
// value — the common case for every store on a fresh config directory.
func LoadOrDefault(path string, v any) error {
	err := Load(path, v)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
