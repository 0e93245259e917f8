package store

import (
	"encoding/json"
	"os"

	"github.com/disconnec/FeiSync/internal/model"
	"github.com/rs/zerolog/log"
)

// APILogStore owns the bounded, persisted api_logs.json population and
// the optional mirrored feisync_api.log line-per-entry file.
type APILogStore struct {
	path    string
	entries []model.ApiLogEntry
	cfg     model.LogConfig
}

func NewAPILogStore(path string) *APILogStore {
	return &APILogStore{path: path}
}

// Load reads the persisted log population, already capped by a prior
// save, and the log-mirroring config that governs appends going forward.
func (s *APILogStore) Load(cfg model.LogConfig) error {
	var doc APILogsDocument
	if err := LoadOrDefault(s.path, &doc); err != nil {
		return err
	}
	s.entries = doc.Logs
	s.cfg = cfg
	return nil
}

// Snapshot returns every currently retained entry.
func (s *APILogStore) Snapshot() []model.ApiLogEntry {
	out := make([]model.ApiLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Append adds one entry, trims to MaxAPILogEntries (oldest first),
// persists the whole document, and mirrors to the rotating log file if
// configured.
func (s *APILogStore) Append(entry model.ApiLogEntry) {
	s.entries = append(s.entries, entry)
	if len(s.entries) > MaxAPILogEntries {
		s.entries = s.entries[len(s.entries)-MaxAPILogEntries:]
	}
	doc := APILogsDocument{Version: 1, Logs: s.entries}
	if err := Save(s.path, doc); err != nil {
		log.Error().Err(err).Msg("failed to persist api logs")
	}
	s.mirrorToFile(entry)
}

// mirrorToFile appends one JSON line to <directory>/feisync_api.log when
// enabled, truncating (rotating by deletion) once the file exceeds
// max_size_mb, per spec §6.
func (s *APILogStore) mirrorToFile(entry model.ApiLogEntry) {
	if !s.cfg.Enabled || s.cfg.Directory == "" {
		return
	}
	logPath := s.cfg.Directory + "/feisync_api.log"

	if info, err := os.Stat(logPath); err == nil {
		limitBytes := int64(s.cfg.MaxSizeMB) * 1024 * 1024
		if info.Size() > limitBytes {
			if err := os.Remove(logPath); err != nil {
				log.Error().Err(err).Str("path", logPath).Msg("failed to rotate api log file")
			}
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal api log line")
		return
	}
	line = append(line, '\n')

	if err := os.MkdirAll(s.cfg.Directory, 0o755); err != nil {
		log.Error().Err(err).Msg("failed to create log directory")
		return
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Error().Err(err).Str("path", logPath).Msg("failed to open api log file")
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		log.Error().Err(err).Str("path", logPath).Msg("failed to append api log line")
	}
}
