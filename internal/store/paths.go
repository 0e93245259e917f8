package store

import "path/filepath"

// Paths resolves every persisted filename under a single config
// directory, matching the file table in spec.md §6.
type Paths struct {
	Dir string
}

func (p Paths) Tenants() string        { return filepath.Join(p.Dir, "tenants.json") }
func (p Paths) ResourceIndex() string   { return filepath.Join(p.Dir, "resource-index.json") }
func (p Paths) Security() string       { return filepath.Join(p.Dir, "security.json") }
func (p Paths) Transfers() string      { return filepath.Join(p.Dir, "transfers.json") }
func (p Paths) SyncTasks() string      { return filepath.Join(p.Dir, "sync_tasks.json") }
func (p Paths) SyncLogs() string       { return filepath.Join(p.Dir, "sync_logs.json") }
func (p Paths) APILogs() string        { return filepath.Join(p.Dir, "api_logs.json") }
func (p Paths) LogConfig() string      { return filepath.Join(p.Dir, "log_config.json") }
func (p Paths) APIServerConfig() string { return filepath.Join(p.Dir, "api_server.json") }
