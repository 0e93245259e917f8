package store

import "github.com/disconnec/FeiSync/internal/model"

// TenantsDocument is the on-disk shape of tenants.json.
type TenantsDocument struct {
	Tenants []*model.Tenant `json:"tenants"`
	Groups  []*model.Group  `json:"groups"`
}

// ResourceIndexDocument is the on-disk shape of resource-index.json: a
// flat token -> tenant id map, not wrapped in an envelope.
type ResourceIndexDocument map[string]string

// TransfersDocument is the on-disk shape of transfers.json.
type TransfersDocument struct {
	Tasks []*model.TransferTask `json:"tasks"`
}

// SyncTasksDocument is the on-disk shape of sync_tasks.json.
type SyncTasksDocument struct {
	Version int              `json:"version"`
	Tasks   []*model.SyncTask `json:"tasks"`
}

// SyncLogsDocument is the on-disk shape of sync_logs.json.
type SyncLogsDocument struct {
	Version int                   `json:"version"`
	Logs    []model.SyncLogEntry `json:"logs"`
}

// APILogsDocument is the on-disk shape of api_logs.json, capped at
// MaxAPILogEntries via ring-buffer semantics in memory before save.
type APILogsDocument struct {
	Version int                  `json:"version"`
	Logs    []model.ApiLogEntry `json:"logs"`
}

// MaxAPILogEntries bounds the in-memory/on-disk api log per spec §3.
const MaxAPILogEntries = 2000
