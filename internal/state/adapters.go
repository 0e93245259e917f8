// Package state assembles every in-memory registry and store into the
// one long-lived object the dispatcher and HTTP server share, per
// spec.md §5's "one long-lived state object" design note.
package state

import (
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/disconnec/FeiSync/internal/store"
)

// transferStore adapts store.Paths to transfer.Engine's Store interface.
type transferStore struct{ paths store.Paths }

func (s transferStore) Save(tasks []*model.TransferTask) error {
	return store.Save(s.paths.Transfers(), store.TransfersDocument{Tasks: tasks})
}

// syncTaskStore adapts store.Paths to sync.Engine's TaskStore interface.
type syncTaskStore struct{ paths store.Paths }

func (s syncTaskStore) Save(tasks []*model.SyncTask) error {
	return store.Save(s.paths.SyncTasks(), store.SyncTasksDocument{Version: 1, Tasks: tasks})
}

// syncLogStoreAdapter adapts store.Paths to sync.Engine's LogStore interface.
type syncLogStoreAdapter struct{ paths store.Paths }

func (s syncLogStoreAdapter) Save(logs []model.SyncLogEntry) error {
	return store.Save(s.paths.SyncLogs(), store.SyncLogsDocument{Version: 1, Logs: logs})
}
