package model

import "time"

// SyncDirection selects which directional planner a run uses.
type SyncDirection string

const (
	DirectionLocalToCloud  SyncDirection = "local_to_cloud"
	DirectionCloudToLocal  SyncDirection = "cloud_to_local"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// DetectionMode names the change-detection strategy. All three values
// are accepted and persisted, but — per the spec's open question — all
// three currently resolve to the same size+mtime±2s equality check; see
// DESIGN.md.
type DetectionMode string

const (
	DetectionMetadata DetectionMode = "metadata"
	DetectionSize     DetectionMode = "size"
	DetectionChecksum DetectionMode = "checksum"
)

// ConflictStrategy resolves paths that changed on both sides between
// bidirectional runs.
type ConflictStrategy string

const (
	ConflictPreferLocal  ConflictStrategy = "prefer_local"
	ConflictPreferRemote ConflictStrategy = "prefer_remote"
	ConflictNewest       ConflictStrategy = "newest"
)

// SyncTaskStatus reflects the outcome of the most recent run.
type SyncTaskStatus string

const (
	SyncStatusIdle    SyncTaskStatus = "idle"
	SyncStatusRunning SyncTaskStatus = "running"
	SyncStatusSuccess SyncTaskStatus = "success"
	SyncStatusFailed  SyncTaskStatus = "failed"
)

// EntryType distinguishes a file from a folder in a remote snapshot.
type EntryType string

const (
	EntryFile   EntryType = "file"
	EntryFolder EntryType = "folder"
)

// SnapshotEntry is one path's agreed state as of the last successful
// run. Size/ModifiedAt/Checksum/Token are all optional: a zero value
// means "unknown," which the equality check treats permissively.
type SnapshotEntry struct {
	Path       string    `json:"path"`
	Size       *int64    `json:"size,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	Token      string    `json:"token,omitempty"`
	EntryType  EntryType `json:"entry_type,omitempty"`
}

// SyncTask is a persisted binding between a local directory, a remote
// folder, a direction, and the policy that governs one run.
type SyncTask struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Direction         SyncDirection    `json:"direction"`
	GroupID           string           `json:"group_id,omitempty"`
	TenantID          string           `json:"tenant_id"`
	RemoteFolderToken string           `json:"remote_folder_token"`
	RemoteFolderLabel string           `json:"remote_folder_label"`
	LocalPath         string           `json:"local_path"`
	Schedule          string           `json:"schedule,omitempty"`
	Enabled           bool             `json:"enabled"`
	Detection         DetectionMode    `json:"detection"`
	Conflict          ConflictStrategy `json:"conflict"`
	PropagateDelete   bool             `json:"propagate_delete"`
	Include           []string         `json:"include,omitempty"`
	Exclude           []string         `json:"exclude,omitempty"`

	LocalSnapshot  []SnapshotEntry `json:"local_snapshot,omitempty"`
	RemoteSnapshot []SnapshotEntry `json:"remote_snapshot,omitempty"`

	Status            SyncTaskStatus `json:"status"`
	Message           string         `json:"message,omitempty"`
	FailureCount      int            `json:"failure_count"`
	LinkedTransferIDs []string       `json:"linked_transfer_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSnapshots reports whether a previous successful run established a
// baseline. Absence of either snapshot means "first run" and disables
// deletion propagation for this run regardless of the configured flag.
func (t *SyncTask) HasSnapshots() bool {
	return t.LocalSnapshot != nil && t.RemoteSnapshot != nil
}

// ResetSnapshots implements the retarget invariant: editing local_path,
// remote_folder_token, or direction must clear both snapshots and the
// linked transfer ids so a stale snapshot can't drive a deletion against
// the new target.
func (t *SyncTask) ResetSnapshots(now time.Time, reason string) {
	t.LocalSnapshot = nil
	t.RemoteSnapshot = nil
	t.LinkedTransferIDs = nil
	t.Status = SyncStatusIdle
	t.Message = reason
	t.FailureCount = 0
	t.UpdatedAt = now
}

// SyncLogEntry is one append-only line of a sync run's narrative
// ("a.txt -> uploaded", "first run, snapshots not established", ...).
type SyncLogEntry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// ApiLogEntry is one append-only record of a dispatched command.
type ApiLogEntry struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Command       string         `json:"command"`
	Scope         string         `json:"scope"`
	DurationMS    int64          `json:"duration_ms"`
	Success       bool           `json:"success"`
	Meta          map[string]any `json:"meta,omitempty"`
	ResponsePreview string       `json:"response_preview,omitempty"`
}
