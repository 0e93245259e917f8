package model

import "time"

// TransferDirection is upload or download.
type TransferDirection string

const (
	DirectionUpload   TransferDirection = "upload"
	DirectionDownload TransferDirection = "download"
)

// TransferKind distinguishes a single file from a whole directory tree,
// crossed with direction (a directory transfer is one TransferTask; the
// files inside it are not tracked as tasks of their own).
type TransferKind string

const (
	KindUploadFile     TransferKind = "upload_file"
	KindUploadFolder   TransferKind = "upload_folder"
	KindDownloadFile   TransferKind = "download_file"
	KindDownloadFolder TransferKind = "download_folder"
)

// TransferStatus is the task's position in the state machine described
// in the transfer engine spec (pending -> running -> success, with
// paused/failed side states).
type TransferStatus string

const (
	StatusPending TransferStatus = "pending"
	StatusRunning TransferStatus = "running"
	StatusPaused  TransferStatus = "paused"
	StatusSuccess TransferStatus = "success"
	StatusFailed  TransferStatus = "failed"
)

// UploadFileResume is the continuation state for a chunked upload: which
// upload_id is in flight, where in the local file the next chunk starts,
// and the metadata needed to reattach without re-running Prepare.
type UploadFileResume struct {
	UploadID   string `json:"upload_id"`
	BlockSize  int64  `json:"block_size"`
	NextSeq    int    `json:"next_seq"`
	ParentNode string `json:"parent_node"`
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	Size       int64  `json:"size"`
}

// DownloadFileResume is the continuation state for a download: the temp
// file holding bytes received so far, the eventual rename target, and
// how many bytes have already landed on disk.
type DownloadFileResume struct {
	TempPath       string `json:"temp_path"`
	TargetPath     string `json:"target_path"`
	Downloaded     int64  `json:"downloaded"`
	Token          string `json:"token"`
	FileName       string `json:"file_name"`
}

// TransferResume carries exactly one of the two resume variants. At most
// one is ever populated, matching which kind the task is.
type TransferResume struct {
	UploadFile   *UploadFileResume   `json:"upload_file,omitempty"`
	DownloadFile *DownloadFileResume `json:"download_file,omitempty"`
}

// TransferTask is a persisted record of one upload or download, with
// enough resume state to restart after a crash or an explicit pause.
type TransferTask struct {
	ID           string            `json:"id"`
	Direction    TransferDirection `json:"direction"`
	Kind         TransferKind      `json:"kind"`
	DisplayName  string            `json:"display_name"`
	TenantID     string            `json:"tenant_id"`
	ParentToken  string            `json:"parent_token,omitempty"`
	ResourceToken string           `json:"resource_token,omitempty"`
	LocalPath    string            `json:"local_path"`
	Size         int64             `json:"size"`
	Transferred  int64             `json:"transferred"`
	Status       TransferStatus    `json:"status"`
	Message      string            `json:"message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Resume       *TransferResume   `json:"resume,omitempty"`
}

// RecoverAbnormalTermination implements the load-time invariant: any
// task found running or pending after a restart could not possibly
// still be in flight, so it is rewritten to failed.
func (t *TransferTask) RecoverAbnormalTermination(now time.Time) bool {
	if t.Status == StatusRunning || t.Status == StatusPending {
		t.Status = StatusFailed
		t.Message = "last run terminated abnormally"
		t.UpdatedAt = now
		return true
	}
	return false
}

// MarkSuccess clears resume state and forces transferred == size, the
// invariant the spec requires for every successful task.
func (t *TransferTask) MarkSuccess(now time.Time) {
	t.Status = StatusSuccess
	t.Transferred = t.Size
	t.Resume = nil
	t.Message = ""
	t.UpdatedAt = now
}

// MarkFailed preserves resume state (the engine's restart contract) and
// records the failure message.
func (t *TransferTask) MarkFailed(now time.Time, msg string) {
	t.Status = StatusFailed
	t.Message = msg
	t.UpdatedAt = now
}
