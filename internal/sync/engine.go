package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/cloudapi"
	"github.com/disconnec/FeiSync/internal/metrics"
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/disconnec/FeiSync/internal/resourceindex"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ClientFactory resolves a ready-to-use, token-refreshing cloudapi Client
// for a tenant; wired by the state package from the Tenant Registry, the
// same seam transfer.Engine uses.
type ClientFactory func(ctx context.Context, tenantID string) (*cloudapi.Client, error)

// TaskStore persists the full sync task population after every mutation.
type TaskStore interface {
	Save(tasks []*model.SyncTask) error
}

// LogStore persists the full sync log population (append-only, but
// rewritten whole per the file-atomicity rule in spec §5).
type LogStore interface {
	Save(logs []model.SyncLogEntry) error
}

// Engine owns the in-memory sync task population and its run logs, and
// drives scan -> diff -> plan -> execute -> rescan for each trigger.
type Engine struct {
	mu    sync.RWMutex
	tasks map[string]*model.SyncTask
	logs  []model.SyncLogEntry

	running sync.Map // taskID -> struct{}, rejects concurrent triggers

	clients   ClientFactory
	idx       *resourceindex.Index
	taskStore TaskStore
	logStore  LogStore
}

func NewEngine(clients ClientFactory, idx *resourceindex.Index, taskStore TaskStore, logStore LogStore) *Engine {
	return &Engine{
		tasks:     make(map[string]*model.SyncTask),
		clients:   clients,
		idx:       idx,
		taskStore: taskStore,
		logStore:  logStore,
	}
}

// Load replaces the task population at startup. As with transfer tasks,
// a sync task that was mid-run at crash time is marked failed with an
// abnormal-termination message. There is no partial-progress resume for
// a sync run; the next trigger starts a full run.
func (e *Engine) Load(tasks []*model.SyncTask, logs []model.SyncLogEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = make(map[string]*model.SyncTask, len(tasks))
	for _, t := range tasks {
		if t.Status == model.SyncStatusRunning {
			t.Status = model.SyncStatusFailed
			t.Message = "last run terminated abnormally"
		}
		e.tasks[t.ID] = t
	}
	e.logs = logs
}

func (e *Engine) Snapshot() []*model.SyncTask {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*model.SyncTask, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t)
	}
	return out
}

func (e *Engine) Get(id string) (*model.SyncTask, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[id]
	return t, ok
}

func (e *Engine) Add(t *model.SyncTask) {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = model.SyncStatusIdle
	}
	e.mu.Lock()
	e.tasks[t.ID] = t
	e.mu.Unlock()
	e.persistTasks()
}

// UpdateRetarget applies an edit to local_path/remote_folder_token/
// direction and, per spec §4.4.4, resets both snapshots so a stale
// baseline can't drive a deletion against the new target.
func (e *Engine) UpdateRetarget(id string, mutate func(t *model.SyncTask)) error {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if !ok {
		e.mu.Unlock()
		return apierr.New(apierr.NotFound, "sync task not found")
	}
	before := *t
	mutate(t)
	retargeted := before.LocalPath != t.LocalPath ||
		before.RemoteFolderToken != t.RemoteFolderToken ||
		before.Direction != t.Direction
	if retargeted {
		t.ResetSnapshots(time.Now().UTC(), "retargeted: snapshots cleared")
	} else {
		t.UpdatedAt = time.Now().UTC()
	}
	e.mu.Unlock()
	e.persistTasks()
	return nil
}

func (e *Engine) Remove(id string) {
	e.mu.Lock()
	delete(e.tasks, id)
	e.mu.Unlock()
	e.persistTasks()
}

func (e *Engine) persistTasks() {
	if e.taskStore == nil {
		return
	}
	if err := e.taskStore.Save(e.Snapshot()); err != nil {
		log.Error().Err(err).Msg("failed to persist sync tasks")
	}
}

func (e *Engine) appendLog(taskID, level, message string) {
	entry := model.SyncLogEntry{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}
	e.mu.Lock()
	e.logs = append(e.logs, entry)
	logsCopy := make([]model.SyncLogEntry, len(e.logs))
	copy(logsCopy, e.logs)
	e.mu.Unlock()
	if e.logStore != nil {
		if err := e.logStore.Save(logsCopy); err != nil {
			log.Error().Err(err).Msg("failed to persist sync logs")
		}
	}
}

// LogsForTask returns up to limit of taskID's log entries, newest first —
// the read-back counterpart to appendLog, matching list_sync_logs_by_task.
func (e *Engine) LogsForTask(taskID string, limit int) []model.SyncLogEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.SyncLogEntry, 0, len(e.logs))
	for _, entry := range e.logs {
		if entry.TaskID == taskID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Trigger runs one sync task to completion synchronously. A second
// trigger on the same task id while one is already running is rejected,
// per the per-task-mutex rule in spec §5.
func (e *Engine) Trigger(ctx context.Context, id string) error {
	if _, already := e.running.LoadOrStore(id, struct{}{}); already {
		return apierr.New(apierr.Conflict, "sync task is already running")
	}
	defer e.running.Delete(id)

	t, ok := e.Get(id)
	if !ok {
		return apierr.New(apierr.NotFound, "sync task not found")
	}
	if !t.Enabled {
		return apierr.New(apierr.BadInput, "sync task is disabled")
	}

	e.setStatus(t.ID, model.SyncStatusRunning, "")
	e.appendLog(t.ID, "info", "run started")

	start := time.Now()
	client, err := e.clients(ctx, t.TenantID)
	if err != nil {
		e.fail(t.ID, "resolve tenant client failed: "+err.Error())
		metrics.SyncRunsTotal.WithLabelValues("failed").Inc()
		return apierr.Wrap(apierr.Upstream, "resolve tenant client", err)
	}

	runErr := e.runOnce(ctx, t, client)
	metrics.SyncRunDuration.Observe(time.Since(start).Seconds())
	if runErr != nil {
		e.fail(t.ID, runErr.Error())
		metrics.SyncRunsTotal.WithLabelValues("failed").Inc()
		return runErr
	}
	e.succeed(t.ID)
	metrics.SyncRunsTotal.WithLabelValues("success").Inc()
	return nil
}

func (e *Engine) runOnce(ctx context.Context, t *model.SyncTask, client syncClient) error {
	filters := filterSet{include: t.Include, exclude: t.Exclude}

	local, err := scanLocal(t.LocalPath, filters)
	if err != nil {
		return err
	}
	remote, folderTokens, err := scanRemote(ctx, client, t.RemoteFolderToken, filters)
	if err != nil {
		return err
	}
	e.registerScanTokens(t.TenantID, remote, folderTokens)

	localByPath := indexByPath(local)
	remoteByPath := indexByPath(remote)
	hasSnapshots := t.HasSnapshots()

	if !hasSnapshots {
		e.appendLog(t.ID, "info", "first run, snapshots not established")
	}

	var plan Plan
	switch t.Direction {
	case model.DirectionLocalToCloud:
		plan = planLocalToCloud(localByPath, remoteByPath, hasSnapshots, t.PropagateDelete)
	case model.DirectionCloudToLocal:
		plan = planCloudToLocal(localByPath, remoteByPath, hasSnapshots, t.PropagateDelete)
	case model.DirectionBidirectional:
		prevLocal := indexByPath(t.LocalSnapshot)
		prevRemote := indexByPath(t.RemoteSnapshot)
		plan = planBidirectional(localByPath, remoteByPath, prevLocal, prevRemote, t.Conflict, t.PropagateDelete)
	default:
		return apierr.New(apierr.BadInput, "unknown sync direction")
	}

	for _, line := range plan.ConflictLogs {
		e.appendLog(t.ID, "info", line)
	}

	// Fixed execution order: uploads, downloads, remote deletes, local
	// deletes — minimizes transient inconsistency on interruption.
	for _, rel := range plan.Uploads {
		parentToken, err := ensureRemoteParent(ctx, client, folderTokens, rel)
		if err != nil {
			return err
		}
		e.register(t.TenantID, parentToken)
		token, _, err := uploadFile(ctx, client, t.LocalPath, rel, parentToken)
		if err != nil {
			e.appendLog(t.ID, "error", rel+" -> upload failed: "+err.Error())
			return err
		}
		e.appendLog(t.ID, "info", rel+" -> uploaded")
		e.register(t.TenantID, token)
	}
	for _, rel := range plan.Downloads {
		re := remoteByPath[rel]
		if _, err := downloadFile(ctx, client, t.LocalPath, rel, re.Token); err != nil {
			e.appendLog(t.ID, "error", rel+" -> download failed: "+err.Error())
			return err
		}
		e.appendLog(t.ID, "info", rel+" -> downloaded")
	}
	for _, rel := range plan.RemoteRemovals {
		re, ok := remoteByPath[rel]
		if !ok {
			continue
		}
		if err := deleteRemoteFile(ctx, client, re.Token); err != nil {
			e.appendLog(t.ID, "error", rel+" -> delete_remote failed: "+err.Error())
			return err
		}
		e.appendLog(t.ID, "info", rel+" -> deleted_remote")
	}
	for _, rel := range plan.LocalRemovals {
		if err := deleteLocalFile(t.LocalPath, rel); err != nil {
			e.appendLog(t.ID, "error", rel+" -> delete_local failed: "+err.Error())
			return err
		}
		e.appendLog(t.ID, "info", rel+" -> deleted_local")
	}

	// Rescan both sides post-execution so the persisted snapshot reflects
	// newly minted tokens/mtimes rather than pre-run state.
	newLocal, err := scanLocal(t.LocalPath, filters)
	if err != nil {
		return err
	}
	newRemote, newFolderTokens, err := scanRemote(ctx, client, t.RemoteFolderToken, filters)
	if err != nil {
		return err
	}
	e.registerScanTokens(t.TenantID, newRemote, newFolderTokens)

	e.mu.Lock()
	t.LocalSnapshot = newLocal
	t.RemoteSnapshot = newRemote
	e.mu.Unlock()
	e.persistTasks()
	return nil
}

// register records token under tenantID in the resource index, per
// spec.md §4.2: every upload/creation a sync run performs must leave the
// new token resolvable by a later move/delete/download call.
func (e *Engine) register(tenantID, token string) {
	if e.idx == nil {
		return
	}
	e.idx.Register(token, tenantID)
}

// registerScanTokens registers every file and folder token a remote scan
// observed, mirroring the same "every listing observation registers its
// tokens" rule a folder listing obeys elsewhere in the system.
func (e *Engine) registerScanTokens(tenantID string, entries []model.SnapshotEntry, folderTokens map[string]string) {
	if e.idx == nil {
		return
	}
	tokens := make([]string, 0, len(entries)+len(folderTokens))
	for _, entry := range entries {
		tokens = append(tokens, entry.Token)
	}
	for _, tok := range folderTokens {
		tokens = append(tokens, tok)
	}
	e.idx.RegisterMany(tokens, tenantID)
}

func (e *Engine) setStatus(id string, status model.SyncTaskStatus, msg string) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if ok {
		t.Status = status
		t.Message = msg
		t.UpdatedAt = time.Now().UTC()
	}
	e.mu.Unlock()
	if ok {
		e.persistTasks()
	}
}

func (e *Engine) fail(id, msg string) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if ok {
		t.Status = model.SyncStatusFailed
		t.Message = msg
		t.FailureCount++
		t.UpdatedAt = time.Now().UTC()
	}
	e.mu.Unlock()
	if ok {
		e.persistTasks()
		e.appendLog(id, "error", "run failed: "+msg)
	}
}

func (e *Engine) succeed(id string) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if ok {
		t.Status = model.SyncStatusSuccess
		t.Message = ""
		t.FailureCount = 0
		t.UpdatedAt = time.Now().UTC()
	}
	e.mu.Unlock()
	if ok {
		e.persistTasks()
		e.appendLog(id, "info", "run succeeded")
	}
}
