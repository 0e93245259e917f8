package transfer

import (
	"context"
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

// ClientFactory resolves a ready-to-use, token-refreshing cloudapi
// Client for a tenant. Wired by the state package from the Tenant
// Registry so the transfer engine never constructs tokens itself.
type ClientFactory func(ctx context.Context, tenantID string) (*cloudapi.Client, error)

// Store persists the full transfer task population after every
// mutation. Called outside the engine's lock, per the "writes snapshot
// the mutation and release the lock before persisting" rule in §5.
type Store interface {
	Save(tasks []*model.TransferTask) error
}

// EventSink is the fire-and-forget "transfer://event" channel observed
// by a UI; Publish must never block the engine.
type EventSink interface {
	Publish(task model.TransferTask)
}

// NopSink discards events; useful for tests and headless CLI runs.
type NopSink struct{}

func (NopSink) Publish(model.TransferTask) {}

// Engine owns the in-memory transfer task population, the active
// per-task Control set, and the plumbing to persist and emit progress.
type Engine struct {
	mu       sync.RWMutex
	tasks    map[string]*model.TransferTask
	controls map[string]*Control

	clients ClientFactory
	idx     *resourceindex.Index
	store   Store
	events  EventSink
}

func NewEngine(clients ClientFactory, idx *resourceindex.Index, store Store, events EventSink) *Engine {
	if events == nil {
		events = NopSink{}
	}
	return &Engine{
		tasks:    make(map[string]*model.TransferTask),
		controls: make(map[string]*Control),
		clients:  clients,
		idx:      idx,
		store:    store,
		events:   events,
	}
}

// Load replaces the task population at startup, applying the
// abnormal-termination recovery invariant: any running/pending task
// could not have survived the process restart.
func (e *Engine) Load(tasks []*model.TransferTask) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = make(map[string]*model.TransferTask, len(tasks))
	now := time.Now().UTC()
	for _, t := range tasks {
		t.RecoverAbnormalTermination(now)
		e.tasks[t.ID] = t
	}
}

// Snapshot returns every task, for persistence or listing.
func (e *Engine) Snapshot() []*model.TransferTask {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*model.TransferTask, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t)
	}
	return out
}

func (e *Engine) Get(id string) (*model.TransferTask, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[id]
	return t, ok
}

func (e *Engine) newTask(direction model.TransferDirection, kind model.TransferKind, tenantID, displayName, localPath string, size int64) *model.TransferTask {
	now := time.Now().UTC()
	t := &model.TransferTask{
		ID:          uuid.New().String(),
		Direction:   direction,
		Kind:        kind,
		DisplayName: displayName,
		TenantID:    tenantID,
		LocalPath:   localPath,
		Size:        size,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.mu.Lock()
	e.tasks[t.ID] = t
	e.mu.Unlock()
	e.persistAndEmit(t)
	metrics.ActiveTransfers.Inc()
	return t
}

// persistAndEmit snapshots the full population and saves it, then
// copies and emits the single task that changed. Both happen outside
// any lock the caller might be holding on the task itself, since the
// mutation has already landed in the map by the time this is called.
func (e *Engine) persistAndEmit(t *model.TransferTask) {
	if e.store != nil {
		if err := e.store.Save(e.Snapshot()); err != nil {
			log.Error().Err(err).Str("task_id", t.ID).Msg("failed to persist transfer tasks")
		}
	}
	cp := *t
	e.events.Publish(cp)
}

func (e *Engine) registerControl(id string) *Control {
	c := NewControl()
	e.mu.Lock()
	e.controls[id] = c
	e.mu.Unlock()
	return c
}

func (e *Engine) unregisterControl(id string) {
	e.mu.Lock()
	delete(e.controls, id)
	e.mu.Unlock()
}

func (e *Engine) getControl(id string) (*Control, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.controls[id]
	return c, ok
}

// Pause marks a running task paused; idempotent via Control.Pause.
func (e *Engine) Pause(id string) error {
	c, ok := e.getControl(id)
	if !ok {
		return apierr.New(apierr.NotFound, "task is not active")
	}
	c.Pause()
	e.setStatus(id, model.StatusPaused, "")
	return nil
}

// CancelTask sets the sticky cancellation flag on an active task.
func (e *Engine) CancelTask(id string) error {
	c, ok := e.getControl(id)
	if !ok {
		return apierr.New(apierr.NotFound, "task is not active")
	}
	c.Cancel()
	return nil
}

func (e *Engine) setStatus(id string, status model.TransferStatus, msg string) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if ok {
		t.Status = status
		if msg != "" {
			t.Message = msg
		}
		t.UpdatedAt = time.Now().UTC()
	}
	e.mu.Unlock()
	if ok {
		e.persistAndEmit(t)
	}
}

// fail transitions a task to failed, preserving resume state (the
// engine's restart contract), persists, unregisters the control, and
// returns the apierr so the caller can propagate it.
func (e *Engine) fail(id string, c *Control, err error) error {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if ok {
		t.MarkFailed(time.Now().UTC(), err.Error())
	}
	e.mu.Unlock()
	if ok {
		e.persistAndEmit(t)
		metrics.TransferTasksTotal.WithLabelValues(string(t.Direction), "failed").Inc()
		metrics.ActiveTransfers.Dec()
	}
	e.unregisterControl(id)
	log.Warn().Err(err).Str("task_id", id).Msg("transfer task failed")
	return err
}

// succeed transitions a task to success, clearing resume state.
func (e *Engine) succeed(id string, c *Control) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if ok {
		t.MarkSuccess(time.Now().UTC())
	}
	e.mu.Unlock()
	if ok {
		e.persistAndEmit(t)
		metrics.TransferTasksTotal.WithLabelValues(string(t.Direction), "success").Inc()
		metrics.TransferBytesTotal.WithLabelValues(string(t.Direction)).Add(float64(t.Transferred))
		metrics.ActiveTransfers.Dec()
		log.Info().Str("task_id", id).Str("name", t.DisplayName).Msg("transfer task succeeded")
	}
	e.unregisterControl(id)
}

// progress updates Transferred and persists+emits (but does not mark a
// terminal state), used after each chunk/Range write.
func (e *Engine) progress(id string, transferred, size int64, resume *model.TransferResume) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if ok {
		t.Transferred = transferred
		if size > 0 {
			t.Size = size
		}
		t.Resume = resume
		t.Status = model.StatusRunning
		t.UpdatedAt = time.Now().UTC()
	}
	e.mu.Unlock()
	if ok {
		e.persistAndEmit(t)
	}
}
