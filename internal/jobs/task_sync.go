package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/rdmartin/VaultSync/internal/syncer"
)

// SyncPayload records what started the run; the run itself takes no input.
type SyncPayload struct {
	Trigger string `json:"trigger"` // "schedule" or "manual"
}

// syncRunner is the slice of the engine the task handler drives.
type syncRunner interface {
	Sync(ctx context.Context) error
}

// runLocker serializes runs; *RunLock is the Redis-backed implementation.
type runLocker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context)
}

type SyncHandler struct {
	engine   syncRunner
	lock     runLocker
	notifier syncer.Notifier
}

func NewSyncHandler(engine syncRunner, lock runLocker, notifier syncer.Notifier) *SyncHandler {
	return &SyncHandler{engine: engine, lock: lock, notifier: notifier}
}

// ProcessTask runs one sync. It always returns nil after the lock is taken:
// a failed run waits for the next schedule, it is never retried by the queue.
func (h *SyncHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p SyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	if err := h.lock.Acquire(ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			log.Printf("Job: sync (%s) skipped, %v", p.Trigger, err)
			return nil
		}
		return err
	}
	defer h.lock.Release(context.WithoutCancel(ctx))

	log.Printf("Job: sync run starting (trigger=%s)", p.Trigger)
	if h.notifier != nil {
		h.notifier.Broadcast("sync:start", map[string]string{"trigger": p.Trigger})
	}

	if err := h.engine.Sync(ctx); err != nil {
		log.Printf("Job: sync run failed (trigger=%s): %v", p.Trigger, err)
		if h.notifier != nil {
			h.notifier.Broadcast("sync:failed", map[string]string{"error": err.Error()})
		}
		return nil
	}

	log.Printf("Job: sync run complete (trigger=%s)", p.Trigger)
	if h.notifier != nil {
		h.notifier.Broadcast("sync:complete", map[string]string{"trigger": p.Trigger})
	}
	return nil
}
