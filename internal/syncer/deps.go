package syncer

import (
	"time"

	"github.com/google/uuid"
)

// IdentityStore is the durable mapping consumed by the sync engine. The
// Postgres-backed implementation lives in internal/identity; tests swap in an
// in-memory fake.
type IdentityStore interface {
	Put(sid string, localID uuid.UUID) error
	GetBySID(sid string) (uuid.UUID, bool, error)
	GetByLocalID(localID uuid.UUID) (string, bool, error)
	RemoveBySID(sid string) error
	RemoveByLocalID(localID uuid.UUID) error

	AddPoster(localID uuid.UUID) error
	RemovePoster(localID uuid.UUID) error
	HasPoster(localID uuid.UUID) (bool, error)

	AddDateAdded(sid string) error
	RemoveDateAdded(sid string) error
	HasDateAdded(sid string) (bool, error)
	HasDateAddedByLocalID(localID uuid.UUID) (bool, error)

	AddSyncRun(at time.Time) error
	LastSyncRun() (time.Time, bool, error)
}

// Notifier fans events out to connected operator clients. Implementations
// must not block; the reconciliation loop never waits on observers.
type Notifier interface {
	Broadcast(event string, data interface{})
}
