package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress means another sync run currently holds the lock.
var ErrRunInProgress = errors.New("a sync run is already in progress")

const (
	runLockKey = "vaultsync:run-lock"
	runLockTTL = 2 * time.Hour
)

// RunLock serializes sync runs across the worker and any manual trigger. The
// TTL is a backstop against a crashed holder, not a lease to renew.
type RunLock struct {
	rdb *redis.Client
}

func NewRunLock(redisAddr string) *RunLock {
	return &RunLock{rdb: redis.NewClient(&redis.Options{Addr: redisAddr})}
}

// Acquire takes the lock or returns ErrRunInProgress.
func (l *RunLock) Acquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, runLockKey, time.Now().UTC().Format(time.RFC3339), runLockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ErrRunInProgress
	}
	return nil
}

func (l *RunLock) Release(ctx context.Context) {
	if err := l.rdb.Del(ctx, runLockKey).Err(); err != nil {
		// The TTL cleans up eventually.
		log.Printf("release run lock: %v", err)
	}
}

func (l *RunLock) Close() error {
	return l.rdb.Close()
}
