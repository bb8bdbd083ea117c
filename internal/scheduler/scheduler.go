// Package scheduler owns the recurring sync trigger. It only enqueues; the
// queue worker and the run lock decide whether a run actually happens.
package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/rdmartin/VaultSync/internal/jobs"
)

type Scheduler struct {
	cron  *cron.Cron
	queue *jobs.Queue

	mu      sync.Mutex
	entry   cron.EntryID
	minutes int
}

func New(queue *jobs.Queue) *Scheduler {
	return &Scheduler{cron: cron.New(), queue: queue}
}

// Run starts the cron loop without scheduling anything. Entries can be added
// later, e.g. once an account is linked.
func (s *Scheduler) Run() {
	s.cron.Start()
}

// Start schedules the sync every intervalMinutes and runs the cron loop.
func (s *Scheduler) Start(intervalMinutes int) error {
	if err := s.Reschedule(intervalMinutes); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("Scheduler: sync scheduled every %d minutes", intervalMinutes)
	return nil
}

// Reschedule replaces the sync entry with a new interval. Safe while running.
func (s *Scheduler) Reschedule(intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("invalid sync interval: %d minutes", intervalMinutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	spec := fmt.Sprintf("@every %dm", intervalMinutes)
	entry, err := s.cron.AddFunc(spec, s.enqueueSync)
	if err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	s.entry = entry
	s.minutes = intervalMinutes
	return nil
}

// Unschedule removes the sync entry, e.g. on logout.
func (s *Scheduler) Unschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
}

// NextRunIn returns minutes until the next scheduled sync, or -1 when none.
func (s *Scheduler) NextRunIn() int {
	s.mu.Lock()
	id := s.entry
	s.mu.Unlock()
	if id == 0 {
		return -1
	}
	entry := s.cron.Entry(id)
	if entry.Next.IsZero() {
		return -1
	}
	return int(time.Until(entry.Next).Minutes())
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) enqueueSync() {
	// A failed run is not retried; the next cron tick is the retry.
	_, err := s.queue.EnqueueUnique(jobs.TaskSyncCollections,
		jobs.SyncPayload{Trigger: "schedule"}, "sync:collections",
		asynq.MaxRetry(0))
	if err != nil {
		log.Printf("Scheduler: failed to enqueue sync: %v", err)
	}
}
