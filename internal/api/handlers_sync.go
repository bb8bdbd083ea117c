package api

import (
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rdmartin/VaultSync/internal/httputil"
	"github.com/rdmartin/VaultSync/internal/jobs"
	"github.com/rdmartin/VaultSync/internal/settings"
)

// handleStatus reports account state, run history and live progress.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	apiKey, _ := s.settingsRepo.Get(settings.KeyAPIKey)

	status := map[string]interface{}{
		"version":     s.version.Version,
		"api_version": s.version.APIVersion,
		"logged_in":   apiKey != "",
		"ws_clients":  s.wsHub.ClientCount(),
	}

	if last, ok, err := s.ids.LastSyncRun(); err == nil && ok {
		status["last_sync"] = last
		status["minutes_since_last_sync"] = int(time.Since(last).Minutes())
	}
	if next := s.sched.NextRunIn(); next >= 0 {
		status["minutes_until_next_sync"] = next
	}
	if progress, running := s.engine.Progress(); running {
		status["sync_running"] = true
		status["sync_progress"] = progress
	}

	httputil.WriteJSON(w, http.StatusOK, status)
}

// handleTriggerSync enqueues a manual run. The fixed task id and the run lock
// make double triggers harmless.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	apiKey, _ := s.settingsRepo.Get(settings.KeyAPIKey)
	if apiKey == "" {
		httputil.WriteError(w, http.StatusConflict, "NOT_LOGGED_IN", "log in before triggering a sync")
		return
	}

	taskID, err := s.queue.EnqueueUnique(jobs.TaskSyncCollections,
		jobs.SyncPayload{Trigger: "manual"}, "sync:collections",
		asynq.MaxRetry(0), asynq.Timeout(1*time.Hour), asynq.Retention(10*time.Minute))
	if err != nil {
		log.Printf("API: enqueue sync: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to enqueue sync")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// handleLogs returns the retained log lines, oldest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.ring.Lines())
}
