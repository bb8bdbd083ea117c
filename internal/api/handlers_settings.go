package api

import (
	"log"
	"net/http"

	"github.com/spf13/cast"

	"github.com/rdmartin/VaultSync/internal/httputil"
	"github.com/rdmartin/VaultSync/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.settingsRepo.GetAll()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings")
		return
	}
	// The API key never leaves the server.
	out := make([]settings.Setting, 0, len(all))
	for _, st := range all {
		if st.Key == settings.KeyAPIKey {
			continue
		}
		out = append(out, st)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// handleUpdateSettings upserts key/value pairs. A new sync interval takes
// effect immediately.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	for key, value := range req {
		if key == settings.KeyAPIKey {
			httputil.WriteError(w, http.StatusForbidden, "FORBIDDEN", "the api key cannot be set directly, use login")
			return
		}
		if key == settings.KeySyncInterval {
			minutes := cast.ToInt(value)
			if minutes <= 0 {
				httputil.WriteError(w, http.StatusBadRequest, "INVALID_VALUE", "sync interval must be a positive number of minutes")
				return
			}
			if err := s.sched.Reschedule(minutes); err != nil {
				log.Printf("API: reschedule: %v", err)
				httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to reschedule sync")
				return
			}
		}
		if err := s.settingsRepo.Set(key, value); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to save setting")
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
