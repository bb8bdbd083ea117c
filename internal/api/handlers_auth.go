package api

import (
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/rdmartin/VaultSync/internal/auth"
	"github.com/rdmartin/VaultSync/internal/config"
	"github.com/rdmartin/VaultSync/internal/httputil"
	"github.com/rdmartin/VaultSync/internal/settings"
	"github.com/rdmartin/VaultSync/internal/upstream"
)

// handleLogin registers this client with the upstream account and starts an
// operator session. An existing API key re-binds a known account.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID       string `json:"client_id"`
		ExistingAPIKey string `json:"existing_api_key"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}

	secret, err := auth.DeriveSecret(req.ClientID, s.config.UpstreamSecret)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	resp, err := s.up.Register(r.Context(), secret, upstream.RegisterRequest{
		ClientID:       req.ClientID,
		ClientVersion:  s.version.Version,
		ExistingAPIKey: req.ExistingAPIKey,
	})
	if err != nil {
		log.Printf("API: registration failed: %v", err)
		httputil.WriteError(w, http.StatusUnauthorized, "REGISTRATION_FAILED", err.Error())
		return
	}

	if err := s.settingsRepo.Set(settings.KeyAPIKey, resp.APIKey); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to persist api key")
		return
	}

	token, err := s.sessions.IssueToken()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to issue session token")
		return
	}

	if err := s.sched.Reschedule(s.config.SyncIntervalMinutes); err != nil {
		log.Printf("API: reschedule after login: %v", err)
	}

	log.Printf("API: logged in to upstream account (client %s)", req.ClientID)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"token":              token,
		"client_id":          req.ClientID,
		"min_client_version": resp.MinClientVersion,
	})
}

// handleLogout clears the account binding and all local sync state: the API
// key, the identity store and every date-added sort annotation.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.settingsRepo.Delete(settings.KeyAPIKey); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to clear api key")
		return
	}
	if err := s.ids.Reset(); err != nil {
		log.Printf("API: reset identity store: %v", err)
	}
	if err := s.dateAdded.ResetAll(r.Context()); err != nil {
		log.Printf("API: strip sort annotations: %v", err)
	}
	s.sched.Unschedule()

	log.Println("API: logged out, local sync state cleared")
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleLoginToken returns a one-time deep link into the upstream website.
func (s *Server) handleLoginToken(w http.ResponseWriter, r *http.Request) {
	apiKey, err := s.settingsRepo.Get(settings.KeyAPIKey)
	if err != nil || apiKey == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "NOT_LOGGED_IN", "no upstream account is linked")
		return
	}
	token, err := s.up.GetLoginToken(r.Context(), apiKey)
	if err != nil {
		httputil.WriteError(w, http.StatusBadGateway, "UPSTREAM", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"token": token,
		"url":   config.LoginURL + "?token=" + token,
	})
}
