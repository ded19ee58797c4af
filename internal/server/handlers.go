package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Saivel1/panelsync/internal/api"
	"github.com/Saivel1/panelsync/internal/mirror"
	"github.com/Saivel1/panelsync/internal/sub"
)

const maxWebhookBytes = 1 << 20

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{
		"service": "panelsync",
		"status":  "ok",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook ingests a panel event batch. Handled events always ack 200
// even when mirroring fails; the retry queue owns those failures. Only an
// undecodable payload is rejected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "unreadable request body")
		return
	}

	events, err := mirror.ParseEvents(body)
	if err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "payload is not a valid event array")
		return
	}

	s.deps.Coordinator.HandleBatch(r.Context(), events)
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "accepted",
		"events": len(events),
	})
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	s.redirectToLive(w, r, false)
}

func (s *Server) handleSubscriptionInfo(w http.ResponseWriter, r *http.Request) {
	s.redirectToLive(w, r, true)
}

// redirectToLive resolves the uuid to the first live panel link and sends
// the client there.
func (s *Server) redirectToLive(w http.ResponseWriter, r *http.Request, info bool) {
	uuid := chi.URLParam(r, "uuid")
	if uuid == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "missing subscription uuid")
		return
	}

	resolve := s.deps.Resolver.Resolve
	if info {
		resolve = s.deps.Resolver.ResolveInfo
	}

	target, err := resolve(r.Context(), uuid)
	switch {
	case err == nil:
		http.Redirect(w, r, target, http.StatusFound)
	case errors.Is(err, sub.ErrNotFound):
		api.WriteNotFound(w, "unknown subscription")
	case errors.Is(err, sub.ErrAllUnavailable):
		api.WriteServiceUnavailable(w, "no panel available")
	default:
		s.logger.Error("subscription resolution failed", "uuid", uuid, "error", err)
		api.WriteInternalError(w, "subscription resolution failed")
	}
}

// handleProvision creates the panel account and link record for a user.
func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "missing user id")
		return
	}

	rec, err := s.deps.Provisioner.EnsureUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("provisioning failed", "user_id", userID, "error", err)
		api.WriteServiceUnavailable(w, "provisioning failed")
		return
	}

	api.WriteJSON(w, http.StatusOK, rec)
}
