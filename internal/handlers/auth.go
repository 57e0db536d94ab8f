package handlers

import (
	"net/http"

	"github.com/pliu/pinchat/internal/auth"
	"github.com/pliu/pinchat/internal/middleware"
	"github.com/pliu/pinchat/internal/session"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthHandler struct {
	Workflow *auth.Workflow
	Sessions *middleware.Sessions
}

func (h *AuthHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if !decode(w, r, &req) {
		return
	}

	s, known := h.Sessions.Pending(r)
	if err := h.Workflow.UnlockWithPin(s, req.PIN); err != nil {
		Error(w, err)
		return
	}
	if !known {
		h.Sessions.Issue(w, s)
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *AuthHandler) OwnerLogin(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if !decode(w, r, &creds) {
		return
	}
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	if _, err := h.Workflow.AuthenticateOwner(r.Context(), s, creds.Password); err != nil {
		Error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *AuthHandler) UserLogin(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if !decode(w, r, &creds) {
		return
	}
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	chatID, err := h.Workflow.AuthenticateUser(r.Context(), s, creds.Username, creds.Password)
	if err != nil {
		Error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chat_id": chatID,
		"session": s.Snapshot(),
	})
}

// Logout returns the client to the lock screen and drops its session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if s, ok := middleware.SessionFromContext(r.Context()); ok {
		s.Logout()
		h.Sessions.Clear(w, s)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, session.Info{State: session.Locked})
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}
