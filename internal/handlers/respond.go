package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pliu/pinchat/internal/auth"
	"github.com/pliu/pinchat/internal/chatsync"
	"github.com/pliu/pinchat/internal/dashboard"
	"github.com/pliu/pinchat/internal/middleware"
	"github.com/pliu/pinchat/internal/session"
	"github.com/pliu/pinchat/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusFor maps a domain error to an HTTP status and a message that is safe
// to show the client.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredential):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrAccessDenied),
		errors.Is(err, chatsync.ErrForbidden),
		errors.Is(err, dashboard.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, chatsync.ErrEmptyMessage),
		errors.Is(err, chatsync.ErrEmptyReaction),
		errors.Is(err, dashboard.ErrMissingFields):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "Already exists"
	default:
		return http.StatusInternalServerError, "Operation failed"
	}
}

// Error writes err using StatusFor. Server errors are logged since the client
// only sees a generic message.
func Error(w http.ResponseWriter, err error) {
	status, msg := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("handlers: %v", err)
	}
	http.Error(w, msg, status)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// currentSession returns the request's session or answers 403 itself.
func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		Error(w, session.ErrInvalidTransition)
		return nil, false
	}
	return s, true
}
