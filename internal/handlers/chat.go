package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pliu/pinchat/internal/chatsync"
	"github.com/pliu/pinchat/internal/dm"
	"github.com/pliu/pinchat/internal/middleware"
	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/session"
	"github.com/pliu/pinchat/internal/store"
)

// ChatHandler serves chat reads and writes. Routes are expected behind
// middleware.RequireAuth.
type ChatHandler struct {
	Store  store.Store
	Engine *chatsync.Engine
	DM     *dm.Provisioner
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type ReactionRequest struct {
	ReactionType string `json:"reaction_type"`
}

func info(r *http.Request) session.Info {
	s, _ := middleware.SessionFromContext(r.Context())
	return s.Snapshot()
}

// ResolveDM returns the DM chat for an app user, creating it if needed. An
// owner may resolve any of their users; a user only themselves.
func (h *ChatHandler) ResolveDM(w http.ResponseWriter, r *http.Request) {
	me := info(r)
	userID := mux.Vars(r)["userID"]

	user, err := h.Store.GetAppUser(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	if (me.Role == models.RoleOwner && user.OwnerID != me.UserID) ||
		(me.Role == models.RoleGirlfriend && user.ID != me.UserID) {
		Error(w, chatsync.ErrForbidden)
		return
	}

	chatID, err := h.DM.ResolveFor(r.Context(), user)
	if err != nil {
		Error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"chat_id": chatID})
}

func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	me := info(r)
	chatID := mux.Vars(r)["id"]

	if err := h.Engine.Authorize(r.Context(), chatID, me.Role, me.UserID); err != nil {
		Error(w, err)
		return
	}
	snap, err := h.Engine.Load(r.Context(), chatID)
	if err != nil {
		Error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	me := info(r)
	chatID := mux.Vars(r)["id"]

	var req SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Engine.Authorize(r.Context(), chatID, me.Role, me.UserID); err != nil {
		Error(w, err)
		return
	}
	msg, err := h.Engine.SendMessage(r.Context(), chatID, me.UserID, me.Role, req.Content)
	if err != nil {
		Error(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	me := info(r)
	messageID := mux.Vars(r)["id"]

	var req ReactionRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.Store.GetMessage(r.Context(), messageID)
	if err != nil {
		Error(w, err)
		return
	}
	if err := h.Engine.Authorize(r.Context(), msg.ChatID, me.Role, me.UserID); err != nil {
		Error(w, err)
		return
	}
	result, err := h.Engine.ToggleReaction(r.Context(), messageID, me.UserID, me.Role, req.ReactionType)
	if err != nil {
		Error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]chatsync.Toggle{"result": result})
}
