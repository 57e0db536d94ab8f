package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pliu/pinchat/internal/dashboard"
)

// DashboardHandler is the owner-only API. Routes are expected behind
// middleware.RequireAuth(models.RoleOwner).
type DashboardHandler struct {
	Service *dashboard.Service
}

type CreateUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type UpdateUserRequest struct {
	Active *bool `json:"active"`
}

type CreateChatRequest struct {
	Title string `json:"title"`
}

type AssignUserRequest struct {
	UserID string `json:"user_id"`
}

func (h *DashboardHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context(), info(r).UserID)
	if err != nil {
		Error(w, err)
		return
	}
	if users == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *DashboardHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decode(w, r, &req) {
		return
	}
	user, chatID, err := h.Service.CreateUser(r.Context(), info(r).UserID, req.Username, req.DisplayName, req.Password)
	if err != nil {
		Error(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "chat_id": chatID})
}

func (h *DashboardHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Active == nil {
		Error(w, dashboard.ErrMissingFields)
		return
	}
	if err := h.Service.SetUserActive(r.Context(), info(r).UserID, mux.Vars(r)["id"], *req.Active); err != nil {
		Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DashboardHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.Service.ListChats(r.Context(), info(r).UserID)
	if err != nil {
		Error(w, err)
		return
	}
	if chats == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *DashboardHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if !decode(w, r, &req) {
		return
	}
	chat, err := h.Service.CreateChat(r.Context(), info(r).UserID, req.Title)
	if err != nil {
		Error(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (h *DashboardHandler) AssignUser(w http.ResponseWriter, r *http.Request) {
	var req AssignUserRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Service.AssignUser(r.Context(), info(r).UserID, req.UserID, mux.Vars(r)["id"]); err != nil {
		Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DashboardHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteChat(r.Context(), info(r).UserID, mux.Vars(r)["id"]); err != nil {
		Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
