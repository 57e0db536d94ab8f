package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pliu/pinchat/internal/models"
)

func TestDashboardUsers(t *testing.T) {
	e := newEnv(t)
	cookie := e.ownerCookie(t)

	rr := e.request("GET", "/owner/users", nil, cookie)
	if rr.Code != http.StatusOK || rr.Body.String() != "[]\n" {
		t.Fatalf("Expected empty list, got %d %q", rr.Code, rr.Body.String())
	}

	if rr := e.request("POST", "/owner/users", CreateUserRequest{Username: "alice"}, cookie); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected missing fields to be rejected, got %d", rr.Code)
	}
	alice := e.createUser(t, cookie, "alice")
	if rr := e.request("POST", "/owner/users", CreateUserRequest{Username: "alice", DisplayName: "A", Password: "pw"}, cookie); rr.Code != http.StatusConflict {
		t.Errorf("Expected duplicate username to conflict, got %d", rr.Code)
	}

	rr = e.request("GET", "/owner/users", nil, cookie)
	body := rr.Body.Bytes()
	var users []models.AppUser
	json.Unmarshal(body, &users)
	if len(users) != 1 || users[0].ID != alice.User.ID {
		t.Errorf("Unexpected users %+v", users)
	}
	var raw []map[string]any
	json.Unmarshal(body, &raw)
	for _, u := range raw {
		if _, ok := u["password_hash"]; ok {
			t.Error("Password hash leaked")
		}
	}

	if rr := e.request("PATCH", "/owner/users/"+alice.User.ID, map[string]any{}, cookie); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected missing active flag to be rejected, got %d", rr.Code)
	}
	if rr := e.request("PATCH", "/owner/users/"+alice.User.ID, map[string]bool{"active": false}, cookie); rr.Code != http.StatusNoContent {
		t.Fatalf("Deactivate failed: %d", rr.Code)
	}
	if rr := e.request("PATCH", "/owner/users/missing", map[string]bool{"active": false}, cookie); rr.Code != http.StatusNotFound {
		t.Errorf("Expected missing user, got %d", rr.Code)
	}

	login := e.unlocked(t)
	if rr := e.request("POST", "/api/auth/user", Credentials{Username: "alice", Password: "pw"}, login); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected deactivated user to be refused, got %d", rr.Code)
	}
}

func TestDashboardChats(t *testing.T) {
	e := newEnv(t)
	cookie := e.ownerCookie(t)

	rr := e.request("POST", "/owner/chats", CreateChatRequest{Title: "Group"}, cookie)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Create chat failed: %d", rr.Code)
	}
	var chat models.Chat
	json.NewDecoder(rr.Body).Decode(&chat)

	// A user with no DM yet can be assigned.
	bob := &models.AppUser{OwnerID: chat.OwnerID, Username: "bob", DisplayName: "Bob", PasswordHash: "x", Active: true}
	e.store.CreateAppUser(t.Context(), bob)
	if rr := e.request("POST", "/owner/chats/"+chat.ID+"/participants", AssignUserRequest{UserID: bob.ID}, cookie); rr.Code != http.StatusNoContent {
		t.Errorf("Assign failed: %d", rr.Code)
	}
	alice := e.createUser(t, cookie, "alice")
	if rr := e.request("POST", "/owner/chats/"+chat.ID+"/participants", AssignUserRequest{UserID: alice.User.ID}, cookie); rr.Code != http.StatusConflict {
		t.Errorf("Expected conflict for a user with a DM, got %d", rr.Code)
	}

	rr = e.request("GET", "/owner/chats", nil, cookie)
	var chats []models.Chat
	json.NewDecoder(rr.Body).Decode(&chats)
	if len(chats) != 2 || chats[0].ID != alice.ChatID {
		t.Errorf("Expected newest chat first, got %+v", chats)
	}

	if rr := e.request("DELETE", "/owner/chats/"+chat.ID, nil, cookie); rr.Code != http.StatusNoContent {
		t.Fatalf("Delete failed: %d", rr.Code)
	}
	if rr := e.request("GET", "/api/chats/"+chat.ID, nil, cookie); rr.Code != http.StatusNotFound {
		t.Errorf("Expected deleted chat to be gone, got %d", rr.Code)
	}
}

func TestDashboardOwnerOnly(t *testing.T) {
	e := newEnv(t)
	cookie := e.ownerCookie(t)
	e.createUser(t, cookie, "alice")
	userCookie, _ := e.userCookie(t, "alice")

	for _, path := range []string{"/owner/users", "/owner/chats"} {
		if rr := e.request("GET", path, nil, userCookie); rr.Code != http.StatusForbidden {
			t.Errorf("%s: expected forbidden for app users, got %d", path, rr.Code)
		}
	}
}
