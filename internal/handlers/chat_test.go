package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pliu/pinchat/internal/chatsync"
	"github.com/pliu/pinchat/internal/models"
)

type createdUser struct {
	User   models.AppUser `json:"user"`
	ChatID string         `json:"chat_id"`
}

func (e *env) createUser(t *testing.T, ownerCookie *http.Cookie, username string) createdUser {
	t.Helper()
	rr := e.request("POST", "/owner/users", CreateUserRequest{Username: username, DisplayName: username, Password: "pw"}, ownerCookie)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Create user failed: %d", rr.Code)
	}
	var out createdUser
	json.NewDecoder(rr.Body).Decode(&out)
	return out
}

func (e *env) userCookie(t *testing.T, username string) (*http.Cookie, string) {
	t.Helper()
	cookie := e.unlocked(t)
	rr := e.request("POST", "/api/auth/user", Credentials{Username: username, Password: "pw"}, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("User login failed: %d", rr.Code)
	}
	var out struct {
		ChatID string `json:"chat_id"`
	}
	json.NewDecoder(rr.Body).Decode(&out)
	return cookie, out.ChatID
}

func TestSendAndLoad(t *testing.T) {
	e := newEnv(t)
	ownerCookie := e.ownerCookie(t)
	alice := e.createUser(t, ownerCookie, "alice")
	cookie, chatID := e.userCookie(t, "alice")

	if chatID != alice.ChatID {
		t.Fatalf("Expected DM %s, got %s", alice.ChatID, chatID)
	}

	rr := e.request("POST", "/api/chats/"+chatID+"/messages", SendMessageRequest{Content: " hi "}, cookie)
	if rr.Code != http.StatusCreated {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusCreated)
	}
	var msg models.Message
	json.NewDecoder(rr.Body).Decode(&msg)
	if msg.Content != "hi" || msg.SenderID != alice.User.ID || msg.SenderType != models.RoleGirlfriend {
		t.Errorf("Unexpected message %+v", msg)
	}

	rr = e.request("GET", "/api/chats/"+chatID, nil, ownerCookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("Load failed: %d", rr.Code)
	}
	var snap chatsync.Snapshot
	json.NewDecoder(rr.Body).Decode(&snap)
	if snap.Title != "alice" || len(snap.Messages) != 1 || snap.Messages[0].ID != msg.ID {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}

func TestChatAccess(t *testing.T) {
	e := newEnv(t)
	ownerCookie := e.ownerCookie(t)
	e.createUser(t, ownerCookie, "alice")
	bob := e.createUser(t, ownerCookie, "bob")
	aliceCookie, _ := e.userCookie(t, "alice")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		cookie *http.Cookie
		want   int
	}{
		{"no session", "GET", "/api/chats/" + bob.ChatID, nil, nil, http.StatusUnauthorized},
		{"unlocked only", "GET", "/api/chats/" + bob.ChatID, nil, e.unlocked(t), http.StatusForbidden},
		{"other user's chat", "GET", "/api/chats/" + bob.ChatID, nil, aliceCookie, http.StatusForbidden},
		{"send to other user's chat", "POST", "/api/chats/" + bob.ChatID + "/messages", SendMessageRequest{Content: "hi"}, aliceCookie, http.StatusForbidden},
		{"missing chat", "GET", "/api/chats/missing", nil, ownerCookie, http.StatusNotFound},
		{"blank message", "POST", "/api/chats/" + bob.ChatID + "/messages", SendMessageRequest{Content: "  "}, ownerCookie, http.StatusBadRequest},
		{"other user's DM", "GET", "/api/dm/" + bob.User.ID, nil, aliceCookie, http.StatusForbidden},
		{"owner resolves DM", "GET", "/api/dm/" + bob.User.ID, nil, ownerCookie, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.request(tt.method, tt.path, tt.body, tt.cookie)
			if rr.Code != tt.want {
				t.Errorf("got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestResolveDMIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ownerCookie := e.ownerCookie(t)
	alice := e.createUser(t, ownerCookie, "alice")
	cookie, _ := e.userCookie(t, "alice")

	for i := 0; i < 2; i++ {
		rr := e.request("GET", "/api/dm/"+alice.User.ID, nil, cookie)
		var out struct {
			ChatID string `json:"chat_id"`
		}
		json.NewDecoder(rr.Body).Decode(&out)
		if out.ChatID != alice.ChatID {
			t.Errorf("call %d: expected %s, got %s", i, alice.ChatID, out.ChatID)
		}
	}
}

func TestToggleReactionHandler(t *testing.T) {
	e := newEnv(t)
	ownerCookie := e.ownerCookie(t)
	alice := e.createUser(t, ownerCookie, "alice")
	e.createUser(t, ownerCookie, "bob")
	aliceCookie, _ := e.userCookie(t, "alice")

	rr := e.request("POST", "/api/chats/"+alice.ChatID+"/messages", SendMessageRequest{Content: "hi"}, ownerCookie)
	var msg models.Message
	json.NewDecoder(rr.Body).Decode(&msg)

	toggle := func(cookie *http.Cookie, messageID, reaction string) (int, chatsync.Toggle) {
		rr := e.request("POST", "/api/messages/"+messageID+"/reactions", ReactionRequest{ReactionType: reaction}, cookie)
		var out struct {
			Result chatsync.Toggle `json:"result"`
		}
		json.NewDecoder(rr.Body).Decode(&out)
		return rr.Code, out.Result
	}

	if code, got := toggle(aliceCookie, msg.ID, "❤️"); code != http.StatusOK || got != chatsync.Added {
		t.Errorf("Expected added, got %d %q", code, got)
	}
	if _, got := toggle(aliceCookie, msg.ID, "😂"); got != chatsync.Replaced {
		t.Errorf("Expected replaced, got %q", got)
	}
	if _, got := toggle(aliceCookie, msg.ID, "😂"); got != chatsync.Removed {
		t.Errorf("Expected removed, got %q", got)
	}
	if code, _ := toggle(aliceCookie, msg.ID, ""); code != http.StatusBadRequest {
		t.Errorf("Expected blank reaction to be rejected, got %d", code)
	}
	if code, _ := toggle(aliceCookie, "missing", "👍"); code != http.StatusNotFound {
		t.Errorf("Expected missing message, got %d", code)
	}

	// Bob may not react in Alice's DM.
	bobCookie, _ := e.userCookie(t, "bob")
	if code, _ := toggle(bobCookie, msg.ID, "👍"); code != http.StatusForbidden {
		t.Errorf("Expected forbidden, got %d", code)
	}
}
