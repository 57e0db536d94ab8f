package models

import "time"

// Role identifies which side of a chat a principal is on. The same values
// are used for participant roles, message sender types and reaction user
// types.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleGirlfriend Role = "girlfriend"
)

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleGirlfriend
}

type Owner struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type AppUser struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type Chat struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatParticipant links either an owner (Role == RoleOwner, OwnerID set) or
// an app user (Role == RoleGirlfriend, UserID set) to a chat.
type ChatParticipant struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	OwnerID   string    `json:"owner_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MemberID returns whichever of OwnerID/UserID the role says is set.
func (p ChatParticipant) MemberID() string {
	if p.Role == RoleOwner {
		return p.OwnerID
	}
	return p.UserID
}

type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderType Role      `json:"sender_type"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	Edited     bool      `json:"edited"`
}

type Reaction struct {
	ID           string    `json:"id"`
	MessageID    string    `json:"message_id"`
	UserID       string    `json:"user_id"`
	UserType     Role      `json:"user_type"`
	ReactionType string    `json:"reaction_type"`
	CreatedAt    time.Time `json:"created_at"`
}
