package store

import (
	"context"
	"errors"

	"github.com/pliu/pinchat/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
	// ErrUnavailable wraps every other backend failure.
	ErrUnavailable = errors.New("store: unavailable")
)

type Store interface {
	// Owner operations
	CreateOwner(ctx context.Context, owner *models.Owner) error
	GetOwnerByEmail(ctx context.Context, email string) (*models.Owner, error)

	// App user operations
	CreateAppUser(ctx context.Context, user *models.AppUser) error
	GetAppUser(ctx context.Context, id string) (*models.AppUser, error)
	GetActiveAppUserByUsername(ctx context.Context, username string) (*models.AppUser, error)
	ListAppUsers(ctx context.Context, ownerID string) ([]models.AppUser, error)
	SetAppUserActive(ctx context.Context, id string, active bool) error

	// Chat operations
	CreateChat(ctx context.Context, chat *models.Chat) error
	CreateDMChat(ctx context.Context, chat *models.Chat, userID string) error
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	ListOwnerChats(ctx context.Context, ownerID string) ([]models.Chat, error)
	DeleteChat(ctx context.Context, id string) error
	AddParticipant(ctx context.Context, p *models.ChatParticipant) error
	GetChatParticipants(ctx context.Context, chatID string) ([]models.ChatParticipant, error)
	IsParticipant(ctx context.Context, chatID string, role models.Role, memberID string) (bool, error)
	FindDMChatID(ctx context.Context, userID string) (string, error)

	// Message operations
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetChatMessages(ctx context.Context, chatID string) ([]models.Message, error)

	// Reaction operations
	AddReaction(ctx context.Context, r *models.Reaction) error
	FindReaction(ctx context.Context, messageID, userID string, userType models.Role) (*models.Reaction, error)
	GetReactions(ctx context.Context, messageIDs []string) ([]models.Reaction, error)
	DeleteReaction(ctx context.Context, id string) error

	Close() error
}
