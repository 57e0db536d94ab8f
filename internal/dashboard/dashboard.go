// Package dashboard is the owner's management surface: app users, chats and
// chat membership.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pliu/pinchat/internal/auth"
	"github.com/pliu/pinchat/internal/dm"
	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/store"
)

var (
	ErrMissingFields = errors.New("dashboard: missing required fields")
	// ErrForbidden is returned when the target belongs to another owner.
	ErrForbidden = errors.New("dashboard: forbidden")
)

type Service struct {
	Store    store.Store
	DM       *dm.Provisioner
	HashCost int
}

func New(s store.Store, provisioner *dm.Provisioner, hashCost int) *Service {
	return &Service{Store: s, DM: provisioner, HashCost: hashCost}
}

func (d *Service) ListUsers(ctx context.Context, ownerID string) ([]models.AppUser, error) {
	return d.Store.ListAppUsers(ctx, ownerID)
}

func (d *Service) ListChats(ctx context.Context, ownerID string) ([]models.Chat, error) {
	return d.Store.ListOwnerChats(ctx, ownerID)
}

// CreateUser adds an active app user and provisions their DM. If the DM
// cannot be created the user still exists; the DM is retried on their first
// login.
func (d *Service) CreateUser(ctx context.Context, ownerID, username, displayName, password string) (*models.AppUser, string, error) {
	username = strings.TrimSpace(username)
	displayName = strings.TrimSpace(displayName)
	if username == "" || displayName == "" || password == "" {
		return nil, "", ErrMissingFields
	}

	hash, err := auth.HashPassword(password, d.HashCost)
	if err != nil {
		return nil, "", fmt.Errorf("%w: hash password: %w", store.ErrUnavailable, err)
	}
	user := &models.AppUser{
		OwnerID:      ownerID,
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		Active:       true,
	}
	if err := d.Store.CreateAppUser(ctx, user); err != nil {
		return nil, "", err
	}

	chatID, err := d.DM.ResolveFor(ctx, user)
	if err != nil {
		return user, "", fmt.Errorf("provision dm: %w", err)
	}
	return user, chatID, nil
}

func (d *Service) SetUserActive(ctx context.Context, ownerID, userID string, active bool) error {
	if _, err := d.ownedUser(ctx, ownerID, userID); err != nil {
		return err
	}
	return d.Store.SetAppUserActive(ctx, userID, active)
}

// CreateChat creates a chat with the owner as its first participant.
func (d *Service) CreateChat(ctx context.Context, ownerID, title string) (*models.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrMissingFields
	}
	chat := &models.Chat{OwnerID: ownerID, Title: title}
	if err := d.Store.CreateChat(ctx, chat); err != nil {
		return nil, err
	}
	p := &models.ChatParticipant{ChatID: chat.ID, Role: models.RoleOwner, OwnerID: ownerID}
	if err := d.Store.AddParticipant(ctx, p); err != nil {
		return nil, err
	}
	return chat, nil
}

// AssignUser adds an app user to one of the owner's chats. A user holds a
// single girlfriend-role membership, their DM, so assigning a user who
// already has one fails with store.ErrConflict.
func (d *Service) AssignUser(ctx context.Context, ownerID, userID, chatID string) error {
	if _, err := d.ownedUser(ctx, ownerID, userID); err != nil {
		return err
	}
	if _, err := d.ownedChat(ctx, ownerID, chatID); err != nil {
		return err
	}
	p := &models.ChatParticipant{ChatID: chatID, Role: models.RoleGirlfriend, UserID: userID}
	return d.Store.AddParticipant(ctx, p)
}

// DeleteChat removes the chat with its messages, reactions and members. A
// deleted DM is provisioned again on the user's next login.
func (d *Service) DeleteChat(ctx context.Context, ownerID, chatID string) error {
	if _, err := d.ownedChat(ctx, ownerID, chatID); err != nil {
		return err
	}
	return d.Store.DeleteChat(ctx, chatID)
}

func (d *Service) ownedUser(ctx context.Context, ownerID, userID string) (*models.AppUser, error) {
	user, err := d.Store.GetAppUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return user, nil
}

func (d *Service) ownedChat(ctx context.Context, ownerID, chatID string) (*models.Chat, error) {
	chat, err := d.Store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return chat, nil
}
