// Package dm provisions the one direct-message chat each app user shares
// with their owner.
package dm

import (
	"context"
	"errors"
	"strings"

	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/store"
)

const DefaultTitle = "Direct Message"

type Provisioner struct {
	Store store.Store
	// DefaultTitle names DMs for users without a display name.
	DefaultTitle string
}

func New(s store.Store) *Provisioner {
	return &Provisioner{Store: s, DefaultTitle: DefaultTitle}
}

// Resolve returns the DM chat for the user with the given ID, creating it if
// needed.
func (p *Provisioner) Resolve(ctx context.Context, userID string) (string, error) {
	user, err := p.Store.GetAppUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.ResolveFor(ctx, user)
}

// ResolveFor is idempotent: repeated calls return the same chat ID and never
// create a second chat for the same user.
func (p *Provisioner) ResolveFor(ctx context.Context, user *models.AppUser) (string, error) {
	chatID, err := p.Store.FindDMChatID(ctx, user.ID)
	if err == nil {
		return chatID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	chat := &models.Chat{OwnerID: user.OwnerID, Title: p.title(user)}
	err = p.Store.CreateDMChat(ctx, chat, user.ID)
	if errors.Is(err, store.ErrConflict) {
		// Lost the race; the winner's chat is the DM.
		return p.Store.FindDMChatID(ctx, user.ID)
	}
	if err != nil {
		return "", err
	}
	return chat.ID, nil
}

func (p *Provisioner) title(user *models.AppUser) string {
	if t := strings.TrimSpace(user.DisplayName); t != "" {
		return t
	}
	if p.DefaultTitle != "" {
		return p.DefaultTitle
	}
	return DefaultTitle
}
