// Package chatsync loads a chat's history and keeps a view of it current
// with pushed message and reaction events.
package chatsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/realtime"
	"github.com/pliu/pinchat/internal/store"
)

var (
	ErrEmptyMessage  = errors.New("chatsync: empty message")
	ErrEmptyReaction = errors.New("chatsync: empty reaction")
	// ErrForbidden is returned by Authorize when the caller may not see the chat.
	ErrForbidden = errors.New("chatsync: forbidden")
)

// Toggle reports what ToggleReaction did.
type Toggle string

const (
	Added    Toggle = "added"
	Removed  Toggle = "removed"
	Replaced Toggle = "replaced"
)

// Snapshot is a chat's title, messages in (created_at, id) order and the
// reactions on those messages.
type Snapshot struct {
	ChatID    string            `json:"chat_id"`
	Title     string            `json:"title"`
	Messages  []models.Message  `json:"messages"`
	Reactions []models.Reaction `json:"reactions"`
}

type Engine struct {
	Store store.Store
	Feed  realtime.Feed
}

func New(s store.Store, feed realtime.Feed) *Engine {
	return &Engine{Store: s, Feed: feed}
}

// Authorize checks that a principal may read and write a chat: an owner must
// own it, an app user must be one of its participants.
func (e *Engine) Authorize(ctx context.Context, chatID string, role models.Role, memberID string) error {
	chat, err := e.Store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if role == models.RoleOwner {
		if chat.OwnerID != memberID {
			return ErrForbidden
		}
		return nil
	}
	ok, err := e.Store.IsParticipant(ctx, chatID, role, memberID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (e *Engine) Load(ctx context.Context, chatID string) (*Snapshot, error) {
	chat, err := e.Store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	messages, err := e.Store.GetChatMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	reactions, err := e.Store.GetReactions(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &Snapshot{ChatID: chat.ID, Title: chat.Title, Messages: messages, Reactions: reactions}, nil
}

// Open subscribes to the chat's messages, its deletion and all reaction
// changes, then loads the snapshot. Subscribing first means nothing written
// between the two steps is lost; duplicates are dropped by message ID. The
// caller must Close the view.
func (e *Engine) Open(ctx context.Context, chatID string) (*View, error) {
	msgSub, err := e.Feed.Subscribe(realtime.Filter{
		Table:  realtime.TableMessages,
		Types:  []realtime.EventType{realtime.EventInsert},
		ChatID: chatID,
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe messages: %w", err)
	}
	reactSub, err := e.Feed.Subscribe(realtime.Filter{
		Table: realtime.TableReactions,
		Types: []realtime.EventType{realtime.EventInsert, realtime.EventDelete},
	})
	if err != nil {
		msgSub.Close()
		return nil, fmt.Errorf("subscribe reactions: %w", err)
	}

	chatSub, err := e.Feed.Subscribe(realtime.Filter{
		Table:  realtime.TableChats,
		Types:  []realtime.EventType{realtime.EventDelete},
		ChatID: chatID,
	})
	if err != nil {
		msgSub.Close()
		reactSub.Close()
		return nil, fmt.Errorf("subscribe chat: %w", err)
	}

	snap, err := e.Load(ctx, chatID)
	if err != nil {
		msgSub.Close()
		reactSub.Close()
		chatSub.Close()
		return nil, err
	}

	v := newView(snap, msgSub, reactSub, chatSub)
	go v.run()
	return v, nil
}

// SendMessage stores a message. It does not touch any open view: the
// message reaches every view, the sender's included, through the push
// channel.
func (e *Engine) SendMessage(ctx context.Context, chatID, senderID string, senderType models.Role, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	msg := &models.Message{
		ChatID:     chatID,
		SenderID:   senderID,
		SenderType: senderType,
		Content:    content,
	}
	if err := e.Store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ToggleReaction keeps at most one reaction per user per message. Choosing
// the reaction already held removes it; choosing another type replaces it.
func (e *Engine) ToggleReaction(ctx context.Context, messageID, userID string, userType models.Role, reactionType string) (Toggle, error) {
	if strings.TrimSpace(reactionType) == "" {
		return "", ErrEmptyReaction
	}
	existing, err := e.Store.FindReaction(ctx, messageID, userID, userType)
	switch {
	case errors.Is(err, store.ErrNotFound):
		existing = nil
	case err != nil:
		return "", err
	}

	if existing != nil {
		if err := e.Store.DeleteReaction(ctx, existing.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		if existing.ReactionType == reactionType {
			return Removed, nil
		}
	}

	// Delete and insert are separate writes. A toggle racing this one can
	// win the insert, in which case the unique index turns ours into
	// ErrConflict and the winner's reaction stands.
	r := &models.Reaction{
		MessageID:    messageID,
		UserID:       userID,
		UserType:     userType,
		ReactionType: reactionType,
	}
	if err := e.Store.AddReaction(ctx, r); err != nil {
		return "", err
	}
	if existing != nil {
		return Replaced, nil
	}
	return Added, nil
}
