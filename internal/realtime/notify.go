package realtime

import (
	"context"
	"log"

	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/store"
)

// notifyingStore publishes a change event after every successful write the
// push channel cares about. Reads and the remaining writes pass straight
// through to the embedded store.
type notifyingStore struct {
	store.Store
	hub *Hub
}

// Notify wraps s so that message and reaction writes and chat deletes are
// pushed to h.
func Notify(s store.Store, h *Hub) store.Store {
	return &notifyingStore{Store: s, hub: h}
}

func (n *notifyingStore) publish(typ EventType, table, chatID string, row any) {
	if err := n.hub.PublishRow(typ, table, chatID, row); err != nil {
		log.Printf("realtime: encode %s event: %v", table, err)
	}
}

func (n *notifyingStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	if err := n.Store.SaveMessage(ctx, msg); err != nil {
		return err
	}
	n.publish(EventInsert, TableMessages, msg.ChatID, msg)
	return nil
}

func (n *notifyingStore) AddReaction(ctx context.Context, r *models.Reaction) error {
	if err := n.Store.AddReaction(ctx, r); err != nil {
		return err
	}
	n.publish(EventInsert, TableReactions, "", r)
	return nil
}

func (n *notifyingStore) DeleteReaction(ctx context.Context, id string) error {
	if err := n.Store.DeleteReaction(ctx, id); err != nil {
		return err
	}
	n.publish(EventDelete, TableReactions, "", map[string]string{"id": id})
	return nil
}

func (n *notifyingStore) DeleteChat(ctx context.Context, id string) error {
	if err := n.Store.DeleteChat(ctx, id); err != nil {
		return err
	}
	n.publish(EventDelete, TableChats, id, map[string]string{"id": id})
	return nil
}
