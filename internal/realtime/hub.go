package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"slices"
	"sync"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

const (
	TableMessages  = "messages"
	TableReactions = "reactions"
	TableChats     = "chats"
)

// ErrClosed is returned by Next once a subscription has been closed, either
// by its owner or by the hub dropping a subscriber that fell behind.
var ErrClosed = errors.New("realtime: subscription closed")

// Event is a row-level change. Delete events carry only the primary key in
// Row, as {"id": "..."}.
type Event struct {
	Type   EventType       `json:"type"`
	Table  string          `json:"table"`
	ChatID string          `json:"chat_id,omitempty"`
	Row    json.RawMessage `json:"row"`
}

func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Row, v)
}

// Filter selects events. Zero-valued fields match everything.
type Filter struct {
	Table  string
	Types  []EventType
	ChatID string
}

func (f Filter) Match(e Event) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	if f.ChatID != "" && f.ChatID != e.ChatID {
		return false
	}
	return true
}

// Feed is the subscribe side of the push channel.
type Feed interface {
	Subscribe(filter Filter) (*Subscription, error)
}

type Hub struct {
	// Registered subscriptions.
	subs map[*Subscription]bool

	// Events to fan out.
	broadcast chan Event

	// Register requests.
	register chan *Subscription

	// Unregister requests.
	unregister chan *Subscription

	buffer int
	done   chan struct{}
}

var _ Feed = (*Hub)(nil)

// NewHub creates a hub whose subscriptions buffer up to buffer events before
// being dropped.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:       make(map[*Subscription]bool),
		broadcast:  make(chan Event),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		buffer:     buffer,
		done:       make(chan struct{}),
	}
}

// Run delivers events until ctx is cancelled, then closes every remaining
// subscription.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for sub := range h.subs {
			delete(h.subs, sub)
			close(sub.ch)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-h.register:
			h.subs[sub] = true
		case sub := <-h.unregister:
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
		case event := <-h.broadcast:
			for sub := range h.subs {
				if !sub.filter.Match(event) {
					continue
				}
				select {
				case sub.ch <- event:
				default:
					log.Printf("realtime: dropping slow subscriber on %s", sub.filter.Table)
					close(sub.ch)
					delete(h.subs, sub)
				}
			}
		}
	}
}

func (h *Hub) Subscribe(filter Filter) (*Subscription, error) {
	sub := &Subscription{
		hub:    h,
		filter: filter,
		ch:     make(chan Event, h.buffer),
	}
	select {
	case h.register <- sub:
		return sub, nil
	case <-h.done:
		return nil, ErrClosed
	}
}

// Publish hands an event to the run loop. It returns false if the hub has
// stopped.
func (h *Hub) Publish(event Event) bool {
	select {
	case h.broadcast <- event:
		return true
	case <-h.done:
		return false
	}
}

// PublishRow marshals row and publishes it.
func (h *Hub) PublishRow(typ EventType, table, chatID string, row any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	h.Publish(Event{Type: typ, Table: table, ChatID: chatID, Row: data})
	return nil
}

// Subscription is a handle on a filtered stream of events. Close must be
// called on every exit path; it is safe to call more than once and after the
// hub has stopped.
type Subscription struct {
	hub    *Hub
	filter Filter
	ch     chan Event
	once   sync.Once
}

// C exposes the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Next blocks until an event arrives, the subscription ends, or ctx is done.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	select {
	case e, ok := <-s.ch:
		if !ok {
			return Event{}, ErrClosed
		}
		return e, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
	})
}
