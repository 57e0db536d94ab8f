package chatsync

import (
	"log"
	"slices"
	"sync"

	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/realtime"
)

type UpdateKind string

const (
	MessageAdded    UpdateKind = "message"
	ReactionAdded   UpdateKind = "reaction_added"
	ReactionRemoved UpdateKind = "reaction_removed"
	ChatDeleted     UpdateKind = "chat_deleted"
)

// Update describes one change applied to a view.
type Update struct {
	Kind       UpdateKind       `json:"type"`
	Message    *models.Message  `json:"message,omitempty"`
	Reaction   *models.Reaction `json:"reaction,omitempty"`
	ReactionID string           `json:"reaction_id,omitempty"`
}

const updateBuffer = 64

// View is the live state of one open chat. Messages are kept in arrival
// order: the snapshot first, then pushed inserts appended at the tail.
type View struct {
	chatID  string
	title   string
	initial *Snapshot

	mu        sync.Mutex
	messages  []models.Message
	seen      map[string]bool
	reactions map[string][]models.Reaction // by message ID
	closed    bool

	msgSub   *realtime.Subscription
	reactSub *realtime.Subscription
	chatSub  *realtime.Subscription
	updates  chan Update
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newView(snap *Snapshot, msgSub, reactSub, chatSub *realtime.Subscription) *View {
	v := &View{
		chatID:    snap.ChatID,
		title:     snap.Title,
		initial:   snap,
		messages:  slices.Clone(snap.Messages),
		seen:      make(map[string]bool, len(snap.Messages)),
		reactions: make(map[string][]models.Reaction),
		msgSub:    msgSub,
		reactSub:  reactSub,
		chatSub:   chatSub,
		updates:   make(chan Update, updateBuffer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, m := range snap.Messages {
		v.seen[m.ID] = true
	}
	for _, r := range snap.Reactions {
		v.reactions[r.MessageID] = append(v.reactions[r.MessageID], r)
	}
	return v
}

func (v *View) ChatID() string { return v.chatID }
func (v *View) Title() string  { return v.title }

func (v *View) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.messages)
}

// Reactions returns the reactions held on one message.
func (v *View) Reactions(messageID string) []models.Reaction {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.reactions[messageID])
}

// Initial returns the snapshot the view was opened with. Replaying every
// value from Updates on top of it reproduces the view's state.
func (v *View) Initial() *Snapshot {
	return v.initial
}

// Snapshot copies the current state of the view.
func (v *View) Snapshot() *Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := &Snapshot{ChatID: v.chatID, Title: v.title, Messages: slices.Clone(v.messages)}
	for _, m := range v.messages {
		snap.Reactions = append(snap.Reactions, v.reactions[m.ID]...)
	}
	return snap
}

// Updates delivers each change after it has been applied. It is closed when
// the view stops. Updates that the consumer is too slow to take are dropped;
// the view state itself stays complete.
func (v *View) Updates() <-chan Update {
	return v.updates
}

// Done is closed once the view has stopped, whether by Close, because the
// chat was deleted or because a subscription ended.
func (v *View) Done() <-chan struct{} {
	return v.done
}

// Close releases the view's subscriptions. Events that arrive afterwards are
// ignored. It blocks until the event loop has exited.
func (v *View) Close() {
	v.once.Do(func() {
		v.mu.Lock()
		v.closed = true
		v.mu.Unlock()
		v.msgSub.Close()
		v.reactSub.Close()
		v.chatSub.Close()
		close(v.stop)
	})
	<-v.done
}

func (v *View) run() {
	defer close(v.done)
	defer close(v.updates)
	for {
		select {
		case <-v.stop:
			return
		case e, ok := <-v.msgSub.C():
			if !ok {
				return
			}
			v.applyMessage(e)
		case e, ok := <-v.reactSub.C():
			if !ok {
				return
			}
			v.applyReaction(e)
		case _, ok := <-v.chatSub.C():
			if ok {
				v.emit(Update{Kind: ChatDeleted})
			}
			return
		}
	}
}

func (v *View) applyMessage(e realtime.Event) {
	var m models.Message
	if err := e.Decode(&m); err != nil {
		log.Printf("chatsync: decode message event: %v", err)
		return
	}
	if m.ChatID != v.chatID {
		return
	}

	v.mu.Lock()
	if v.closed || v.seen[m.ID] {
		v.mu.Unlock()
		return
	}
	v.seen[m.ID] = true
	v.messages = append(v.messages, m)
	v.mu.Unlock()

	v.emit(Update{Kind: MessageAdded, Message: &m})
}

func (v *View) applyReaction(e realtime.Event) {
	var r models.Reaction
	if err := e.Decode(&r); err != nil {
		log.Printf("chatsync: decode reaction event: %v", err)
		return
	}

	switch e.Type {
	case realtime.EventInsert:
		// The reactions feed spans every chat; keep only this chat's messages.
		v.mu.Lock()
		if v.closed || !v.seen[r.MessageID] || slices.ContainsFunc(v.reactions[r.MessageID], func(x models.Reaction) bool { return x.ID == r.ID }) {
			v.mu.Unlock()
			return
		}
		v.reactions[r.MessageID] = append(v.reactions[r.MessageID], r)
		v.mu.Unlock()
		v.emit(Update{Kind: ReactionAdded, Reaction: &r})

	case realtime.EventDelete:
		// Delete events carry only the reaction ID.
		v.mu.Lock()
		if v.closed || !v.removeReaction(r.ID) {
			v.mu.Unlock()
			return
		}
		v.mu.Unlock()
		v.emit(Update{Kind: ReactionRemoved, ReactionID: r.ID})
	}
}

// removeReaction must be called with mu held.
func (v *View) removeReaction(id string) bool {
	for messageID, rs := range v.reactions {
		i := slices.IndexFunc(rs, func(x models.Reaction) bool { return x.ID == id })
		if i < 0 {
			continue
		}
		rs = slices.Delete(rs, i, i+1)
		if len(rs) == 0 {
			delete(v.reactions, messageID)
		} else {
			v.reactions[messageID] = rs
		}
		return true
	}
	return false
}

func (v *View) emit(u Update) {
	select {
	case v.updates <- u:
	default:
	}
}
