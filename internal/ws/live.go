// Package ws streams a live chat view over a websocket.
package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pliu/pinchat/internal/chatsync"
	"github.com/pliu/pinchat/internal/handlers"
	"github.com/pliu/pinchat/internal/middleware"
	"github.com/pliu/pinchat/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var errUnknownCommand = errors.New("ws: unknown command")

// Inbound is a command sent by the client.
type Inbound struct {
	Type         string `json:"type"` // "send" or "react"
	Content      string `json:"content,omitempty"`
	MessageID    string `json:"message_id,omitempty"`
	ReactionType string `json:"reaction_type,omitempty"`
}

type snapshotFrame struct {
	Type string `json:"type"`
	*chatsync.Snapshot
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type Handler struct {
	Engine   *chatsync.Engine
	Upgrader websocket.Upgrader
	// BaseCtx outlives each request and bounds writes made for the client.
	BaseCtx context.Context
}

func NewHandler(ctx context.Context, engine *chatsync.Engine) *Handler {
	return &Handler{Engine: engine, BaseCtx: ctx}
}

type client struct {
	conn   *websocket.Conn
	view   *chatsync.View
	me     session.Info
	errs   chan string
	engine *chatsync.Engine
	ctx    context.Context
}

// ServeLive upgrades the request and streams the chat: a snapshot frame,
// then one frame per update. It expects an authenticated session in the
// request context.
func (h *Handler) ServeLive(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	me := s.Snapshot()
	chatID := mux.Vars(r)["id"]

	if err := h.Engine.Authorize(r.Context(), chatID, me.Role, me.UserID); err != nil {
		handlers.Error(w, err)
		return
	}
	view, err := h.Engine.Open(r.Context(), chatID)
	if err != nil {
		handlers.Error(w, err)
		return
	}
	defer view.Close()

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade: %v", err)
		return
	}

	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	c := &client{
		conn:   conn,
		view:   view,
		me:     me,
		errs:   make(chan string, 8),
		engine: h.Engine,
		ctx:    ctx,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()
	c.readLoop()
	view.Close()
	<-done
}

func (c *client) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var in Inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read: %v", err)
			}
			return
		}
		if err := c.handle(in); err != nil {
			_, msg := handlers.StatusFor(err)
			select {
			case c.errs <- msg:
			default:
			}
		}
	}
}

func (c *client) handle(in Inbound) error {
	chatID := c.view.ChatID()
	switch in.Type {
	case "send":
		_, err := c.engine.SendMessage(c.ctx, chatID, c.me.UserID, c.me.Role, in.Content)
		return err
	case "react":
		msg, err := c.engine.Store.GetMessage(c.ctx, in.MessageID)
		if err != nil {
			return err
		}
		if msg.ChatID != chatID {
			return chatsync.ErrForbidden
		}
		_, err = c.engine.ToggleReaction(c.ctx, in.MessageID, c.me.UserID, c.me.Role, in.ReactionType)
		return err
	default:
		return errUnknownCommand
	}
}

// writeLoop owns every write to the connection.
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if err := c.write(snapshotFrame{Type: "snapshot", Snapshot: c.view.Initial()}); err != nil {
		return
	}
	updates := c.view.Updates()
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(u); err != nil {
				return
			}
		case msg := <-c.errs:
			if err := c.write(errorFrame{Type: "error", Error: msg}); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(v any) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}
