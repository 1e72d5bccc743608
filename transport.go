package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn is one client connection bound to a room. role and playerID are
// written only from the room's engine goroutine once attached.
type Conn struct {
	ws       *websocket.Conn
	send     chan Event
	roomID   string
	role     Role
	playerID string
	remote   string

	mu     sync.Mutex
	closed bool
}

func newConn(ws *websocket.Conn, roomID string) *Conn {
	c := &Conn{
		ws:     ws,
		send:   make(chan Event, 16),
		roomID: roomID,
	}
	if ws != nil {
		c.remote = ws.RemoteAddr().String()
	}
	return c
}

// trySend queues one event; a full buffer means the peer is gone and the
// caller should detach. Sends after closeSend are dropped: the engine may
// still hold queued events for a connection the reader already detached.
func (c *Conn) trySend(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// closeSend shuts the outbound queue exactly once, ending writePump.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Conn) readPump(hub *Hub) {
	defer func() {
		hub.Detach(c)
		_ = c.ws.Close()
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Malformed frames are reported to the sender only; the
			// connection stays open.
			c.trySend(errorEvent(gameErr(ErrTransport, "malformed message")))
			continue
		}

		hub.Route(c, msg)
	}
}

func (c *Conn) writePump() {
	defer c.ws.Close()

	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			return
		}
	}
}

// serveWS upgrades /ws/:roomid connections and hands them to the hub.
// Optional query parameters: token (master authentication) and playerId
// (player reconnection).
func serveWS(cfg *Config, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		token := r.URL.Query().Get("token")
		playerID := r.URL.Query().Get("playerId")

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: websocket upgrade from %s: %v", realIP(r), err)
			return
		}

		conn := newConn(ws, roomID)

		if err := hub.Attach(conn, roomID, token, playerID); err != nil {
			_ = ws.WriteJSON(errorEvent(err))
			_ = ws.Close()
			return
		}

		go conn.writePump()
		conn.readPump(hub)
	}
}
