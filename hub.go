package main

import (
	"sync"
)

// Audience selects the recipients of a broadcast within one room.
type Audience struct {
	kind     audienceKind
	playerID string
}

type audienceKind int

const (
	audAll audienceKind = iota
	audMaster
	audPlayers
	audPlayer
	audExcept
)

func AudienceAll() Audience               { return Audience{kind: audAll} }
func AudienceMaster() Audience            { return Audience{kind: audMaster} }
func AudiencePlayers() Audience           { return Audience{kind: audPlayers} }
func AudiencePlayer(id string) Audience   { return Audience{kind: audPlayer, playerID: id} }
func AudienceExcept(id string) Audience   { return Audience{kind: audExcept, playerID: id} }

func (a Audience) matches(c *Conn) bool {
	switch a.kind {
	case audAll:
		return true
	case audMaster:
		return c.role == RoleMaster
	case audPlayers:
		return c.role == RolePlayer
	case audPlayer:
		return c.playerID == a.playerID
	case audExcept:
		return c.playerID != a.playerID
	default:
		return false
	}
}

// roomBundle pairs a room's engine with the sockets bound to it.
type roomBundle struct {
	engine *Engine

	mu    sync.RWMutex
	conns map[*Conn]bool
}

func (b *roomBundle) add(c *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[c] = true
}

// remove detaches the connection and closes its send queue exactly once.
func (b *roomBundle) remove(c *Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.conns[c]; !ok {
		return false
	}
	delete(b.conns, c)
	c.closeSend()
	return true
}

// hasPlayer reports whether any live socket is bound to the player.
func (b *roomBundle) hasPlayer(playerID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for c := range b.conns {
		if c.playerID == playerID {
			return true
		}
	}
	return false
}

// Hub is the registry of active rooms. It routes inbound messages to the
// right engine and fans engine events back out to the room's sockets.
type Hub struct {
	cfg       *Config
	store     *Store
	metrics   *Metrics
	snapshots *SnapshotStore

	mu    sync.RWMutex
	rooms map[string]*roomBundle
}

func newHub(cfg *Config, store *Store, metrics *Metrics, snapshots *SnapshotStore) *Hub {
	return &Hub{
		cfg:       cfg,
		store:     store,
		metrics:   metrics,
		snapshots: snapshots,
		rooms:     make(map[string]*roomBundle),
	}
}

// bundle returns the live bundle for a room, creating the engine on first
// use. The room must already exist in the store.
func (h *Hub) bundle(roomID string) (*roomBundle, error) {
	h.mu.RLock()
	b, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if ok {
		return b, nil
	}

	room, err := h.store.Rooms.FindByID(roomID)
	if err != nil {
		return nil, gameErr(ErrNotFound, "unknown room %s", roomID)
	}
	if room.Status == RoomFinished {
		return nil, gameErr(ErrState, "room %s is finished", roomID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.rooms[roomID]; ok {
		return b, nil
	}

	engine, err := newEngine(h.cfg, h.store, h, room)
	if err != nil {
		return nil, err
	}

	b = &roomBundle{
		engine: engine,
		conns:  make(map[*Conn]bool),
	}
	h.rooms[roomID] = b

	go engine.run()
	if h.metrics != nil {
		h.metrics.roomsActive.Inc()
	}
	logf(h.cfg, "GAME: Room %s (%s) is live", room.Code, room.ID)

	return b, nil
}

// Attach binds a connection to a room. A valid master token promotes the
// connection to the master role; a playerId resumes an existing player.
func (h *Hub) Attach(conn *Conn, roomID, token, playerID string) error {
	b, err := h.bundle(roomID)
	if err != nil {
		return err
	}

	if token != "" {
		masterToken, err := h.store.Rooms.GetMasterToken(roomID)
		if err != nil {
			return gameErr(ErrNotFound, "unknown room %s", roomID)
		}
		if masterToken != token {
			return gameErr(ErrAuth, "invalid master token")
		}
		conn.role = RoleMaster
	} else {
		conn.role = RolePlayer
		conn.playerID = playerID
	}

	b.add(conn)
	if h.metrics != nil {
		h.metrics.clientsConnected.Inc()
	}

	b.engine.post(evAttach{conn: conn})
	return nil
}

// Detach removes a connection; the engine decides what the disconnect
// means for the associated player.
func (h *Hub) Detach(conn *Conn) {
	h.mu.RLock()
	b, ok := h.rooms[conn.roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	if b.remove(conn) {
		if h.metrics != nil {
			h.metrics.clientsConnected.Dec()
		}
		b.engine.post(evDetach{conn: conn})
	}
}

// Route forwards one inbound frame to the room's engine.
func (h *Hub) Route(conn *Conn, msg ClientMessage) {
	h.mu.RLock()
	b, ok := h.rooms[conn.roomID]
	h.mu.RUnlock()
	if !ok {
		conn.trySend(errorEvent(gameErr(ErrNotFound, "unknown room %s", conn.roomID)))
		return
	}

	b.engine.post(evClientMessage{conn: conn, msg: msg})
}

// Broadcast delivers an event to every connection in the room matching the
// audience, in emission order per recipient. Slow consumers are detached.
func (h *Hub) Broadcast(roomID string, ev Event, audience Audience) {
	h.mu.RLock()
	b, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	var stale []*Conn

	b.mu.RLock()
	for c := range b.conns {
		if !audience.matches(c) {
			continue
		}
		if !c.trySend(ev) {
			stale = append(stale, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range stale {
		h.Detach(c)
	}

	if h.metrics != nil {
		h.metrics.eventsEmitted.WithLabelValues(ev.Type).Inc()
	}
}

// ClosePlayer drops every socket bound to a player (used by kicks).
func (h *Hub) ClosePlayer(roomID, playerID string) {
	h.mu.RLock()
	b, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	b.mu.RLock()
	var targets []*Conn
	for c := range b.conns {
		if c.playerID == playerID {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range targets {
		if b.remove(c) {
			if c.ws != nil {
				_ = c.ws.Close()
			}
		}
	}
}

// PlayerConnected reports whether the player still has a live socket.
func (h *Hub) PlayerConnected(roomID, playerID string) bool {
	h.mu.RLock()
	b, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return b.hasPlayer(playerID)
}

// Release tears down a finished room: the engine has already drained, so
// just drop the bundle and close the remaining sockets.
func (h *Hub) Release(roomID string) {
	h.mu.Lock()
	b, ok := h.rooms[roomID]
	if ok {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	b.mu.Lock()
	for c := range b.conns {
		delete(b.conns, c)
		c.closeSend()
		if c.ws != nil {
			_ = c.ws.Close()
		}
	}
	b.mu.Unlock()

	b.engine.stop()
	if h.metrics != nil {
		h.metrics.roomsActive.Dec()
	}
}

// StartGame forwards a game-start request (from the HTTP surface) into the
// room's engine and waits for the verdict.
func (h *Hub) StartGame(roomID string, configs []RoundConfig) error {
	b, err := h.bundle(roomID)
	if err != nil {
		return err
	}

	reply := make(chan error, 1)
	b.engine.post(evStart{configs: configs, reply: reply})
	return <-reply
}

// snapshotLobby mirrors lobby rosters into redis when configured; best
// effort, never blocks the engine.
func (h *Hub) snapshotLobby(room *Room, players []*Player) {
	if h.snapshots == nil {
		return
	}
	go h.snapshots.SaveLobby(room, players)
}

func (h *Hub) dropSnapshot(roomID string) {
	if h.snapshots == nil {
		return
	}
	go h.snapshots.Delete(roomID)
}
