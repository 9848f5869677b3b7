package ws

import (
	"encoding/json"
	"sync"

	"roomchat/internal/model"
	"roomchat/internal/service"

	"go.uber.org/zap"
)

const sendBufferSize = 256

// Message is the WebSocket envelope format
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encode(msgType string, payload interface{}) ([]byte, error) {
	msg := Message{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = data
	}
	return json.Marshal(msg)
}

// Connection represents a WebSocket connection
type Connection struct {
	Addr string
	Send chan []byte

	mu        sync.Mutex
	closed    bool
	sessionID string
	token     string
}

// NewConnection creates a connection with a buffered send queue
func NewConnection(addr string) *Connection {
	return &Connection{
		Addr: addr,
		Send: make(chan []byte, sendBufferSize),
	}
}

// SessionID returns the session the connection is attached to, if any.
func (c *Connection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Token returns the token the connection authenticated with.
func (c *Connection) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Connection) setSession(sessionID, token string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.token = token
	c.mu.Unlock()
}

// enqueue queues data for the writer. A connection whose queue is full is
// closed.
func (c *Connection) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		c.closed = true
		close(c.Send)
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// member is one session with all of its live connections.
type member struct {
	sessionID string
	roomID    string
	conns     map[*Connection]struct{}
}

// Hub is the per-process room registry. Room membership is held per
// session; every connection of a session receives that room's events.
type Hub struct {
	conns   map[*Connection]struct{}
	members map[string]*member            // sessionID -> member
	rooms   map[string]map[string]*member // roomID -> sessionID -> member

	mu  sync.RWMutex
	log *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		conns:   make(map[*Connection]struct{}),
		members: make(map[string]*member),
		rooms:   make(map[string]map[string]*member),
		log:     log,
	}
}

// Register adds a not yet authenticated connection
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a connection and closes its queue. When it was the
// last connection of its session, the session leaves its room. It returns
// the session the connection was attached to.
func (h *Hub) Unregister(conn *Connection) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, conn)
	sessionID := conn.SessionID()
	h.detachLocked(conn, sessionID)
	conn.close()
	return sessionID
}

// Attach binds conn to sessionID. A connection that re-authenticates as a
// different session is moved. It returns the room the session is in.
func (h *Hub) Attach(conn *Connection, sessionID, token string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev := conn.SessionID(); prev != "" && prev != sessionID {
		h.detachLocked(conn, prev)
	}
	conn.setSession(sessionID, token)
	h.conns[conn] = struct{}{}

	m, ok := h.members[sessionID]
	if !ok {
		m = &member{sessionID: sessionID, conns: make(map[*Connection]struct{})}
		h.members[sessionID] = m
	}
	m.conns[conn] = struct{}{}
	return m.roomID
}

func (h *Hub) detachLocked(conn *Connection, sessionID string) {
	m, ok := h.members[sessionID]
	if !ok {
		return
	}
	delete(m.conns, conn)
	if len(m.conns) > 0 {
		return
	}
	delete(h.members, sessionID)
	if m.roomID != "" {
		room := m.roomID
		h.removeFromRoomLocked(m)
		h.sendCountLocked(room)
	}
}

// Join moves the session into roomID, leaving its current room. Both rooms
// receive their new member count. It returns the previous room.
func (h *Hub) Join(sessionID, roomID string) (string, error) {
	if err := service.ValidateRoomID(roomID); err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[sessionID]
	if !ok {
		return "", service.ErrAuth
	}
	prev := m.roomID
	if prev == roomID {
		h.sendCountLocked(roomID)
		return prev, nil
	}
	if prev != "" {
		h.removeFromRoomLocked(m)
		h.sendCountLocked(prev)
	}

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*member)
		h.rooms[roomID] = members
	}
	members[sessionID] = m
	m.roomID = roomID
	h.sendCountLocked(roomID)

	h.log.Debug("session joined room",
		zap.String("sessionId", sessionID),
		zap.String("roomId", roomID),
		zap.String("from", prev))
	return prev, nil
}

// DetachSession drops a session from the registry. It leaves its room and
// its connections stay open but unauthenticated.
func (h *Hub) DetachSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[sessionID]
	if !ok {
		return
	}
	for conn := range m.conns {
		conn.setSession("", "")
	}
	delete(h.members, sessionID)
	if m.roomID != "" {
		room := m.roomID
		h.removeFromRoomLocked(m)
		h.sendCountLocked(room)
	}
}

// DetachAll drops every session and empties every room. Connections stay
// open but unauthenticated.
func (h *Hub) DetachAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range h.members {
		for conn := range m.conns {
			conn.setSession("", "")
		}
	}
	h.members = make(map[string]*member)
	h.rooms = make(map[string]map[string]*member)
}

func (h *Hub) removeFromRoomLocked(m *member) {
	if members, ok := h.rooms[m.roomID]; ok {
		delete(members, m.sessionID)
		if len(members) == 0 {
			delete(h.rooms, m.roomID)
		}
	}
	m.roomID = ""
}

func (h *Hub) sendCountLocked(roomID string) {
	data, err := encode(model.EventRoomUserCount, model.RoomUserCountPayload{N: len(h.rooms[roomID])})
	if err != nil {
		return
	}
	h.multicastLocked(roomID, data)
}

func (h *Hub) multicastLocked(roomID string, data []byte) {
	for _, m := range h.rooms[roomID] {
		for conn := range m.conns {
			conn.enqueue(data)
		}
	}
}

// RoomCount returns the number of sessions currently in roomID.
func (h *Hub) RoomCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) roomOf(sessionID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if m, ok := h.members[sessionID]; ok {
		return m.roomID
	}
	return ""
}

// Multicast sends an encoded message to every local member of roomID.
func (h *Hub) Multicast(roomID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.multicastLocked(roomID, data)
}

// SendToSession sends an encoded message to every connection of a session.
func (h *Hub) SendToSession(sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if m, ok := h.members[sessionID]; ok {
		for conn := range m.conns {
			conn.enqueue(data)
		}
	}
}

// BroadcastAll sends an encoded message to every connection, authenticated
// or not.
func (h *Hub) BroadcastAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.conns {
		conn.enqueue(data)
	}
}

// Deliver routes a bus event to its local recipients. An authRequired event
// also drops the sessions it reaches from the registry.
func (h *Hub) Deliver(ev *model.RoomEvent) {
	data, err := json.Marshal(Message{Type: ev.Type, Payload: ev.Payload})
	if err != nil {
		h.log.Warn("encode event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	authRequired := ev.Type == model.EventAuthRequired
	switch {
	case ev.RoomID != "":
		h.Multicast(ev.RoomID, data)
	case ev.SessionID != "":
		h.SendToSession(ev.SessionID, data)
		if authRequired {
			h.DetachSession(ev.SessionID)
		}
	default:
		h.BroadcastAll(data)
		if authRequired {
			h.DetachAll()
			h.log.Info("all sessions detached")
		}
	}
}

// Close closes every connection queue; writers then close their sockets.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.close()
	}
}
